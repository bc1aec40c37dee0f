package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/teranos/moverdesk/am"
	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/auth"
	"github.com/teranos/moverdesk/credential"
	"github.com/teranos/moverdesk/crew"
	"github.com/teranos/moverdesk/errors"
	"github.com/teranos/moverdesk/geocode"
	"github.com/teranos/moverdesk/internal/httpclient"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/metrics"
	"github.com/teranos/moverdesk/records"
)

// NewFromConfig validates cfg and wires the upstream clients, token cache,
// workflows and caller verification into a Server.
func NewFromConfig(cfg *am.Config, log *zap.SugaredLogger) (*Server, error) {
	if log == nil {
		log = logger.Logger
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := cfg.RequireSecrets(); err != nil {
		return nil, err
	}

	loc, err := geotime.LoadBusinessLocation(cfg.Timeclock.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "business timezone")
	}

	var (
		sink     metrics.Sink = metrics.NewNoopSink()
		gatherer prometheus.Gatherer
	)
	if cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sink = metrics.NewPrometheusSink(reg)
		gatherer = reg
	}

	tokenHTTP := httpclient.New(httpclient.Options{
		Service: "token",
		Timeout: cfg.RecordsTimeout(),
		Sink:    sink,
		Logger:  log.Named("token"),
	})
	tokens := credential.NewCache(
		credential.NewOAuthExchanger(credential.OAuthConfig{
			AccountsURL:  cfg.Records.AccountsURL,
			ClientID:     cfg.Records.ClientID,
			ClientSecret: cfg.Records.ClientSecret,
			RefreshToken: cfg.Records.RefreshToken,
		}, tokenHTTP),
		credential.WithMetrics(sink),
		credential.WithLogger(log.Named("credential")),
	)

	store := records.NewClient(records.Config{
		BaseURL: cfg.Records.BaseURL,
		Owner:   cfg.Records.Owner,
		App:     cfg.Records.App,
		Tokens:  tokens,
		HTTP: httpclient.New(httpclient.Options{
			Service:           "records",
			Timeout:           cfg.RecordsTimeout(),
			RequestsPerMinute: cfg.Records.MaxRequestsPerMinute,
			Sink:              sink,
			Logger:            log.Named("records"),
		}),
		Logger: log.Named("records"),
	})

	geocoder := geocode.NewClient(geocode.Config{
		BaseURL: cfg.Geocode.BaseURL,
		APIKey:  cfg.Geocode.APIKey,
		HTTP: httpclient.New(httpclient.Options{
			Service: "geocode",
			Timeout: cfg.GeocodeTimeout(),
			Sink:    sink,
			Logger:  log.Named("geocode"),
		}),
		Logger: log.Named("geocode"),
	})

	service := crew.NewService(crew.Config{
		Store:    store,
		Geocoder: geocoder,
		Resources: crew.Resources{
			MoversReport:   cfg.Records.Reports.Movers,
			JobsReport:     cfg.Records.Reports.Jobs,
			CheckInsReport: cfg.Records.Reports.CheckIns,
			PayoutsReport:  cfg.Records.Reports.Payouts,
			CheckInForm:    cfg.Records.Forms.CheckIn,
		},
		RadiusMiles: cfg.Timeclock.RadiusMiles,
		Location:    loc,
		DefaultPIN:  cfg.Timeclock.DefaultPIN,
		Sink:        sink,
		Logger:      log.Named("crew"),
	})

	var verifier auth.TokenVerifier
	if !cfg.Identity.Disabled {
		keys := auth.NewKeySet(cfg.Identity.KeySetURL(), httpclient.New(httpclient.Options{
			Service: "jwks",
			Timeout: cfg.RecordsTimeout(),
			Sink:    sink,
			Logger:  log.Named("jwks"),
		}), log.Named("auth"))
		verifier = auth.NewVerifier(keys, cfg.Identity.ProjectID)
	}

	return New(Options{
		Port:         cfg.Server.Port,
		ReadTimeout:  seconds(cfg.Server.ReadTimeoutSeconds),
		WriteTimeout: seconds(cfg.Server.WriteTimeoutSeconds),
		Workflows:    service,
		Auth:         auth.NewMiddleware(verifier, log.Named("auth")),
		Sink:         sink,
		Gatherer:     gatherer,
		Logger:       log.Named("server"),
	}), nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
