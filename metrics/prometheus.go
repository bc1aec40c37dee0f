package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/moverdesk/logger"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	upstreamCallsTotal    *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	rateLimitWaitDuration *prometheus.HistogramVec

	tokenExchangesTotal   *prometheus.CounterVec
	tokenExchangeAttempts prometheus.Histogram

	workflowOutcomesTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a Prometheus sink registered on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initHTTPMetrics(reg)
	s.initUpstreamMetrics(reg)
	s.initWorkflowMetrics(reg)
	return s
}

func (s *PrometheusSink) initHTTPMetrics(reg prometheus.Registerer) {
	s.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moverdesk_http_requests_total",
		Help: "Total number of inbound HTTP requests by route and status code.",
	}, []string{"route", "code"})

	s.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moverdesk_http_request_duration_seconds",
		Help:    "Inbound request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"route"})

	s.register(reg, s.requestsTotal, "moverdesk_http_requests_total")
	s.register(reg, s.requestDuration, "moverdesk_http_request_duration_seconds")
}

func (s *PrometheusSink) initUpstreamMetrics(reg prometheus.Registerer) {
	s.upstreamCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moverdesk_upstream_calls_total",
		Help: "Total number of outbound calls by service and status class.",
	}, []string{"service", "status_class"})

	s.upstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moverdesk_upstream_call_duration_seconds",
		Help:    "Outbound call latency in seconds (excludes rate limit wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 10},
	}, []string{"service"})

	s.rateLimitWaitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moverdesk_upstream_rate_limit_wait_seconds",
		Help:    "Time spent waiting on the outbound rate limiter.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
	}, []string{"service"})

	s.tokenExchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moverdesk_token_exchanges_total",
		Help: "Total number of service credential exchanges by outcome.",
	}, []string{"outcome"})

	s.tokenExchangeAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moverdesk_token_exchange_attempts",
		Help:    "Attempts needed per credential exchange (1 = no retry).",
		Buckets: []float64{1, 2, 3, 4},
	})

	s.register(reg, s.upstreamCallsTotal, "moverdesk_upstream_calls_total")
	s.register(reg, s.upstreamDuration, "moverdesk_upstream_call_duration_seconds")
	s.register(reg, s.rateLimitWaitDuration, "moverdesk_upstream_rate_limit_wait_seconds")
	s.register(reg, s.tokenExchangesTotal, "moverdesk_token_exchanges_total")
	s.register(reg, s.tokenExchangeAttempts, "moverdesk_token_exchange_attempts")
}

func (s *PrometheusSink) initWorkflowMetrics(reg prometheus.Registerer) {
	s.workflowOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moverdesk_workflow_outcomes_total",
		Help: "Total number of workflow completions by workflow and outcome.",
	}, []string{"workflow", "outcome"})

	s.register(reg, s.workflowOutcomesTotal, "moverdesk_workflow_outcomes_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		logger.Warnw("metrics: failed to register collector", "name", name, logger.FieldError, err)
	}
}

func (s *PrometheusSink) RequestCompleted(route string, status int, duration time.Duration) {
	s.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	s.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (s *PrometheusSink) UpstreamCallCompleted(service, statusClass string, duration time.Duration) {
	s.upstreamCallsTotal.WithLabelValues(service, statusClass).Inc()
	s.upstreamDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (s *PrometheusSink) RateLimitWaited(service string, wait time.Duration) {
	s.rateLimitWaitDuration.WithLabelValues(service).Observe(wait.Seconds())
}

func (s *PrometheusSink) TokenExchange(outcome string, attempts int) {
	s.tokenExchangesTotal.WithLabelValues(outcome).Inc()
	s.tokenExchangeAttempts.Observe(float64(attempts))
}

func (s *PrometheusSink) WorkflowOutcome(workflow, outcome string) {
	s.workflowOutcomesTotal.WithLabelValues(workflow, outcome).Inc()
}
