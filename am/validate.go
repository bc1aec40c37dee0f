package am

import (
	"time"

	"github.com/teranos/moverdesk/am/geotime"
	"github.com/teranos/moverdesk/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be within 0-65535, got %d", c.Server.Port)
	}

	if c.Records.BaseURL == "" {
		return errors.New("records.base_url cannot be empty")
	}
	if c.Records.AccountsURL == "" {
		return errors.New("records.accounts_url cannot be empty")
	}
	if c.Records.Owner == "" || c.Records.App == "" {
		return errors.New("records.owner and records.app must both be set")
	}
	if c.Records.TimeoutSeconds <= 0 {
		return errors.Newf("records.timeout_seconds must be > 0, got %d", c.Records.TimeoutSeconds)
	}
	if c.Records.MaxRequestsPerMinute < 0 {
		return errors.Newf("records.max_requests_per_minute must be >= 0, got %d", c.Records.MaxRequestsPerMinute)
	}
	if c.Records.Reports.Movers == "" || c.Records.Reports.Jobs == "" || c.Records.Reports.CheckIns == "" {
		return errors.New("records.reports.movers, jobs and checkins must all be set")
	}
	if c.Records.Forms.CheckIn == "" {
		return errors.New("records.forms.checkin cannot be empty")
	}

	if c.Geocode.BaseURL == "" {
		return errors.New("geocode.base_url cannot be empty")
	}
	if c.Geocode.TimeoutSeconds <= 0 {
		return errors.Newf("geocode.timeout_seconds must be > 0, got %d", c.Geocode.TimeoutSeconds)
	}

	if !c.Identity.Disabled && c.Identity.KeySetURL() == "" {
		return errors.WithHint(
			errors.New("identity.project_id is required unless identity.disabled is set"),
			"set DESCOPE_PROJECT_ID or MOVERDESK_IDENTITY_PROJECT_ID",
		)
	}

	if c.Timeclock.RadiusMiles <= 0 {
		return errors.Newf("timeclock.radius_miles must be > 0, got %f", c.Timeclock.RadiusMiles)
	}
	if _, err := geotime.LoadBusinessLocation(c.Timeclock.Timezone); err != nil {
		return errors.Wrap(err, "timeclock.timezone")
	}

	return nil
}

// RequireSecrets checks the credentials needed to talk to upstream services.
// Kept separate from Validate so `am validate` works on a machine without secrets.
func (c *Config) RequireSecrets() error {
	var missing []string
	if c.Records.ClientID == "" {
		missing = append(missing, "ZOHO_CLIENT_ID")
	}
	if c.Records.ClientSecret == "" {
		missing = append(missing, "ZOHO_CLIENT_SECRET")
	}
	if c.Records.RefreshToken == "" {
		missing = append(missing, "ZOHO_REFRESH_TOKEN")
	}
	if c.Geocode.APIKey == "" {
		missing = append(missing, "HERE_API_KEY")
	}
	if len(missing) > 0 {
		return errors.Newf("missing credentials: %v", missing)
	}
	return nil
}

// RecordsTimeout returns the per-call record store timeout
func (c *Config) RecordsTimeout() time.Duration {
	return time.Duration(c.Records.TimeoutSeconds) * time.Second
}

// GeocodeTimeout returns the per-call geocoder timeout
func (c *Config) GeocodeTimeout() time.Duration {
	return time.Duration(c.Geocode.TimeoutSeconds) * time.Second
}
