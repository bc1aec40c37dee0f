package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 30) // Covers a clock-in's chained upstream calls
	v.SetDefault("server.metrics", true)

	// Record store (Zoho Creator) defaults
	v.SetDefault("records.base_url", "https://creator.zoho.com/api/v2")
	v.SetDefault("records.accounts_url", "https://accounts.zoho.com")
	v.SetDefault("records.owner", "information152")
	v.SetDefault("records.app", "household-goods-moving-services")
	v.SetDefault("records.timeout_seconds", 6)            // Fail fast before the platform does
	v.SetDefault("records.max_requests_per_minute", 120) // Stay under the provider's own limiter
	v.SetDefault("records.reports.movers", "All_Movers")
	v.SetDefault("records.reports.jobs", "Proposal_Contract_Report")
	v.SetDefault("records.reports.checkins", "CheckIn_Report")
	v.SetDefault("records.reports.payouts", "alldata")
	v.SetDefault("records.forms.checkin", "CheckIn")

	// Geocoding (HERE) defaults
	v.SetDefault("geocode.base_url", "https://geocode.search.hereapi.com")
	v.SetDefault("geocode.timeout_seconds", 6)

	// Identity defaults
	v.SetDefault("identity.disabled", false)

	// Timeclock defaults
	v.SetDefault("timeclock.radius_miles", 0.25)
	v.SetDefault("timeclock.timezone", "America/Chicago")
	v.SetDefault("timeclock.default_pin", "0000")
}

// BindSensitiveEnvVars binds secrets to the environment variable names the
// deployment already uses, in addition to the MOVERDESK_* automatic binding.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("records.client_id", "MOVERDESK_RECORDS_CLIENT_ID", "ZOHO_CLIENT_ID")
	v.BindEnv("records.client_secret", "MOVERDESK_RECORDS_CLIENT_SECRET", "ZOHO_CLIENT_SECRET")
	v.BindEnv("records.refresh_token", "MOVERDESK_RECORDS_REFRESH_TOKEN", "ZOHO_REFRESH_TOKEN")
	v.BindEnv("geocode.api_key", "MOVERDESK_GEOCODE_API_KEY", "HERE_API_KEY")
	v.BindEnv("identity.project_id", "MOVERDESK_IDENTITY_PROJECT_ID", "DESCOPE_PROJECT_ID")
	v.BindEnv("server.port", "MOVERDESK_SERVER_PORT", "PORT")
}

// GetServerPort returns the configured server port, or DefaultServerPort
func GetServerPort() int {
	cfg, err := Load()
	if err != nil || cfg.Server.Port == 0 {
		return DefaultServerPort
	}
	return cfg.Server.Port
}
