package am

// Config represents the moverdesk configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Records   RecordsConfig   `mapstructure:"records"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Timeclock TimeclockConfig `mapstructure:"timeclock"`
}

// ServerConfig configures the inbound HTTP surface
type ServerConfig struct {
	Port                int  `mapstructure:"port"`
	ReadTimeoutSeconds  int  `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int  `mapstructure:"write_timeout_seconds"`
	Metrics             bool `mapstructure:"metrics"` // Expose /metrics (default: true)
}

// RecordsConfig configures access to the external record store (Zoho Creator)
type RecordsConfig struct {
	BaseURL              string        `mapstructure:"base_url"`     // e.g. https://creator.zoho.com/api/v2
	AccountsURL          string        `mapstructure:"accounts_url"` // Token exchange host
	Owner                string        `mapstructure:"owner"`
	App                  string        `mapstructure:"app"`
	ClientID             string        `mapstructure:"client_id"`
	ClientSecret         string        `mapstructure:"client_secret"`
	RefreshToken         string        `mapstructure:"refresh_token"`
	TimeoutSeconds       int           `mapstructure:"timeout_seconds"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"` // 0 = unlimited
	Reports              ReportsConfig `mapstructure:"reports"`
	Forms                FormsConfig   `mapstructure:"forms"`
}

// ReportsConfig names the record-store reports each workflow reads from
type ReportsConfig struct {
	Movers   string `mapstructure:"movers"`
	Jobs     string `mapstructure:"jobs"`
	CheckIns string `mapstructure:"checkins"`
	Payouts  string `mapstructure:"payouts"`
}

// FormsConfig names the record-store forms used for record creation
type FormsConfig struct {
	CheckIn string `mapstructure:"checkin"`
}

// GeocodeConfig configures the geocoding provider (HERE)
type GeocodeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// IdentityConfig configures caller session verification (Descope)
type IdentityConfig struct {
	ProjectID string `mapstructure:"project_id"`
	JWKSURL   string `mapstructure:"jwks_url"` // Empty = derived from project_id
	Disabled  bool   `mapstructure:"disabled"` // Local development only: trust payload emails
}

// TimeclockConfig configures the geofenced clock-in
type TimeclockConfig struct {
	RadiusMiles float64 `mapstructure:"radius_miles"`
	Timezone    string  `mapstructure:"timezone"` // Business timezone for record timestamps
	DefaultPIN  string  `mapstructure:"default_pin"`
}

// DefaultServerPort is used when server.port is unset
const DefaultServerPort = 8888

// Redacted returns a copy of the configuration with secrets masked, for display.
func (c Config) Redacted() Config {
	c.Records.ClientSecret = redact(c.Records.ClientSecret)
	c.Records.RefreshToken = redact(c.Records.RefreshToken)
	c.Geocode.APIKey = redact(c.Geocode.APIKey)
	return c
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

// KeySetURL returns the configured key set URL, deriving Descope's from the project id.
func (c IdentityConfig) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	if c.ProjectID == "" {
		return ""
	}
	return "https://api.descope.com/v2/keys/" + c.ProjectID
}
