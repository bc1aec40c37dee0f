package server

import (
	"net/http"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/moverdesk/am"
)

func defaultConfig(t *testing.T) *am.Config {
	t.Helper()
	v := viper.New()
	am.SetDefaults(v)
	cfg, err := am.LoadWithViper(v)
	require.NoError(t, err)
	cfg.Identity.ProjectID = "P2abc"
	cfg.Records.ClientID = "id"
	cfg.Records.ClientSecret = "secret"
	cfg.Records.RefreshToken = "refresh"
	cfg.Geocode.APIKey = "here"
	return cfg
}

func TestNewFromConfig(t *testing.T) {
	cfg := defaultConfig(t)

	s, err := NewFromConfig(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.True(t, s.auth.Enabled())
	assert.NotNil(t, s.gatherer)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = do(t, s, http.MethodPost, "/api/assign", `{"jobId":"42","email":"jane@example.com"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewFromConfig_IdentityDisabledAndNoMetrics(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Identity.ProjectID = ""
	cfg.Identity.Disabled = true
	cfg.Server.Metrics = false

	s, err := NewFromConfig(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.False(t, s.auth.Enabled())
	assert.Nil(t, s.gatherer)
}

func TestNewFromConfig_Rejects(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Geocode.APIKey = ""
	_, err := NewFromConfig(cfg, zaptest.NewLogger(t).Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HERE_API_KEY")

	cfg = defaultConfig(t)
	cfg.Timeclock.Timezone = "Mars/Olympus"
	_, err = NewFromConfig(cfg, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
