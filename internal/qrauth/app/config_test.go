package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"ENV", "PORT", "QR_SESSION_TTL", "QR_AUTH_GRACE", "QR_STORE_DRIVER",
		"AUTH_AUDIENCE", "QR_CREDENTIAL_SCOPES", "QR_ALLOW_QR_APPROVER", "AUTH_JWKS_URL",
		"QR_SWEEP_INTERVAL", "QR_SWEEP_RETENTION", "QR_PAYLOAD_BASE_URL", "METRICS_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 5*time.Minute, cfg.SessionTTL)
	require.Equal(t, 60*time.Second, cfg.AuthGrace)
	require.Equal(t, 30*time.Second, cfg.SweepInterval)
	require.Equal(t, time.Minute, cfg.SweepRetention)
	require.Equal(t, DriverMemory, cfg.StoreDriver)
	require.Equal(t, []string{"omnipdf"}, cfg.Audience)
	require.Equal(t, []string{"profile:read"}, cfg.CredentialScopes)
	require.Equal(t, "omnipdf://qr/approve", cfg.PayloadBaseURL)
	require.False(t, cfg.AllowQRApprover)
	require.True(t, cfg.MetricsEnabled)
	require.Empty(t, cfg.JWKSURL)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("QR_SESSION_TTL", "120")
	t.Setenv("QR_AUTH_GRACE", "2m")
	t.Setenv("QR_STORE_DRIVER", "Redis")
	t.Setenv("AUTH_AUDIENCE", "omnipdf, omnipdf-mobile ,")
	t.Setenv("QR_ALLOW_QR_APPROVER", "true")
	t.Setenv("QR_WATCH_ORIGINS", "app.omnipdf.com,*.omnipdf.dev")
	t.Setenv("QR_SWEEP_INTERVAL", "not-a-duration")

	cfg := LoadConfig()
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 2*time.Minute, cfg.SessionTTL, "bare integers are seconds")
	require.Equal(t, 2*time.Minute, cfg.AuthGrace)
	require.Equal(t, DriverRedis, cfg.StoreDriver)
	require.Equal(t, []string{"omnipdf", "omnipdf-mobile"}, cfg.Audience)
	require.True(t, cfg.AllowQRApprover)
	require.Equal(t, []string{"app.omnipdf.com", "*.omnipdf.dev"}, cfg.WatchOrigins)
	require.Equal(t, 30*time.Second, cfg.SweepInterval, "invalid values fall back to the default")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	base := Config{
		Port:        8080,
		SessionTTL:  time.Minute,
		AuthGrace:   time.Minute,
		Issuer:      "http://localhost:8080",
		StoreDriver: DriverMemory,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, `unknown QR_STORE_DRIVER "mongo"`},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = DriverPostgres }, "QR_POSTGRES_DSN"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "QR_SESSION_TTL"},
		{"negative grace", func(c *Config) { c.AuthGrace = -time.Second }, "QR_AUTH_GRACE"},
		{"no issuer", func(c *Config) { c.Issuer = "" }, "AUTH_ISSUER"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}
