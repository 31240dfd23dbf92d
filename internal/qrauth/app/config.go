package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers selectable with QR_STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Env                 string        // Environment (development, staging, production) (default: development)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	SessionTTL     time.Duration // Lifetime of a pending QR session (default: 5m)
	AuthGrace      time.Duration // Time the owner has to consume after approval (default: 60s)
	SweepInterval  time.Duration // Expired session sweep interval (default: 30s)
	SweepRetention time.Duration // How long expired sessions still answer 410 (default: 1m)
	WatchInterval  time.Duration // Re-check interval of watch sockets (default: 1s)
	WatchOrigins   []string      // Extra websocket origins, comma separated (default: none)
	PayloadBaseURL string        // Deep link encoded into the QR code (default: omnipdf://qr/approve)
	TokenPepper    string        // HMAC key for token fingerprints (default: random per process)

	StoreDriver  string // memory, sqlite, postgres, redis (default: memory)
	SQLiteDSN    string // sqlite DSN (default: file:qrauth.db?_pragma=busy_timeout(5000))
	PostgresDSN  string // postgres DSN, required for the postgres driver
	RedisURL     string // redis URL (default: redis://localhost:6379/0)
	RedisPrefix  string // redis key prefix (default: qr:)
	PostgresPool int32  // postgres max connections (default: 10)

	Issuer           string        // Issuer of bearer tokens and of issued credentials (default: http://localhost:8080)
	Audience         []string      // Expected audience of bearer tokens, comma separated (default: omnipdf)
	JWKSURL          string        // Remote IdP JWKS; empty trusts this service's own keys
	JWKSRefresh      time.Duration // Remote JWKS refresh interval (default: 5m)
	SigningKeyFile   string        // Ed25519 PEM for credentials; empty means ephemeral
	CredentialTTL    time.Duration // Lifetime of consume credentials (default: 15m)
	CredentialScopes []string      // Scopes of consume credentials (default: profile:read)
	AllowQRApprover  bool          // Allow QR-born credentials to approve sessions (default: false)
	MetricsEnabled   bool          // Serve /metrics (default: true)
}

func LoadConfig() Config {
	cfg := Config{
		Env:                 getEnvOrDefault("ENV", "development"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		SessionTTL:     getEnvDurationOrDefault("QR_SESSION_TTL", 5*time.Minute),
		AuthGrace:      getEnvDurationOrDefault("QR_AUTH_GRACE", 60*time.Second),
		SweepInterval:  getEnvDurationOrDefault("QR_SWEEP_INTERVAL", 30*time.Second),
		SweepRetention: getEnvDurationOrDefault("QR_SWEEP_RETENTION", time.Minute),
		WatchInterval:  getEnvDurationOrDefault("QR_WATCH_INTERVAL", time.Second),
		WatchOrigins:   getEnvListOrDefault("QR_WATCH_ORIGINS", nil),
		PayloadBaseURL: getEnvOrDefault("QR_PAYLOAD_BASE_URL", "omnipdf://qr/approve"),
		TokenPepper:    os.Getenv("QR_TOKEN_PEPPER"),

		StoreDriver:  strings.ToLower(getEnvOrDefault("QR_STORE_DRIVER", DriverMemory)),
		SQLiteDSN:    getEnvOrDefault("QR_SQLITE_DSN", "file:qrauth.db?_pragma=busy_timeout(5000)"),
		PostgresDSN:  os.Getenv("QR_POSTGRES_DSN"),
		RedisURL:     getEnvOrDefault("QR_REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix:  getEnvOrDefault("QR_REDIS_PREFIX", "qr:"),
		PostgresPool: int32(getEnvIntOrDefault("QR_POSTGRES_MAX_CONNS", 10)),

		Issuer:           getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080"),
		Audience:         getEnvListOrDefault("AUTH_AUDIENCE", []string{"omnipdf"}),
		JWKSURL:          os.Getenv("AUTH_JWKS_URL"),
		JWKSRefresh:      getEnvDurationOrDefault("AUTH_JWKS_REFRESH", 5*time.Minute),
		SigningKeyFile:   os.Getenv("AUTH_SIGNING_KEY_FILE"),
		CredentialTTL:    getEnvDurationOrDefault("QR_CREDENTIAL_TTL", 15*time.Minute),
		CredentialScopes: getEnvListOrDefault("QR_CREDENTIAL_SCOPES", []string{"profile:read"}),
		AllowQRApprover:  getEnvBoolOrDefault("QR_ALLOW_QR_APPROVER", false),
		MetricsEnabled:   getEnvBoolOrDefault("METRICS_ENABLED", true),
	}

	return cfg
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverRedis:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("QR_POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QR_STORE_DRIVER %q", c.StoreDriver))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("QR_SESSION_TTL must be positive"))
	}
	if c.AuthGrace <= 0 {
		errs = append(errs, errors.New("QR_AUTH_GRACE must be positive"))
	}
	if c.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
