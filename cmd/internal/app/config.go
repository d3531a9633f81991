package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, pending migrations run during startup before the pool is
	// handed to the stores.
	DBMigrate bool

	APIMaxBodyBytes int64

	// CORS policy. An empty origin list disables enforcement.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// Access session policy: lifetime and the sliding renewal window.
	SessionTTL         time.Duration
	SessionRenewWithin time.Duration

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, /metrics exposes Prometheus counters.
	MetricsEnabled bool

	// Security policy:
	// If true, APSEQ_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and API-token hashing must be HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("APSEQ_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("APSEQ_LOG_LEVEL", "info"),
		LogFormat: EnvString("APSEQ_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("APSEQ_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("APSEQ_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("APSEQ_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("APSEQ_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("APSEQ_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("APSEQ_DATABASE_URL", ""),
		DBSchema:    EnvString("APSEQ_DB_SCHEMA", "apseq"),
		DBMaxConns:  EnvInt32("APSEQ_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("APSEQ_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("APSEQ_DB_MIGRATE", false),

		APIMaxBodyBytes: EnvInt64("APSEQ_API_MAX_BODY_BYTES", 1<<20),

		CORSAllowedOrigins:   EnvStringSlice("APSEQ_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("APSEQ_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("APSEQ_CORS_MAX_AGE_SECONDS", 600),

		SessionTTL:         EnvDuration("APSEQ_SESSION_TTL", 24*time.Hour),
		SessionRenewWithin: EnvDuration("APSEQ_SESSION_RENEW_WITHIN", 2*time.Hour),

		ReadinessRequireDB: EnvBool("APSEQ_READINESS_REQUIRE_DB", false),

		MetricsEnabled: EnvBool("APSEQ_METRICS", true),

		RequireTokenHMAC: EnvBool("APSEQ_REQUIRE_TOKEN_HMAC", false),
	}
}
