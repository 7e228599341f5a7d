package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	BaseURL      string

	RedisAddr     string
	PostgresDSN   string
	ClickHouseDSN string
	EventsEnabled bool
	GeoIPDB       string

	AdminKey string

	// Rate limit buckets: requests per window.
	ShortenLimit  int
	ShortenWindow time.Duration
	GeneralLimit  int
	GeneralWindow time.Duration
	ReportLimit   int
	ReportWindow  time.Duration
	AppealLimit   int
	AppealWindow  time.Duration
	AdminLimit    int
	AdminWindow   time.Duration

	// Moderation thresholds.
	AutoFlagReportCount   int
	AutoFlagMinUniqueIPs  int
	DuplicateReportWindow time.Duration

	// IP block durations (hours).
	DefaultBlockHours int
	MinBlockHours     int
	MaxBlockHours     int

	// Cache TTLs.
	LinkCacheTTL      time.Duration
	AnalyticsCacheTTL time.Duration
	PanicLocalTTL     time.Duration
	PanicCacheTTL     time.Duration

	// Validation limits.
	MaxURLLength       int
	MaxShortCodeLength int
	MaxReasonLength    int
	MaxReportReason    int
	MinReasonLength    int
	MaxContactInfo     int
	MaxCategoryLength  int
	MaxDescription     int
	MinAdminKeyLength  int
	ShortCodeLength    int

	// Maintenance.
	DuplicateLinkWindow time.Duration
	CleanupInterval     time.Duration
	CleanupMaxAge       time.Duration

	// Database connection pooling configuration.
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// Tracing configuration.
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent. A .env file in the working directory is
// applied first when present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Port = getenv("PORT", "8686")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "openshorten")
	cfg.BaseURL = getenv("BASE_URL", "http://localhost:8686")

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1")
	cfg.EventsEnabled = envBool("EVENTS_ENABLED", false)
	cfg.GeoIPDB = getenv("GEOIP_DB", "")

	cfg.AdminKey = getenv("ADMIN_SECRET_KEY", "")

	cfg.ShortenLimit = envInt("RATE_LIMIT_SHORTENING", 100)
	cfg.ShortenWindow = envDuration("RATE_LIMIT_SHORTENING_WINDOW", time.Minute)
	cfg.GeneralLimit = envInt("RATE_LIMIT_GENERAL", 500)
	cfg.GeneralWindow = envDuration("RATE_LIMIT_GENERAL_WINDOW", time.Minute)
	cfg.ReportLimit = envInt("RATE_LIMIT_REPORTING", 10)
	cfg.ReportWindow = envDuration("RATE_LIMIT_REPORTING_WINDOW", time.Hour)
	cfg.AppealLimit = envInt("RATE_LIMIT_APPEALS", 5)
	cfg.AppealWindow = envDuration("RATE_LIMIT_APPEALS_WINDOW", time.Hour)
	cfg.AdminLimit = envInt("RATE_LIMIT_ADMIN", 100)
	cfg.AdminWindow = envDuration("RATE_LIMIT_ADMIN_WINDOW", time.Minute)

	cfg.AutoFlagReportCount = envInt("AUTO_FLAG_REPORT_COUNT", 3)
	cfg.AutoFlagMinUniqueIPs = envInt("AUTO_FLAG_MIN_UNIQUE_IPS", 2)
	cfg.DuplicateReportWindow = envDuration("DUPLICATE_REPORT_WINDOW", time.Hour)

	cfg.DefaultBlockHours = envInt("IP_BLOCK_DEFAULT_HOURS", 24)
	cfg.MinBlockHours = envInt("IP_BLOCK_MIN_HOURS", 1)
	cfg.MaxBlockHours = envInt("IP_BLOCK_MAX_HOURS", 720)

	cfg.LinkCacheTTL = envDuration("CACHE_TTL_LINK", time.Hour)
	cfg.AnalyticsCacheTTL = envDuration("CACHE_TTL_ANALYTICS", 5*time.Minute)
	cfg.PanicLocalTTL = envDuration("PANIC_MODE_LOCAL_TTL", 30*time.Second)
	cfg.PanicCacheTTL = envDuration("PANIC_MODE_CACHE_TTL", 30*time.Second)

	cfg.MaxURLLength = envInt("MAX_URL_LENGTH", 2048)
	cfg.MaxShortCodeLength = envInt("MAX_SHORT_CODE_LENGTH", 50)
	cfg.MaxReasonLength = envInt("MAX_REASON_LENGTH", 1000)
	cfg.MaxReportReason = envInt("MAX_REPORT_REASON_LENGTH", 500)
	cfg.MinReasonLength = envInt("MIN_REASON_LENGTH", 10)
	cfg.MaxContactInfo = envInt("MAX_CONTACT_INFO_LENGTH", 255)
	cfg.MaxCategoryLength = envInt("MAX_CATEGORY_LENGTH", 50)
	cfg.MaxDescription = envInt("MAX_DESCRIPTION_LENGTH", 1000)
	cfg.MinAdminKeyLength = envInt("MIN_ADMIN_KEY_LENGTH", 32)
	cfg.ShortCodeLength = envInt("SHORT_CODE_LENGTH", 6)

	cfg.DuplicateLinkWindow = envDuration("DUPLICATE_LINK_WINDOW", 24*time.Hour)
	cfg.CleanupInterval = envDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.CleanupMaxAge = envDuration("CLEANUP_MAX_AGE", 7*24*time.Hour)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TracingEndpoint = getenv("TRACING_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
