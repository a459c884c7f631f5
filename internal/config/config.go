package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Outbox    OutboxConfig
	Redis     RedisConfig
	Realtime  RealtimeConfig
	Metrics   MetricsPushConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// TelemetryConfig feeds internal/observability.
type TelemetryConfig struct {
	LogLevel            string
	LogFormat           string
	LogSampleInitial    int
	LogSampleThereafter int

	DBLogLevel  string
	DBSlowQuery time.Duration

	OTelEnabled       bool
	OTelProtocol      string
	OTelSamplingRatio float64
}

type OutboxConfig struct {
	PollerEnabled   bool
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	BatchSize       int
	MaxAttempts     int
	HandlerTimeout  time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type RealtimeConfig struct {
	Backend     string
	DedupeTTL   time.Duration
	AllowOrigin string
}

// RateLimitConfig bounds journey writes per user. It needs redis.
type RateLimitConfig struct {
	Enabled    bool
	WriteRate  float64
	WriteBurst int
}

type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

const (
	RealtimeBackendHub   = "hub"
	RealtimeBackendRedis = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "journeys"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "journeys"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Outbox: OutboxConfig{
			PollerEnabled:   getenvBool("OUTBOX_POLLER_ENABLED", true),
			PollInterval:    getenvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			MaxPollInterval: getenvDuration("OUTBOX_MAX_POLL_INTERVAL", 2*time.Minute),
			BatchSize:       getenvInt("OUTBOX_BATCH_SIZE", 100),
			MaxAttempts:     getenvInt("OUTBOX_MAX_ATTEMPTS", 3),
			HandlerTimeout:  getenvDuration("OUTBOX_HANDLER_TIMEOUT", 30*time.Second),
			BreakerFailures: getenvInt("OUTBOX_BREAKER_FAILURES", 5),
			BreakerCooldown: getenvDuration("OUTBOX_BREAKER_COOLDOWN", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Realtime: RealtimeConfig{
			Backend:     strings.ToLower(getenv("REALTIME_BACKEND", RealtimeBackendHub)),
			DedupeTTL:   getenvDuration("NOTIFY_DEDUPE_TTL", 10*time.Minute),
			AllowOrigin: strings.TrimSpace(getenv("REALTIME_ALLOW_ORIGIN", "*")),
		},
		Metrics: MetricsPushConfig{
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			LogLevel:            strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:           strings.ToLower(getenv("LOG_FORMAT", "json")),
			LogSampleInitial:    getenvInt("LOG_SAMPLE_INITIAL", 100),
			LogSampleThereafter: getenvInt("LOG_SAMPLE_THEREAFTER", 100),
			DBLogLevel:          strings.ToLower(getenv("DB_LOG_LEVEL", "warn")),
			DBSlowQuery:         getenvDuration("DB_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
			OTelEnabled:         getenvBool("OTEL_ENABLED", true),
			OTelProtocol:        strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			OTelSamplingRatio:   getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getenvBool("RATE_LIMIT_ENABLED", false),
			WriteRate:  getenvFloat("RATE_LIMIT_WRITE_RATE", 2),
			WriteBurst: getenvInt("RATE_LIMIT_WRITE_BURST", 20),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
