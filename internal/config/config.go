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
	LogLevel    string

	DefaultOrgID int64

	AuthEncryptionKey string

	OTLPEndpoint string
	Metrics      MetricsConfig

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Poll      PollConfig
	Alerts    AlertConfig
	Notify    NotifyConfig
	Retention RetentionConfig
}

type MetricsConfig struct {
	Enabled  bool
	Exporter string
	Endpoint string
}

// PollConfig tunes the provider poll workers.
type PollConfig struct {
	// IntervalOverride forces a poll cadence for every connection.
	// Zero means the org plan decides.
	IntervalOverride time.Duration
	LockTTL          time.Duration
	JitterRatio      float64
	BatchSize        int
	MaxRetries       int
}

type AlertConfig struct {
	Debounce        time.Duration
	QuietHoursStart string
	QuietHoursEnd   string
	SpikeMultiplier float64
	SpikeMinimum    float64
	DigestDebounce  time.Duration
}

type NotifyConfig struct {
	Backend   string
	SMTPHost  string
	SMTPPort  string
	SMTPFrom  string
	Recipient string
}

type RetentionConfig struct {
	RawEventDays    int
	BackfillDays    int
	BackfillTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "apicompass"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		DefaultOrgID:      getenvInt64("DEFAULT_ORG", 0),
		AuthEncryptionKey: getenv("AUTH_ENCRYPTION_KEY", "dev-only-insecure-key"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Metrics: MetricsConfig{
			Enabled:  getenvBool("METRICS_ENABLED", true),
			Exporter: strings.ToLower(getenv("METRICS_EXPORTER", "")),
			Endpoint: strings.TrimSpace(getenv("METRICS_ENDPOINT", "")),
		},
		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "apicompass"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),
		Poll: PollConfig{
			IntervalOverride: time.Duration(getenvInt64("POLL_INTERVAL_MINUTES", 0)) * time.Minute,
			LockTTL:          time.Duration(getenvInt64("POLL_LOCK_TTL_SECONDS", 240)) * time.Second,
			JitterRatio:      getenvFloat("POLL_JITTER_RATIO", 0.1),
			BatchSize:        int(getenvInt64("POLL_BATCH_SIZE", 10)),
			MaxRetries:       int(getenvInt64("POLL_MAX_RETRIES", 3)),
		},
		Alerts: AlertConfig{
			Debounce:        time.Duration(getenvInt64("ALERT_DEBOUNCE_MINUTES", 360)) * time.Minute,
			QuietHoursStart: getenv("ALERT_QUIET_HOURS_START", "22:00"),
			QuietHoursEnd:   getenv("ALERT_QUIET_HOURS_END", "06:00"),
			SpikeMultiplier: getenvFloat("ALERT_SPIKE_MULTIPLIER", 3.0),
			SpikeMinimum:    getenvFloat("ALERT_SPIKE_MINIMUM", 5.0),
			DigestDebounce:  time.Duration(getenvInt64("ALERT_DIGEST_DEBOUNCE_HOURS", 23)) * time.Hour,
		},
		Notify: NotifyConfig{
			Backend:   strings.ToLower(getenv("NOTIFY_BACKEND", "log")),
			SMTPHost:  getenv("SMTP_HOST", "localhost"),
			SMTPPort:  getenv("SMTP_PORT", "25"),
			SMTPFrom:  getenv("SMTP_FROM", "alerts@apicompass.dev"),
			Recipient: getenv("NOTIFY_RECIPIENT", ""),
		},
		Retention: RetentionConfig{
			RawEventDays:    int(getenvInt64("RAW_EVENT_RETENTION_DAYS", 90)),
			BackfillDays:    int(getenvInt64("BACKFILL_WINDOW_DAYS", 30)),
			BackfillTimeout: time.Duration(getenvInt64("BACKFILL_TIMEOUT_SECONDS", 300)) * time.Second,
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
