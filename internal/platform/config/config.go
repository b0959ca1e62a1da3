package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	Environment        string
	NATSURL            string
	NATSSubjectPrefix  string
	RunMigrations      bool
	MigrationsDir      string
	RunSeed            bool
	SeedFixture        string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	MetricsEnabled     bool
	DefaultRequestType string
	ShutdownTimeout    time.Duration
	LogLevel           string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPUseTLS   bool
	EmailFrom    string

	ReminderInterval         time.Duration
	ReminderAfter            time.Duration
	IdempotencyTTL           time.Duration
	IdempotencyPurgeInterval time.Duration
}

func Load() Config {
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		Environment:        getEnv("APP_ENV", "development"),
		NATSURL:            getEnv("NATS_URL", ""),
		NATSSubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", "absence"),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "migrations"),
		RunSeed:            getEnvBool("RUN_SEED", false),
		SeedFixture:        getEnv("SEED_FIXTURE", ""),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		DefaultRequestType: getEnv("DEFAULT_REQUEST_TYPE", "LEAVE_REQUEST"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:   getEnvBool("SMTP_USE_TLS", true),
		EmailFrom:    getEnv("EMAIL_FROM", "absence@localhost"),

		ReminderInterval:         getEnvDuration("REMINDER_INTERVAL", time.Hour),
		ReminderAfter:            getEnvDuration("REMINDER_AFTER", 48*time.Hour),
		IdempotencyTTL:           getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyPurgeInterval: getEnvDuration("IDEMPOTENCY_PURGE_INTERVAL", time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
		}
		if c.RunSeed {
			return fmt.Errorf("RUN_SEED must be disabled in production")
		}
	}
	if c.RunSeed && strings.TrimSpace(c.SeedFixture) == "" {
		return fmt.Errorf("SEED_FIXTURE must be set when RUN_SEED is true")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if strings.TrimSpace(c.DefaultRequestType) == "" {
		return fmt.Errorf("DEFAULT_REQUEST_TYPE must not be empty")
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || strings.TrimSpace(c.EmailFrom) == "") {
		return fmt.Errorf("SMTP_PORT and EMAIL_FROM are required when SMTP_HOST is set")
	}
	if c.ReminderInterval > 0 && c.ReminderAfter <= 0 {
		return fmt.Errorf("REMINDER_AFTER must be positive when reminders are enabled")
	}
	if c.IdempotencyPurgeInterval > 0 && c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive when purging is enabled")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}
