package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort string

	// Database
	DatabaseType string // sqlite (default), postgres, mysql
	DatabasePath string // sqlite only
	DatabaseURL  string // postgres/mysql

	MigrationsPath string

	// JWT signing. The secret is shared by every instance that
	// validates tokens issued elsewhere.
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Ephemeral credentials
	CredentialBackend string // memory (default), redis
	RedisAddr         string
	RedisPassword     string
	OTPTTL            time.Duration
	ResetTokenTTL     time.Duration

	// Reminder scheduler
	SchedulerPeriod time.Duration
	DispatchTimeout time.Duration

	// Email (SES)
	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	AppBaseURL   string
	EmailDebug   bool

	// Optional remote quote endpoint for /health
	QuotesURL string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	return &Config{
		ServerPort: getEnv("PORT", "8080"),

		DatabaseType:   getEnv("DB_TYPE", "sqlite"),
		DatabasePath:   getEnv("DB_PATH", "./taskhive.db"),
		DatabaseURL:    getEnv("DB_URL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		CredentialBackend: getEnv("CREDENTIAL_BACKEND", "memory"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		OTPTTL:            getDuration("OTP_TTL", 5*time.Minute),
		ResetTokenTTL:     getDuration("RESET_TOKEN_TTL", time.Hour),

		SchedulerPeriod: getDuration("SCHEDULER_PERIOD", time.Minute),
		DispatchTimeout: getDuration("DISPATCH_TIMEOUT", 10*time.Second),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Taskhive"),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),
		EmailDebug:   getBool("EMAIL_DEBUG", false),

		QuotesURL: getEnv("QUOTES_URL", ""),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration reads a duration environment variable (e.g. "5m", "24h")
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s: %q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

// getBool reads a boolean environment variable
func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
