package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
	Auth          AuthConfig
	Platform      PlatformConfig
	Catalog       CatalogConfig
	Redis         RedisConfig
	NATS          NATSConfig
	Mail          MailConfig
	Analytics     AnalyticsConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// AuthConfig holds bearer token verification settings.
// Tokens are issued by the platform; this service only verifies them.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// PlatformConfig points at the LMS REST API
type PlatformConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RetryCount   int
}

// CatalogConfig points at the enterprise catalog service
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RedisConfig configures the optional course mode cache.
// An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NATSConfig configures the event publisher.
// An empty URL falls back to log-only publishing.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// MailConfig holds SMTP settings for coupon code requests
type MailConfig struct {
	Host                 string
	Port                 int
	Username             string
	Password             string
	From                 string
	CustomerSuccessEmail string
}

// AnalyticsConfig holds the embedded analytics shared secret
type AnalyticsConfig struct {
	PlotlySecret string
	TokenTTL     time.Duration
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "75s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "enterprise"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "enterprise"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "enterprise-api"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			JWTIssuer:   getEnv("JWT_ISSUER", ""),
			JWTAudience: getEnv("JWT_AUDIENCE", ""),
		},
		Platform: PlatformConfig{
			BaseURL:      strings.TrimRight(getEnv("LMS_BASE_URL", "http://localhost:18000"), "/"),
			ClientID:     getEnv("LMS_CLIENT_ID", ""),
			ClientSecret: getEnv("LMS_CLIENT_SECRET", ""),
			Timeout:      parseDuration("LMS_TIMEOUT", "10s"),
			RetryCount:   parseInt("LMS_RETRY_COUNT", 2),
		},
		Catalog: CatalogConfig{
			BaseURL: strings.TrimRight(getEnv("ENTERPRISE_CATALOG_URL", "http://localhost:18160"), "/"),
			Timeout: parseDuration("ENTERPRISE_CATALOG_TIMEOUT", "10s"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
			TTL:      parseDuration("COURSE_MODE_CACHE_TTL", "10m"),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "enterprise"),
		},
		Mail: MailConfig{
			Host:                 getEnv("SMTP_HOST", "localhost"),
			Port:                 parseInt("SMTP_PORT", 25),
			Username:             getEnv("SMTP_USERNAME", ""),
			Password:             getEnv("SMTP_PASSWORD", ""),
			From:                 getEnv("DEFAULT_FROM_EMAIL", "no-reply@example.com"),
			CustomerSuccessEmail: getEnv("ENTERPRISE_CUSTOMER_SUCCESS_EMAIL", "customersuccess@example.com"),
		},
		Analytics: AnalyticsConfig{
			PlotlySecret: getEnv("ENTERPRISE_PLOTLY_SECRET", ""),
			TokenTTL:     parseDuration("ENTERPRISE_PLOTLY_TOKEN_TTL", "1h"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATELIMIT_RPS and RATELIMIT_BURST must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
