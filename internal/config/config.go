package config

import (
	"fmt"
	"time"

	"github.com/auric/api/pkg/config"
	"github.com/auric/api/pkg/database"
)

// Config holds all configuration for the API service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"auric-api"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"auric"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"auric_secret"`
	DBName     string `env:"DB_NAME" envDefault:"auric"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"auric"`
	JWTAudience    string        `env:"JWT_AUDIENCE" envDefault:"auric.app"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`

	RefreshTokenTTL   time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	MaxActiveSessions int           `env:"MAX_ACTIVE_SESSIONS" envDefault:"5"`
	SessionScanLimit  int           `env:"SESSION_SCAN_LIMIT" envDefault:"50"`
	ReuseScanLimit    int           `env:"REUSE_SCAN_LIMIT" envDefault:"100"`
	CookieDomain      string        `env:"COOKIE_DOMAIN" envDefault:""`
	CookieSecure      bool          `env:"COOKIE_SECURE" envDefault:"false"`

	OTPCodeTTL        time.Duration `env:"OTP_CODE_TTL" envDefault:"5m"`
	OTPMaxAttempts    int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPSendLimit      int           `env:"OTP_SEND_LIMIT" envDefault:"3"`
	OTPSendWindow     time.Duration `env:"OTP_SEND_WINDOW" envDefault:"10m"`
	UserIDPrefix      string        `env:"USER_ID_PREFIX" envDefault:"IND"`
	JanitorInterval   time.Duration `env:"JANITOR_INTERVAL" envDefault:"1h"`
	RevokedRetention  time.Duration `env:"REVOKED_RETENTION" envDefault:"720h"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, fmt.Errorf("load api config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if cfg.Environment != "development" {
		if cfg.JWTSecret == "dev-secret-change-me" {
			return nil, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
		}
	}

	return cfg, nil
}

// Postgres returns the database pool configuration derived from the config.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.DBHost
	pg.Port = c.DBPort
	pg.User = c.DBUser
	pg.Password = c.DBPassword
	pg.DBName = c.DBName
	pg.SSLMode = c.DBSSLMode
	return pg
}

// Redis returns the Redis client configuration derived from the config.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
