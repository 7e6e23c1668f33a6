// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-sql-driver/mysql"
)

// devSecretKey is the fallback signing key used only outside production.
const devSecretKey = "dev-secret-key-do-not-use-in-production!!"

// Session backends.
const (
	SessionModeStateful  = "stateful"
	SessionModeStateless = "stateless"
)

// Password hashing algorithms.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// Mail transports.
const (
	MailTransportSMTP  = "smtp"
	MailTransportKafka = "kafka"
	MailTransportLog   = "log"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `env:"ENV" envDefault:"development"`

	// Port is the HTTP listen port (default: 3000).
	Port int `env:"PORT" envDefault:"3000"`

	// BaseURL is the public-facing URL of this API.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`

	// FrontendURL is where password reset links point.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	// CORSAllowedOrigins lists the browser origins allowed to call the API.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173,http://localhost:3000" envSeparator:","`

	// TrustedProxies lists CIDRs whose forwarding headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fd00::/8" envSeparator:","`

	// AdminKeys are the shared secrets accepted by the admin gate.
	AdminKeys []string `env:"ADMIN_KEYS" envSeparator:","`

	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Mail      MailConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format.
	// If no port is specified, 3306 is appended automatically.
	Host string `env:"DB_HOST" envDefault:"localhost:3306"`

	User     string `env:"DB_USER" envDefault:"root"`
	Password string `env:"DB_PASSWORD" envDefault:"root"`
	Name     string `env:"DB_NAME" envDefault:"rootapp"`

	// URL, when set, is used verbatim as the driver DSN.
	URL string `env:"DATABASE_URL"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"db/migrations"`

	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"true"`
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SecretKey signs stateless session tokens (32+ characters in production).
	SecretKey string `env:"SECRET_KEY"`

	// SessionMode selects the session backend: "stateful" or "stateless".
	SessionMode string `env:"SESSION_MODE" envDefault:"stateful"`

	// SessionTTL is how long sessions last before expiring.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// PasswordHasher selects the algorithm for new hashes.
	PasswordHasher string `env:"PASSWORD_HASHER" envDefault:"bcrypt"`

	// BcryptCost is the bcrypt work factor.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// ResetTokenTTL is how long a password reset token stays valid.
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"30m"`
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	// Transport is one of "smtp", "kafka", or "log".
	Transport string `env:"MAIL_TRANSPORT" envDefault:"log"`

	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPFromAddress string `env:"SMTP_FROM_ADDRESS" envDefault:"no-reply@localhost"`
	SMTPFromName    string `env:"SMTP_FROM_NAME" envDefault:"Root"`

	// SMTPEncryption is "starttls", "ssl", or "none".
	SMTPEncryption string `env:"SMTP_ENCRYPTION" envDefault:"starttls"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_MAIL_TOPIC" envDefault:"auth.events"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate   float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

// RateLimitConfig holds per-IP limits for the public auth endpoints.
type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"0.2"`
	Burst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = devSecretKey
	}

	return cfg, nil
}

// validate checks enumerated settings and production-only requirements.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}

	switch c.Auth.SessionMode {
	case SessionModeStateful, SessionModeStateless:
	default:
		return fmt.Errorf("SESSION_MODE must be %q or %q, got %q",
			SessionModeStateful, SessionModeStateless, c.Auth.SessionMode)
	}

	switch c.Auth.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return fmt.Errorf("PASSWORD_HASHER must be %q or %q, got %q",
			HasherBcrypt, HasherArgon2id, c.Auth.PasswordHasher)
	}

	switch c.Mail.Transport {
	case MailTransportSMTP, MailTransportKafka, MailTransportLog:
	default:
		return fmt.Errorf("MAIL_TRANSPORT must be smtp, kafka, or log, got %q", c.Mail.Transport)
	}

	if c.Auth.ResetTokenTTL <= 0 {
		return fmt.Errorf("RESET_TOKEN_TTL must be positive")
	}

	// Case-insensitive check catches common variants like "Production", "prod".
	if c.IsProduction() {
		if c.Auth.SecretKey == "" {
			return fmt.Errorf("SECRET_KEY is required in production")
		}
		if len(c.Auth.SecretKey) < 32 {
			return fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
		}
		if c.Mail.Transport == MailTransportLog {
			return fmt.Errorf("MAIL_TRANSPORT=log is not allowed in production")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}
