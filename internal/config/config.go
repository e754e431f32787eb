// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Defaults target local development.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup and passed to other packages by value or pointer.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `env:"ENV" envDefault:"development"`

	// Port is the HTTP listen port.
	Port int `env:"PORT" envDefault:"8080"`

	// BaseURL is the public-facing URL used in notification links.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
}

// DatabaseConfig holds MariaDB/MySQL connection parameters. If DATABASE_URL
// is set it takes precedence over the individual fields.
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost:3306"`
	User     string `env:"DB_USER" envDefault:"darim"`
	Password string `env:"DB_PASSWORD" envDefault:"darim"`
	Name     string `env:"DB_NAME" envDefault:"darim"`

	// URL bypasses the individual fields when non-empty.
	URL string `env:"DATABASE_URL"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN returns the go-sql-driver/mysql connection string. Built through the
// driver's Config.FormatDSN so special characters in passwords survive.
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
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379/0").
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

// AuthConfig holds session and token lifetimes. The stores apply these as
// Redis key TTLs.
type AuthConfig struct {
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SignUpTokenTTL   time.Duration `env:"SIGN_UP_TOKEN_TTL" envDefault:"1h"`
	PasswordTokenTTL time.Duration `env:"PASSWORD_TOKEN_TTL" envDefault:"1h"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Enabled     bool   `env:"SMTP_ENABLED" envDefault:"false"`
	Host        string `env:"SMTP_HOST"`
	Port        int    `env:"SMTP_PORT" envDefault:"587"`
	Username    string `env:"SMTP_USERNAME"`
	Password    string `env:"SMTP_PASSWORD"`
	FromAddress string `env:"SMTP_FROM_ADDRESS" envDefault:"no-reply@darim.localhost"`
	FromName    string `env:"SMTP_FROM_NAME" envDefault:"Darim"`

	// Encryption is "starttls", "ssl", or "none".
	Encryption string `env:"SMTP_ENCRYPTION" envDefault:"starttls"`
}

// Load reads configuration from environment variables. Returns an error if a
// variable fails to parse or a production requirement is not met.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.SMTP.Encryption) {
	case "starttls", "ssl", "none":
	default:
		return fmt.Errorf("SMTP_ENCRYPTION must be one of starttls, ssl, none; got %q", c.SMTP.Encryption)
	}

	if c.IsDevelopment() {
		return nil
	}

	if c.SMTP.Enabled && c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST is required when SMTP_ENABLED is set in production")
	}
	if c.SMTP.Enabled && c.SMTP.Username != "" && c.SMTP.Password == "" {
		return fmt.Errorf("SMTP_PASSWORD is required when SMTP_USERNAME is set in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}
