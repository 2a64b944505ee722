// Package config loads application settings from, in order of precedence,
// command-line flags, GATEHOUSE_* environment variables, and an optional
// gatehouse.yaml file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration.
type Config struct {
	Environment string // "development" or "production"
	BaseURL     string // public URL, used in verification links and OAuth redirects
	Host        string
	Port        int
	LogLevel    string

	// TrustedOrigins is the CORS allow-list. The local dev origin is always
	// included.
	TrustedOrigins []string

	// AuthSecret signs OAuth state parameters. Must be set in production.
	AuthSecret string

	// SignupDisabled turns off email/password sign-up. Existing users can
	// still sign in, and OAuth is unaffected.
	SignupDisabled bool

	Database DatabaseConfig
	Google   GoogleConfig
	SMTP     SMTPConfig
	Storage  StorageConfig
}

type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether Google OAuth credentials are configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether outbound mail can actually be sent.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.From != ""
}

type StorageConfig struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// Configured reports whether an avatar bucket is available.
func (s StorageConfig) Configured() bool {
	return s.Bucket != ""
}

const devOrigin = "http://localhost:5173"

// Load resolves the configuration from viper's current state.
func Load() (*Config, error) {
	viper.SetDefault("environment", "development")
	viper.SetDefault("base_url", "http://localhost:8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "gatehouse.db")
	viper.SetDefault("storage.region", "auto")

	cfg := &Config{
		Environment:    viper.GetString("environment"),
		BaseURL:        strings.TrimSuffix(viper.GetString("base_url"), "/"),
		Host:           viper.GetString("server.host"),
		Port:           viper.GetInt("server.port"),
		LogLevel:       viper.GetString("log_level"),
		TrustedOrigins: parseOrigins(viper.GetString("trusted_origins")),
		AuthSecret:     viper.GetString("auth.secret"),
		SignupDisabled: viper.GetBool("auth.signup_disabled"),
		Database: DatabaseConfig{
			Driver: viper.GetString("database.driver"),
			DSN:    viper.GetString("database.dsn"),
		},
		Google: GoogleConfig{
			ClientID:     viper.GetString("google.client_id"),
			ClientSecret: viper.GetString("google.client_secret"),
		},
		SMTP: SMTPConfig{
			Host:     viper.GetString("smtp.host"),
			Port:     viper.GetInt("smtp.port"),
			Username: viper.GetString("smtp.username"),
			Password: viper.GetString("smtp.password"),
			From:     viper.GetString("smtp.from"),
		},
		Storage: StorageConfig{
			Bucket:       viper.GetString("storage.bucket"),
			Region:       viper.GetString("storage.region"),
			BaseEndpoint: viper.GetString("storage.endpoint"),
			AccessKey:    viper.GetString("storage.access_key"),
			SecretKey:    viper.GetString("storage.secret_key"),
		},
	}

	if cfg.Production() && cfg.AuthSecret == "" {
		return nil, fmt.Errorf("auth.secret is required in production")
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "gatehouse-dev-secret-change-me"
	}
	return cfg, nil
}

// Production reports whether the app runs with production hardening (HSTS,
// secure cookies, generic 500 bodies).
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// parseOrigins splits a comma-separated origin list, always keeping the
// local dev origin.
func parseOrigins(raw string) []string {
	origins := []string{devOrigin}
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" && o != devOrigin {
			origins = append(origins, o)
		}
	}
	return origins
}
