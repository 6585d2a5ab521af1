package app

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	APIURL   string `env:"TABCHAT_API_URL"   envDefault:"http://localhost:8080"` // base URL of the auth service
	ClientID string `env:"TABCHAT_CLIENT_ID" envDefault:"tabchat-cli"`           // OAuth2 client id sent with token requests

	DatabaseFile  string `env:"TABCHAT_DATABASE_FILE"   envDefault:"tabchat.db"`  // local SQLite file, ":memory:" for a throwaway db
	MasterKey     string `env:"TABCHAT_MASTER_KEY"`                               // Optional: key material for the encrypted preferences
	MasterKeyPath string `env:"TABCHAT_MASTER_KEY_PATH" envDefault:"tabchat.key"` // used when MasterKey is empty; created on first run

	HTTPTimeout    time.Duration `env:"TABCHAT_HTTP_TIMEOUT"     envDefault:"10s"`
	RateLimit      float64       `env:"TABCHAT_RATE_LIMIT"       envDefault:"0"` // requests per second to the auth service, 0 disables
	AccessTokenTTL time.Duration `env:"TABCHAT_ACCESS_TOKEN_TTL" envDefault:"15m"`

	Env       string `env:"ENV"        envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer `env:"-"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfigFrom reads the configuration from environ instead of the process
// environment. Unset keys take their defaults.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid TABCHAT_API_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid TABCHAT_API_URL %q: want an http(s) URL", c.APIURL)
	}
	if c.DatabaseFile == "" {
		return fmt.Errorf("TABCHAT_DATABASE_FILE must not be empty")
	}
	if c.MasterKey == "" && c.MasterKeyPath == "" {
		return fmt.Errorf("one of TABCHAT_MASTER_KEY or TABCHAT_MASTER_KEY_PATH is required")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("TABCHAT_RATE_LIMIT must not be negative")
	}
	return nil
}
