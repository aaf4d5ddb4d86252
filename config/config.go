// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"agriflow/cache"
	"agriflow/logging"
	"agriflow/metrics"
	"agriflow/spraying"
)

type HTTPConfig struct {
	Addr          string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	WebhookSecret string        `yaml:"webhook_secret"`
}

type Config struct {
	HTTP     HTTPConfig       `yaml:"http"`
	Database DatabaseConfig   `yaml:"database"`
	Auth     AuthConfig       `yaml:"auth"`
	Redis    cache.Config     `yaml:"redis"`
	Log      logging.Config   `yaml:"log"`
	Pricing  spraying.Pricing `yaml:"pricing"`
	Metrics  metrics.Config   `yaml:"metrics"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:          ":8080",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  15 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		Database: DatabaseConfig{MaxConns: 10},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Redis:    cache.Config{TTL: time.Minute, Prefix: "agriflow"},
		Log:      logging.Config{Level: "info", Format: "json", Output: "stdout"},
		Pricing:  spraying.DefaultPricing(),
		Metrics:  metrics.Config{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
	}
	if v, ok := lookup("JWT_SECRET"); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup("PAYMENT_WEBHOOK_SECRET"); ok && v != "" {
		c.Auth.WebhookSecret = v
	}
	if v, ok := lookup("HTTP_ADDR"); ok && v != "" {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("DB_MAX_CONNS"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("config: DB_MAX_CONNS: %w", err)
		}
		c.Database.MaxConns = int32(n)
	}
	return nil
}

// ValidateServe reports settings the API server cannot start without.
func (c *Config) ValidateServe() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Pricing.PerTank <= 0 {
		errs = append(errs, errors.New("pricing per_tank must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
