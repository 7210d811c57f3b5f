// Package config loads application configuration from .env, an optional
// config.yml and the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverHybrid = "hybrid"
	DriverMongo  = "mongo"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string        `mapstructure:"PORT"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	BadgerPath     string        `mapstructure:"BADGER_PATH"`
	MongoURI       string        `mapstructure:"MONGODB_URI"`
	MongoDatabase  string        `mapstructure:"MONGODB_DATABASE"`
	AllowedOrigins string        `mapstructure:"ALLOWED_ORIGINS"`
	Env            string        `mapstructure:"APP_ENV"`
	GCInterval     time.Duration `mapstructure:"GC_INTERVAL"`
}

// Load reads .env (if present) into the process environment, then
// config.yml (if present), then environment variables, over defaults.
// It does not validate: callers apply their own overrides first, then
// call Validate.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	v.SetDefault("PORT", "4000")
	v.SetDefault("STORE_DRIVER", DriverHybrid)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("BADGER_PATH", "./badger-data")
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "postkeeper")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("GC_INTERVAL", "5m")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}

// Validate ensures that required configuration values are present.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	switch c.StoreDriver {
	case DriverHybrid:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the hybrid store")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required for the mongo store")
		}
		if c.MongoDatabase == "" {
			return errors.New("MONGODB_DATABASE is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.GCInterval <= 0 {
		return errors.New("GC_INTERVAL must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}
