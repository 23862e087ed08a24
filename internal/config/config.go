package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port            string
	Store           string
	SeedFile        string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
	JWTSecret       string
	AwardRateLimit  float64
	AwardRateBurst  int
}

var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"ledger.store":            "LEDGER_STORE",
	"ledger.seed_file":        "LEDGER_SEED_FILE",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",

	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",

	"ratelimit.awards_per_second": "RATE_LIMIT_AWARDS_PER_SECOND",
	"ratelimit.awards_burst":      "RATE_LIMIT_AWARDS_BURST",
}

// Init reads an optional .env file and binds environment variables. Values from the
// environment win over the file.
func Init(configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config file not found, using defaults: %w", err)
		}
		exportFlatKeys()
	}
	return nil
}

// exportFlatKeys copies KEY=value entries of a .env file into unset environment
// variables so they reach the bound keys.
func exportFlatKeys() {
	for _, env := range envBindings {
		if _, ok := os.LookupEnv(env); ok {
			continue
		}
		if v := viper.GetString(strings.ToLower(env)); v != "" {
			os.Setenv(env, v)
		}
	}
}

// Load returns the service configuration with defaults applied
func Load() (*Config, error) {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("ledger.store", StorePostgres)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("ratelimit.awards_per_second", 5.0)
	viper.SetDefault("ratelimit.awards_burst", 10)

	cfg := &Config{
		Port:            viper.GetString("server.port"),
		Store:           viper.GetString("ledger.store"),
		SeedFile:        viper.GetString("ledger.seed_file"),
		ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
		LogLevel:        viper.GetString("log.level"),
		LogFormat:       viper.GetString("log.format"),
		JWTSecret:       viper.GetString("jwt.secret_key"),
		AwardRateLimit:  viper.GetFloat64("ratelimit.awards_per_second"),
		AwardRateBurst:  viper.GetInt("ratelimit.awards_burst"),
	}

	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("unknown ledger store %q", cfg.Store)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt.secret_key (JWT_SECRET_KEY) is required")
	}
	if cfg.AwardRateLimit <= 0 || cfg.AwardRateBurst <= 0 {
		return nil, fmt.Errorf("award rate limit must be positive")
	}
	return cfg, nil
}
