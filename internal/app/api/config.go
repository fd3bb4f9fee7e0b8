package api

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	platformobservability "github.com/Apurer/go-gin-crud-server/internal/platform/observability"
)

// Config carries settings for the API process. Values come from an optional
// YAML file named by CONFIG_FILE; environment variables override the file.
type Config struct {
	Port            string        `yaml:"port"`
	PostgresDSN     string        `yaml:"postgresDSN"`
	ServiceName     string        `yaml:"serviceName"`
	Environment     string        `yaml:"environment"`
	LogLevel        string        `yaml:"logLevel"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

func defaultConfig() Config {
	return Config{
		Port:            "8080",
		ServiceName:     "catalog-api",
		Environment:     "local",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig reads the config file and environment variables, applies defaults,
// and validates basic constraints.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
	}

	cfg.Port = envDefault("PORT", cfg.Port)
	cfg.PostgresDSN = envDefault("POSTGRES_DSN", strings.TrimSpace(cfg.PostgresDSN))
	cfg.ServiceName = envDefault("SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = envDefault("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = envDefault("LOG_LEVEL", cfg.LogLevel)
	if raw, ok := os.LookupEnv("AUTO_MIGRATE"); ok {
		cfg.AutoMigrate = isTruthy(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("SHUTDOWN_TIMEOUT")); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT must be a duration such as 10s")
		}
		cfg.ShutdownTimeout = timeout
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// SlogLevel is the parsed LOG_LEVEL.
func (c Config) SlogLevel() slog.Level {
	level, _ := platformobservability.ParseLevel(c.LogLevel)
	return level
}

func (c Config) validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be an integer between 1 and 65535")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("SERVICE_NAME must not be empty")
	}
	if _, err := platformobservability.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func envDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func isTruthy(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes"
}
