package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

const envPrefix = "MARKET_ANALYZER_"

// Config holds everything read from the environment at start-up.
type Config struct {
	PlacesAPIKey     string
	PageSpeedAPIKey  string
	PlacesBaseURL    string        `validate:"required,url"`
	PageSpeedBaseURL string        `validate:"required,url"`
	HTTPTimeout      time.Duration `validate:"min=1s,max=5m"`
	MaxRetries       int           `validate:"min=0,max=10"`
	RateLimit        float64       `validate:"gt=0"`
	CacheTTL         time.Duration `validate:"min=0"`
	AuditConcurrency int           `validate:"min=1,max=16"`
	LogLevel         string        `validate:"oneof=trace debug info warn warning error"`
}

func defaultConfig() *Config {
	return &Config{
		PlacesBaseURL:    googleapi.DefaultPlacesBaseURL,
		PageSpeedBaseURL: googleapi.DefaultPageSpeedBaseURL,
		HTTPTimeout:      60 * time.Second,
		MaxRetries:       3,
		RateLimit:        5,
		CacheTTL:         10 * time.Minute,
		AuditConcurrency: 4,
		LogLevel:         "info",
	}
}

// LoadConfig reads envFile (or ./.env when envFile is empty and the file
// exists) into the environment, then builds and validates a Config.
// Variables already set in the environment take precedence over the file.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file '%s': %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := defaultConfig()
	cfg.PlacesAPIKey = firstNonEmpty(os.Getenv("GOOGLE_MAPS_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
	cfg.PageSpeedAPIKey = firstNonEmpty(os.Getenv("PAGESPEED_API_KEY"), os.Getenv("GOOGLE_API_KEY"))

	if v := os.Getenv(envPrefix + "PLACES_BASE_URL"); v != "" {
		cfg.PlacesBaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(envPrefix + "PAGESPEED_BASE_URL"); v != "" {
		cfg.PageSpeedBaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	var err error
	if cfg.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = envDuration("CACHE_TTL", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = envInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.AuditConcurrency, err = envInt("AUDIT_CONCURRENCY", cfg.AuditConcurrency); err != nil {
		return nil, err
	}
	if v := os.Getenv(envPrefix + "RATE_LIMIT"); v != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid %sRATE_LIMIT '%s': %w", envPrefix, v, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ClientOptions maps the configuration onto the Google client.
func (c *Config) ClientOptions(logger logrus.FieldLogger) googleapi.Options {
	return googleapi.Options{
		PlacesAPIKey:     c.PlacesAPIKey,
		PageSpeedAPIKey:  c.PageSpeedAPIKey,
		PlacesBaseURL:    c.PlacesBaseURL,
		PageSpeedBaseURL: c.PageSpeedBaseURL,
		Timeout:          c.HTTPTimeout,
		MaxRetries:       c.MaxRetries,
		RequestsPerSec:   c.RateLimit,
		CacheTTL:         c.CacheTTL,
		Logger:           logger,
	}
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s '%s': %w", envPrefix, name, v, err)
	}
	return d, nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s '%s': %w", envPrefix, name, v, err)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// setupLogging sends logrus output to stderr; stdout belongs to the MCP stdio transport.
func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
