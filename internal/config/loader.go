package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "depositrelay.yaml"

// CLIFlags holds command-line overrides. Nil fields were not given.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	NatsURL    *string
	CORSOrigin *string
}

// ParseFlags parses command-line arguments (without the program name).
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("depositrelay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath, port, logLevel, natsURL, corsOrigin string
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "path to YAML config file (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "HTTP listen port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&natsURL, "nats-url", "", "NATS URL for cross-instance fan-out")
	fs.StringVar(&corsOrigin, "cors-origin", "", "allowed CORS origin")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "nats-url":
			flags.NatsURL = &natsURL
		case "cors-origin":
			flags.CORSOrigin = &corsOrigin
		}
	})
	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// LoadWithCLI applies defaults < YAML < ENV < CLI and returns the config and
// the YAML path that was consulted.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil && *flags.ConfigPath != "" {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "DEPOSITRELAY_PORT")
	setString(&cfg.Server.CORSOrigin, "DEPOSITRELAY_CORS_ORIGIN")
	setDuration(&cfg.Server.ShutdownTimeout, "DEPOSITRELAY_SHUTDOWN_TIMEOUT")

	// Relay
	setDuration(&cfg.Relay.KeepAliveInterval, "DEPOSITRELAY_KEEPALIVE_INTERVAL")
	setDuration(&cfg.Relay.WriteTimeout, "DEPOSITRELAY_WRITE_TIMEOUT")
	setInt(&cfg.Relay.FanoutLimit, "DEPOSITRELAY_FANOUT_LIMIT")
	setDuration(&cfg.Relay.IdleEviction, "DEPOSITRELAY_IDLE_EVICTION")
	setDuration(&cfg.Relay.EvictionInterval, "DEPOSITRELAY_EVICTION_INTERVAL")

	// Webhook
	setString(&cfg.Webhook.Secret, "DEPOSITRELAY_WEBHOOK_SECRET")
	setString(&cfg.Webhook.Header, "DEPOSITRELAY_WEBHOOK_HEADER")

	// Provider
	setString(&cfg.Provider.BaseURL, "DEPOSITRELAY_PROVIDER_URL")
	setString(&cfg.Provider.APIKey, "DEPOSITRELAY_PROVIDER_API_KEY")
	setString(&cfg.Provider.CreatePath, "DEPOSITRELAY_PROVIDER_CREATE_PATH")
	setString(&cfg.Provider.StatusPath, "DEPOSITRELAY_PROVIDER_STATUS_PATH")
	setDuration(&cfg.Provider.Timeout, "DEPOSITRELAY_PROVIDER_TIMEOUT")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt64(&cfg.Cache.MaxSizeMB, "DEPOSITRELAY_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.StatusTTL, "DEPOSITRELAY_CACHE_STATUS_TTL")

	setFloat64(&cfg.Rate.RequestsPerSecond, "DEPOSITRELAY_RATE_RPS")
	setInt(&cfg.Rate.Burst, "DEPOSITRELAY_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "DEPOSITRELAY_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "DEPOSITRELAY_RATE_MAX_IDLE_TIME")

	setInt(&cfg.Breaker.MaxFailures, "DEPOSITRELAY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DEPOSITRELAY_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "DEPOSITRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DEPOSITRELAY_LOG_SERVICE")

	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "DEPOSITRELAY_OTEL_INSECURE")
	setBool(&cfg.OTel.Prometheus, "DEPOSITRELAY_METRICS_ENABLED")
}

// applyCLI overlays non-nil CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
	if flags.CORSOrigin != nil {
		cfg.Server.CORSOrigin = *flags.CORSOrigin
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.CORSOrigin == "" {
		return errors.New("server.cors_origin is required (use \"*\" to allow all)")
	}
	if cfg.Relay.KeepAliveInterval <= 0 {
		return errors.New("relay.keepalive_interval must be > 0")
	}
	if cfg.Relay.WriteTimeout <= 0 {
		return errors.New("relay.write_timeout must be > 0")
	}
	if cfg.Relay.FanoutLimit < 1 {
		return errors.New("relay.fanout_limit must be >= 1")
	}
	if cfg.Relay.IdleEviction > 0 && cfg.Relay.EvictionInterval <= 0 {
		return errors.New("relay.eviction_interval must be > 0 when idle eviction is enabled")
	}
	if cfg.Webhook.Header == "" {
		return errors.New("webhook.header is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
