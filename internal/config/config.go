// Package config provides hierarchical configuration loading for the deposit relay.
// Precedence: defaults < YAML file < environment variables < CLI flags.
package config

import "time"

// Config holds all runtime configuration for the relay service.
type Config struct {
	Server   Server   `yaml:"server"`
	Relay    Relay    `yaml:"relay"`
	Webhook  Webhook  `yaml:"webhook"`
	Provider Provider `yaml:"provider"`
	NATS     NATS     `yaml:"nats"`
	Cache    Cache    `yaml:"cache"`
	Rate     Rate     `yaml:"rate"`
	Breaker  Breaker  `yaml:"breaker"`
	Logging  Logging  `yaml:"logging"`
	OTel     OTel     `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port            string        `yaml:"port"`
	CORSOrigin      string        `yaml:"cors_origin"` // "*" allows all origins
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Relay holds broadcast actor tuning.
type Relay struct {
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	FanoutLimit       int           `yaml:"fanout_limit"`
	IdleEviction      time.Duration `yaml:"idle_eviction"`    // idle actors older than this are discarded
	EvictionInterval  time.Duration `yaml:"eviction_interval"` // how often the janitor runs
}

// Webhook holds provider webhook verification settings.
type Webhook struct {
	Secret string `yaml:"secret"` //nolint:gosec // config field name, not a hardcoded secret
	Header string `yaml:"header"`
}

// Provider holds the payment provider API client configuration.
type Provider struct {
	BaseURL    string        `yaml:"base_url"` // empty disables the deposit proxy routes
	APIKey     string        `yaml:"api_key"`
	CreatePath string        `yaml:"create_path"`
	StatusPath string        `yaml:"status_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// NATS holds the optional cross-instance fan-out bus. An empty URL keeps
// fan-out in process.
type NATS struct {
	URL string `yaml:"url"`
}

// Cache holds the provider status response cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	StatusTTL time.Duration `yaml:"status_ttl"` // 0 disables caching
}

// Rate holds per-IP rate limiting for the provider proxy routes.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Breaker holds circuit breaker configuration for provider calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// OTel holds telemetry export configuration.
type OTel struct {
	Endpoint   string `yaml:"endpoint"` // OTLP gRPC endpoint; empty disables export
	Insecure   bool   `yaml:"insecure"`
	Prometheus bool   `yaml:"prometheus"` // serve /metrics
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            "8080",
			CORSOrigin:      "*",
			ShutdownTimeout: 10 * time.Second,
		},
		Relay: Relay{
			KeepAliveInterval: 20 * time.Second,
			WriteTimeout:      10 * time.Second,
			FanoutLimit:       64,
			IdleEviction:      10 * time.Minute,
			EvictionInterval:  time.Minute,
		},
		Webhook: Webhook{
			Header: "X-ATL-Signature",
		},
		Provider: Provider{
			CreatePath: "/deposit/create",
			StatusPath: "/deposit/status",
			Timeout:    10 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB: 16,
			StatusTTL: 3 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 5,
			Burst:             20,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "depositrelay",
		},
		OTel: OTel{
			Prometheus: true,
		},
	}
}
