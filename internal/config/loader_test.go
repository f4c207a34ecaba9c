package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "*" {
		t.Errorf("expected cors origin *, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Relay.KeepAliveInterval != 20*time.Second {
		t.Errorf("expected keep-alive 20s, got %v", cfg.Relay.KeepAliveInterval)
	}
	if cfg.Webhook.Header != "X-ATL-Signature" {
		t.Errorf("expected webhook header X-ATL-Signature, got %s", cfg.Webhook.Header)
	}
	if cfg.NATS.URL != "" {
		t.Errorf("expected NATS disabled by default, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
relay:
  keepalive_interval: 5s
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Relay.KeepAliveInterval != 5*time.Second {
		t.Errorf("expected keep-alive 5s, got %v", cfg.Relay.KeepAliveInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Relay.WriteTimeout != 10*time.Second {
		t.Errorf("expected default write timeout, got %v", cfg.Relay.WriteTimeout)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Error("expected parse error for invalid YAML")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("DEPOSITRELAY_PORT", "7070")
	t.Setenv("DEPOSITRELAY_WEBHOOK_SECRET", "s3cret")
	t.Setenv("DEPOSITRELAY_KEEPALIVE_INTERVAL", "15s")
	t.Setenv("DEPOSITRELAY_FANOUT_LIMIT", "8")
	t.Setenv("DEPOSITRELAY_LOG_LEVEL", "warn")
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("DEPOSITRELAY_METRICS_ENABLED", "false")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Webhook.Secret != "s3cret" {
		t.Errorf("expected webhook secret from env, got %q", cfg.Webhook.Secret)
	}
	if cfg.Relay.KeepAliveInterval != 15*time.Second {
		t.Errorf("expected keep-alive 15s, got %v", cfg.Relay.KeepAliveInterval)
	}
	if cfg.Relay.FanoutLimit != 8 {
		t.Errorf("expected fanout limit 8, got %d", cfg.Relay.FanoutLimit)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("expected NATS URL from env, got %s", cfg.NATS.URL)
	}
	if cfg.OTel.Prometheus {
		t.Error("expected metrics disabled from env")
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()

	t.Setenv("DEPOSITRELAY_KEEPALIVE_INTERVAL", "soon")
	t.Setenv("DEPOSITRELAY_FANOUT_LIMIT", "many")

	loadEnv(&cfg)

	if cfg.Relay.KeepAliveInterval != 20*time.Second {
		t.Errorf("expected default keep-alive, got %v", cfg.Relay.KeepAliveInterval)
	}
	if cfg.Relay.FanoutLimit != 64 {
		t.Errorf("expected default fanout limit, got %d", cfg.Relay.FanoutLimit)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"empty cors origin", func(c *Config) { c.Server.CORSOrigin = "" }},
		{"zero keep-alive", func(c *Config) { c.Relay.KeepAliveInterval = 0 }},
		{"zero write timeout", func(c *Config) { c.Relay.WriteTimeout = 0 }},
		{"zero fanout", func(c *Config) { c.Relay.FanoutLimit = 0 }},
		{"eviction without interval", func(c *Config) { c.Relay.EvictionInterval = 0 }},
		{"empty webhook header", func(c *Config) { c.Webhook.Header = "" }},
		{"zero breaker failures", func(c *Config) { c.Breaker.MaxFailures = 0 }},
		{"zero rate", func(c *Config) { c.Rate.RequestsPerSecond = 0 }},
		{"zero burst", func(c *Config) { c.Rate.Burst = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should be valid, got %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"--port", "9090", "--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "9090" {
		t.Errorf("expected port 9090, got %v", flags.Port)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Errorf("expected log-level debug, got %v", flags.LogLevel)
	}
	// Unset flags remain nil
	if flags.NatsURL != nil {
		t.Errorf("expected nil NatsURL, got %v", *flags.NatsURL)
	}
	if flags.ConfigPath != nil {
		t.Errorf("expected nil ConfigPath, got %v", *flags.ConfigPath)
	}
}

func TestParseFlagsShorthand(t *testing.T) {
	flags, err := ParseFlags([]string{"-p", "7070", "-c", "custom.yaml"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "7070" {
		t.Errorf("expected port 7070, got %v", flags.Port)
	}
	if flags.ConfigPath == nil || *flags.ConfigPath != "custom.yaml" {
		t.Errorf("expected config custom.yaml, got %v", flags.ConfigPath)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	_, err := ParseFlags([]string{"--unknown-flag"})
	if err == nil {
		t.Error("expected error for unknown flag, got nil")
	}
}

func TestApplyCLINilFlags(t *testing.T) {
	cfg := Defaults()
	original := cfg

	// All-nil flags should change nothing.
	applyCLI(&cfg, CLIFlags{})

	if cfg != original {
		t.Errorf("config changed by nil flags: %+v", cfg)
	}
}

func TestCLIOverridesEnv(t *testing.T) {
	// CLI flags must win over ENV.
	t.Setenv("DEPOSITRELAY_PORT", "7070")
	t.Setenv("DEPOSITRELAY_CORS_ORIGIN", "https://env.example")

	flags, err := ParseFlags([]string{"--port", "3333", "--cors-origin", "https://cli.example"})
	if err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "3333" {
		t.Errorf("expected CLI port 3333 to override ENV 7070, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "https://cli.example" {
		t.Errorf("expected CLI cors origin, got %s", cfg.Server.CORSOrigin)
	}
}

func TestLoadWithCLICustomConfig(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: "5555"
webhook:
  secret: "from-yaml"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	flags, err := ParseFlags([]string{"--config", yamlPath})
	if err != nil {
		t.Fatal(err)
	}

	cfg, resolvedPath, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}

	if resolvedPath != yamlPath {
		t.Errorf("expected resolved path %s, got %s", yamlPath, resolvedPath)
	}
	if cfg.Server.Port != "5555" {
		t.Errorf("expected port 5555 from custom YAML, got %s", cfg.Server.Port)
	}
	if cfg.Webhook.Secret != "from-yaml" {
		t.Errorf("expected webhook secret from YAML, got %q", cfg.Webhook.Secret)
	}
}
