// Package config loads and validates the daemon's YAML configuration:
// NATS connection, metrics server, dispatch tuning, the tag and station
// registries, printer addresses, and ticket style options.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/registry"
	"github.com/GetwithitMan/gwi-pos-sub005/routing"
)

// Config is the complete daemon configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Log      LogConfig      `yaml:"log"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Display  DisplayConfig  `yaml:"display"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Tags     []TagConfig    `yaml:"tags"`
	Stations []StationConfig `yaml:"stations"`
}

// ServiceConfig identifies the daemon instance.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // "prod", "dev", "test"
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// NATSConfig configures the display transport connection.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	ClientName    string        `yaml:"client_name"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// DisplayConfig configures the websocket bridge for display clients that
// cannot speak NATS directly.
type DisplayConfig struct {
	WebsocketEnabled bool   `yaml:"websocket_enabled"`
	WebsocketPort    int    `yaml:"websocket_port"`
	WebsocketPath    string `yaml:"websocket_path"`
}

// DispatchConfig tunes delivery behaviour.
type DispatchConfig struct {
	// DestinationTimeout bounds each destination's delivery, retries
	// included. A stalled printer consumes at most this much wall time.
	DestinationTimeout time.Duration `yaml:"destination_timeout"`
	// QueueCapacity bounds the pending manifest queue.
	QueueCapacity int         `yaml:"queue_capacity"`
	Retry         RetryConfig `yaml:"retry"`
}

// RetryConfig shapes the printer delivery backoff curve.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// TagConfig declares one known route tag.
type TagConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// StationConfig declares one destination station.
type StationConfig struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"` // "display" or "printer"
	Tags   []string `yaml:"tags"`
	Active *bool    `yaml:"active"` // defaults to true when omitted

	// Printer-only fields.
	Addr       string        `yaml:"addr"`
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// Ticket options.
	Cut          *bool `yaml:"cut"`
	BuzzerPulses int   `yaml:"buzzer_pulses"`
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps a config for concurrent readers.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Default returns a config with every tunable at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "routerd"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = 5 * time.Second
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Display.WebsocketPort == 0 {
		c.Display.WebsocketPort = 8181
	}
	if c.Display.WebsocketPath == "" {
		c.Display.WebsocketPath = "/ws"
	}
	if c.Dispatch.DestinationTimeout == 0 {
		c.Dispatch.DestinationTimeout = 30 * time.Second
	}
	if c.Dispatch.QueueCapacity == 0 {
		c.Dispatch.QueueCapacity = 256
	}
	if c.Dispatch.Retry.MaxAttempts == 0 {
		c.Dispatch.Retry.MaxAttempts = 5
	}
	if c.Dispatch.Retry.InitialDelay == 0 {
		c.Dispatch.Retry.InitialDelay = 250 * time.Millisecond
	}
	if c.Dispatch.Retry.MaxDelay == 0 {
		c.Dispatch.Retry.MaxDelay = 10 * time.Second
	}
	if c.Dispatch.Retry.Multiplier == 0 {
		c.Dispatch.Retry.Multiplier = 2.0
	}
}

// Load reads, defaults, and validates a YAML config file. The NATS_URL
// environment variable overrides the configured NATS URL.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load",
			fmt.Sprintf("read config file %s", path))
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Parse", "decode YAML")
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural correctness. Routing-level warnings (a
// station with no known tags, no active station for a tag) are surfaced
// by the registry snapshot, not here.
func (c *Config) Validate() error {
	var problems []string

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not json or text", c.Log.Format))
	}

	if c.Dispatch.DestinationTimeout <= 0 {
		problems = append(problems, "dispatch.destination_timeout must be positive")
	}
	if c.Dispatch.QueueCapacity <= 0 {
		problems = append(problems, "dispatch.queue_capacity must be positive")
	}
	if c.Dispatch.Retry.MaxAttempts < 1 {
		problems = append(problems, "dispatch.retry.max_attempts must be at least 1")
	}
	if c.Dispatch.Retry.Multiplier < 1.0 {
		problems = append(problems, "dispatch.retry.multiplier must be at least 1.0")
	}

	seen := make(map[string]bool, len(c.Stations))
	for i, s := range c.Stations {
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("stations[%d] has no id", i))
			continue
		}
		if seen[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate station id %q", s.ID))
		}
		seen[s.ID] = true

		switch s.Kind {
		case "display":
		case "printer":
			if s.Addr == "" {
				problems = append(problems, fmt.Sprintf("printer station %q has no addr", s.ID))
			}
		default:
			problems = append(problems, fmt.Sprintf("station %q kind %q is not display or printer", s.ID, s.Kind))
		}

		if s.BuzzerPulses < 0 || s.BuzzerPulses > 9 {
			problems = append(problems, fmt.Sprintf("station %q buzzer_pulses %d out of range 0-9", s.ID, s.BuzzerPulses))
		}
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%s", strings.Join(problems, "; ")),
			"Config", "Validate", "invalid configuration")
	}
	return nil
}

// RegistryTags converts the configured tags for registry loading.
func (c *Config) RegistryTags() []registry.Tag {
	out := make([]registry.Tag, 0, len(c.Tags))
	for _, t := range c.Tags {
		out = append(out, registry.Tag{
			Name:        routing.RouteTag(t.Name),
			Description: t.Description,
		})
	}
	return out
}

// RegistryStations converts the configured stations for registry loading.
func (c *Config) RegistryStations() []routing.Station {
	out := make([]routing.Station, 0, len(c.Stations))
	for _, s := range c.Stations {
		st := routing.Station{
			ID:     s.ID,
			Name:   s.Name,
			Active: s.Active == nil || *s.Active,
		}
		if s.Kind == "printer" {
			st.Kind = routing.KindPrinter
		} else {
			st.Kind = routing.KindDisplay
		}
		for _, tag := range s.Tags {
			st.Tags = append(st.Tags, routing.RouteTag(tag))
		}
		out = append(out, st)
	}
	return out
}

// PrinterAddrs extracts the printer address map for the TCP transport.
func (c *Config) PrinterAddrs() map[string]string {
	addrs := make(map[string]string)
	for _, s := range c.Stations {
		if s.Kind == "printer" && s.Addr != "" {
			addrs[s.ID] = s.Addr
		}
	}
	return addrs
}

// PrinterAckTimeouts extracts per-station ack timeout overrides.
func (c *Config) PrinterAckTimeouts() map[string]time.Duration {
	timeouts := make(map[string]time.Duration)
	for _, s := range c.Stations {
		if s.Kind == "printer" && s.AckTimeout > 0 {
			timeouts[s.ID] = s.AckTimeout
		}
	}
	return timeouts
}
