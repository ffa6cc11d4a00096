package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ASKEROS1449/router-auto-connect/internal/iprange"
)

type Config struct {
	Engine  EngineConfig  `json:"engine"`
	API     APIConfig     `json:"api"`
	Journal JournalConfig `json:"journal"`
	Storage StorageConfig `json:"storage"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`

	mu       sync.Mutex
	filePath string
}

// RangeSpec is an inclusive IPv4 span given as dotted-quad bounds.
type RangeSpec struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

// CandidateSpec is one (port, scheme) endpoint candidate. The list
// order matters: it is the initial tie-break before scoring.
type CandidateSpec struct {
	Port   int    `json:"port"`
	Scheme string `json:"scheme"` // "http" or "https"
}

type EngineConfig struct {
	TargetRanges   []RangeSpec     `json:"target_ranges"`
	Candidates     []CandidateSpec `json:"candidates"`
	ProbeTimeoutMs int             `json:"probe_timeout_ms"`
	CooldownMs     int             `json:"cooldown_ms"`
	PortPriority   map[string]int  `json:"port_priority"`
}

type APIConfig struct {
	Addr               string `json:"addr"`
	APIKeyEnv          string `json:"api_key_env"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	MaxConnections     int    `json:"max_connections"`
	EnableAPIKeyAuth   bool   `json:"enable_api_key_auth"`
	EnableIPRateLimit  bool   `json:"enable_ip_rate_limit"`
}

type JournalConfig struct {
	HistoryLimit           int `json:"history_limit"`
	PersistIntervalSeconds int `json:"persist_interval_seconds"`
}

type StorageConfig struct {
	Type string `json:"type"` // "file", "sqlite", "redis"
	Path string `json:"path"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Namespace string `json:"namespace"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load reads configuration from JSON file
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.filePath = filePath
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Engine.TargetRanges) == 0 {
		c.Engine.TargetRanges = []RangeSpec{
			{Low: "100.60.0.0", High: "100.80.0.0"},
			{Low: "5.197.0.0", High: "5.197.255.255"},
		}
	}
	if len(c.Engine.Candidates) == 0 {
		c.Engine.Candidates = []CandidateSpec{
			{Port: 443, Scheme: "https"},
			{Port: 8080, Scheme: "https"},
			{Port: 8080, Scheme: "http"},
			{Port: 8888, Scheme: "https"},
			{Port: 8888, Scheme: "http"},
		}
	}
	if c.Engine.ProbeTimeoutMs == 0 {
		c.Engine.ProbeTimeoutMs = 1200
	}
	if c.Engine.CooldownMs == 0 {
		c.Engine.CooldownMs = 5000
	}
	if len(c.Engine.PortPriority) == 0 {
		c.Engine.PortPriority = map[string]int{
			"443":  3,
			"8080": 2,
			"8888": 1,
		}
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8083"
	}
	if c.API.RateLimitPerMinute == 0 {
		c.API.RateLimitPerMinute = 1200
	}
	if c.API.MaxConnections == 0 {
		c.API.MaxConnections = 256
	}
	if c.Journal.HistoryLimit == 0 {
		c.Journal.HistoryLimit = 512
	}
	if c.Journal.PersistIntervalSeconds == 0 {
		c.Journal.PersistIntervalSeconds = 300
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "/data/journal.json"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "routerautoconnect"
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Reload reloads configuration from file
func (c *Config) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newCfg, err := Load(c.filePath)
	if err != nil {
		return err
	}

	c.Engine = newCfg.Engine
	c.API = newCfg.API
	c.Journal = newCfg.Journal
	c.Storage = newCfg.Storage
	c.Metrics = newCfg.Metrics
	c.Logging = newCfg.Logging
	return nil
}

// Clone returns a consistent copy of the configuration taken under the
// reload lock, for readers that must not observe a concurrent Reload
// mid-swap. Section values are copied wholesale; Reload replaces whole
// sections, so the copy never mixes old and new fields.
func (c *Config) Clone() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &Config{
		Engine:   c.Engine,
		API:      c.API,
		Journal:  c.Journal,
		Storage:  c.Storage,
		Metrics:  c.Metrics,
		Logging:  c.Logging,
		filePath: c.filePath,
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	for _, r := range c.Engine.TargetRanges {
		if _, err := iprange.Parse(r.Low, r.High); err != nil {
			return fmt.Errorf("target range: %w", err)
		}
	}
	for _, cand := range c.Engine.Candidates {
		if cand.Port < 1 || cand.Port > 65535 {
			return fmt.Errorf("candidate port %d out of range", cand.Port)
		}
		if cand.Scheme != "http" && cand.Scheme != "https" {
			return fmt.Errorf("candidate scheme must be 'http' or 'https', got %q", cand.Scheme)
		}
	}
	if c.Engine.ProbeTimeoutMs < 100 || c.Engine.ProbeTimeoutMs > 60000 {
		return fmt.Errorf("probe_timeout_ms must be between 100 and 60000")
	}
	if c.Engine.CooldownMs < 0 {
		return fmt.Errorf("cooldown_ms must not be negative")
	}
	if c.Storage.Type != "file" && c.Storage.Type != "sqlite" && c.Storage.Type != "redis" {
		return fmt.Errorf("storage type must be 'file', 'sqlite', or 'redis'")
	}
	return nil
}

// ParsedRanges converts the configured range specs into classifier
// ranges. Validate guarantees this cannot fail after Load.
func (c *Config) ParsedRanges() ([]iprange.Range, error) {
	ranges := make([]iprange.Range, 0, len(c.Engine.TargetRanges))
	for _, spec := range c.Engine.TargetRanges {
		r, err := iprange.Parse(spec.Low, spec.High)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}
