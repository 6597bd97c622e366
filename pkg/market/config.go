package market

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"eodprices/pkg/confkit"
)

// Config describes the set of price providers available to the application.
type Config struct {
	Default   string                     `yaml:"default"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents configuration for a single price provider.
type ProviderConfig struct {
	Type string `yaml:"type"`

	BaseURL   string `yaml:"base_url"`
	CookieURL string `yaml:"cookie_url"`
	CrumbURL  string `yaml:"crumb_url"`

	TimeoutRaw       string        `yaml:"timeout"`
	Timeout          time.Duration `yaml:"-"`
	MinIntervalRaw   string        `yaml:"min_interval"`
	MinInterval      time.Duration `yaml:"-"`
	SessionTTLRaw    string        `yaml:"session_ttl"`
	SessionTTL       time.Duration `yaml:"-"`
	BlockCooldownRaw string        `yaml:"block_cooldown"`
	BlockCooldown    time.Duration `yaml:"-"`
	MaxRetries       int           `yaml:"max_retries"`

	// HistoryRange is the provider's lookback window, e.g. "1y" for chart APIs.
	HistoryRange string `yaml:"history_range"`
	// HistoryDays caps the number of points returned; 0 keeps everything.
	HistoryDays int `yaml:"history_days"`
}

// ProviderBuilder constructs a Provider from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig) (Provider, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider registers a provider constructor under a type name.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupProviderBuilder(typeName string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	builder, ok := providerRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads etc/market.yaml from the project root and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/market.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig is used when no market file is configured: yahoo as primary,
// stooq as fallback, both on their public endpoints.
func DefaultConfig() *Config {
	return &Config{
		Default: "yahoo",
		Providers: map[string]*ProviderConfig{
			"yahoo": {Type: "yahoo", MinInterval: 1500 * time.Millisecond, HistoryRange: "1y"},
			"stooq": {Type: "stooq", MinInterval: time.Second, HistoryDays: 260},
		},
	}
}

func (c *Config) normalise() error {
	c.Default = strings.ToLower(strings.TrimSpace(os.ExpandEnv(c.Default)))
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.CookieURL = strings.TrimSpace(os.ExpandEnv(p.CookieURL))
	p.CrumbURL = strings.TrimSpace(os.ExpandEnv(p.CrumbURL))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
	p.MinIntervalRaw = strings.TrimSpace(os.ExpandEnv(p.MinIntervalRaw))
	p.SessionTTLRaw = strings.TrimSpace(os.ExpandEnv(p.SessionTTLRaw))
	p.BlockCooldownRaw = strings.TrimSpace(os.ExpandEnv(p.BlockCooldownRaw))
	p.HistoryRange = strings.TrimSpace(os.ExpandEnv(p.HistoryRange))
}

func (p *ProviderConfig) parseDurations(name string) error {
	fields := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", p.TimeoutRaw, &p.Timeout},
		{"min_interval", p.MinIntervalRaw, &p.MinInterval},
		{"session_ttl", p.SessionTTLRaw, &p.SessionTTL},
		{"block_cooldown", p.BlockCooldownRaw, &p.BlockCooldown},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("market provider %s: invalid %s %q: %w", name, f.key, f.raw, err)
		}
		if d < 0 || (d == 0 && f.key != "min_interval") {
			return fmt.Errorf("market provider %s: %s must be positive, got %s", name, f.key, d)
		}
		*f.dst = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("market config: providers cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Providers[c.Default]; !ok {
			return fmt.Errorf("market config: default provider %q not defined", c.Default)
		}
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("market config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("market config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("market config: provider %s must specify type", name)
	}
	if _, ok := lookupProviderBuilder(p.Type); !ok {
		return fmt.Errorf("market config: provider %s has unsupported type %q", name, p.Type)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("market config: provider %s max_retries cannot be negative", name)
	}
	if p.HistoryDays < 0 {
		return fmt.Errorf("market config: provider %s history_days cannot be negative", name)
	}
	return nil
}

// BuildProviders instantiates providers according to configuration.
func (c *Config) BuildProviders() (map[string]Provider, error) {
	result := make(map[string]Provider, len(c.Providers))
	for name, providerCfg := range c.Providers {
		builder, ok := lookupProviderBuilder(providerCfg.Type)
		if !ok {
			return nil, fmt.Errorf("market provider %s: unsupported type %q", name, providerCfg.Type)
		}
		provider, err := builder(name, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("market provider %s: %w", name, err)
		}
		result[name] = provider
	}
	return result, nil
}
