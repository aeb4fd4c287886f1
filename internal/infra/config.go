package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every application setting. Credentials may be overridden
// through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange struct {
		// Name selects the adapter: "bitget" or "paper".
		Name       string `yaml:"name"`
		RestURL    string `yaml:"rest_url"`
		WSURL      string `yaml:"ws_url"`
		Key        string `yaml:"key"`
		Secret     string `yaml:"secret"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"exchange"`

	Market struct {
		Currency string `yaml:"currency"`
		Asset    string `yaml:"asset"`
	} `yaml:"market"`

	Broker struct {
		// Private enables balance/fee sync and order placement. Public
		// mode only tracks the ticker.
		Private         bool `yaml:"private"`
		Outbid          bool `yaml:"outbid"`
		SyncIntervalSec int  `yaml:"sync_interval_sec"`
	} `yaml:"broker"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Exchange.Name == "" {
		return fmt.Errorf("exchange name is required")
	}
	if c.Market.Currency == "" || c.Market.Asset == "" {
		return fmt.Errorf("market currency and asset are required")
	}
	if c.Broker.SyncIntervalSec <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	return nil
}

// overrideWithEnv replaces credential fields when environment variables
// are present, so secrets never need to live in the config file.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("BROKER_EXCHANGE_KEY"); key != "" {
		cfg.Exchange.Key = key
	}
	if secret := os.Getenv("BROKER_EXCHANGE_SECRET"); secret != "" {
		cfg.Exchange.Secret = secret
	}
	if pass := os.Getenv("BROKER_EXCHANGE_PASSPHRASE"); pass != "" {
		cfg.Exchange.Passphrase = pass
	}
}
