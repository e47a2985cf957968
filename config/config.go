// Package config loads runtime settings from the environment with the
// LAVAPAY_ prefix.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lava-payment/lavapay-go/registry"
)

type Config struct {
	// BaseURL is the web origin invoice share links point at.
	BaseURL        string `mapstructure:"BASE_URL"`
	PrimaryChainID int64  `mapstructure:"PRIMARY_CHAIN_ID"`

	InvoiceTTL time.Duration `mapstructure:"INVOICE_TTL"`

	PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`
	WarningHorizon time.Duration `mapstructure:"WARNING_HORIZON"`
	GiveupHorizon  time.Duration `mapstructure:"GIVEUP_HORIZON"`

	SponsorshipEnabled bool   `mapstructure:"SPONSORSHIP_ENABLED"`
	RelayerURL         string `mapstructure:"RELAYER_URL"`

	// RPC endpoint overrides; empty keeps the registry default.
	MainnetRPCURL string `mapstructure:"MAINNET_RPC_URL"`
	TestnetRPCURL string `mapstructure:"TESTNET_RPC_URL"`

	// Datadir holds local stores; empty means in-memory.
	Datadir  string `mapstructure:"DATADIR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("LAVAPAY")
	v.AutomaticEnv()

	setDefaultConfig(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("BASE_URL", "http://localhost:5173")
	v.SetDefault("PRIMARY_CHAIN_ID", registry.PlasmaMainnetChainID)
	v.SetDefault("INVOICE_TTL", 15*time.Minute)
	v.SetDefault("POLL_INTERVAL", 3*time.Second)
	v.SetDefault("WARNING_HORIZON", 30*time.Second)
	v.SetDefault("GIVEUP_HORIZON", 5*time.Minute)
	v.SetDefault("SPONSORSHIP_ENABLED", false)
	v.SetDefault("RELAYER_URL", "")
	v.SetDefault("MAINNET_RPC_URL", "")
	v.SetDefault("TESTNET_RPC_URL", "")
	v.SetDefault("DATADIR", "")
	v.SetDefault("LOG_LEVEL", "info")
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL must not be empty")
	}
	if c.InvoiceTTL <= 0 {
		return fmt.Errorf("invoice TTL must be positive, got %s", c.InvoiceTTL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.WarningHorizon >= c.GiveupHorizon {
		return fmt.Errorf(
			"warning horizon %s must precede giveup horizon %s",
			c.WarningHorizon, c.GiveupHorizon,
		)
	}
	if c.SponsorshipEnabled && c.RelayerURL == "" {
		return fmt.Errorf("sponsorship requires a relayer URL")
	}
	return nil
}
