package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"novalink/core/types"
)

// Config captures runtime configuration for the novalink ledger daemon.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	GatewayAddress string `toml:"GatewayAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`
	Currency       string `toml:"Currency"`
	Arbitrator     string `toml:"Arbitrator"`
	FeeBps         uint32 `toml:"FeeBps"`
	FeeTreasury    string `toml:"FeeTreasury"`
	LogEnv         string `toml:"LogEnv"`
	LogFile        string `toml:"LogFile"`
}

// Load loads the configuration from the given path, creating a default file
// on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(c.GatewayAddress) == "" {
		c.GatewayAddress = "127.0.0.1:8680"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./novalink-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "novalink-local"
	}
	if strings.TrimSpace(c.Currency) == "" {
		c.Currency = types.CurrencyLSK
	}
	if strings.TrimSpace(c.LogEnv) == "" {
		c.LogEnv = "dev"
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if _, err := types.NormalizeCurrency(c.Currency); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps out of range: %d", c.FeeBps)
	}
	if c.FeeBps > 0 && strings.TrimSpace(c.FeeTreasury) == "" {
		return fmt.Errorf("config: FeeBps set without FeeTreasury")
	}
	if strings.TrimSpace(c.Arbitrator) == "" {
		return fmt.Errorf("config: Arbitrator party required")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Arbitrator: "novalink-arbitration-desk",
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return cfg, nil
}
