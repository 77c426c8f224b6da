// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is everything the settlement daemon loads at startup.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Bridge BridgeConfig `yaml:"bridge"`
	AMM    AMMConfig    `yaml:"amm"`
}

// ServerConfig controls the query API listener.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig controls log verbosity and encoding.
type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// BridgeConfig bootstraps the bridge gateway.
type BridgeConfig struct {
	Owner         string   `yaml:"owner"`
	Custody       string   `yaml:"custody"`
	FeeSink       string   `yaml:"fee_sink"`
	DepositFeeBps uint32   `yaml:"deposit_fee_bps"`
	Threshold     int      `yaml:"threshold"`
	Validators    []string `yaml:"validators"`
}

// AMMConfig bootstraps the exchange.
type AMMConfig struct {
	Owner       string `yaml:"owner"`
	Custody     string `yaml:"custody"`
	FlashFeeBps uint32 `yaml:"flash_fee_bps"`
}

// Default returns a config with development defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{Address: ":8545"},
		Log:    LogConfig{Level: "info", Encoding: "json"},
	}
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configs the daemon cannot start with.
func (c Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Bridge.Threshold <= 0 {
		return fmt.Errorf("bridge.threshold must be positive")
	}
	if c.Bridge.Threshold > len(c.Bridge.Validators) {
		return fmt.Errorf("bridge.threshold %d exceeds validator count %d",
			c.Bridge.Threshold, len(c.Bridge.Validators))
	}
	return nil
}
