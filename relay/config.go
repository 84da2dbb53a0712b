// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package relay wires the metrics core together: configuration, the
// service facade over aggregation and extraction, the upstream sink, and
// the shutdown drain coordinator.
package relay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relaycore/relaycore-go/aggregator"
)

// LimitsConfig is the limits section of the relay configuration.
type LimitsConfig struct {
	// ShutdownTimeout bounds the forced drain at shutdown, in seconds.
	// Buckets still mid-flush when it elapses are lost.
	ShutdownTimeout int64 `yaml:"shutdown_timeout"`
}

// Config is the relay configuration file surface consumed by this core.
type Config struct {
	// Upstream is the base URL batches are forwarded to.
	Upstream   string            `yaml:"upstream"`
	Aggregator aggregator.Config `yaml:"aggregator"`
	Limits     LimitsConfig      `yaml:"limits"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Aggregator: aggregator.DefaultConfig(),
		Limits:     LimitsConfig{ShutdownTimeout: 10},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports startup configuration errors.
func (c Config) Validate() error {
	if err := c.Aggregator.Validate(); err != nil {
		return err
	}
	if c.Limits.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}
