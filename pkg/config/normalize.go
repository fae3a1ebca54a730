// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"strings"

	"github.com/Thermoquad/dinfox/pkg/driver"
)

// Defaults of the MCU monitoring channels
const (
	DefaultVMCU = 3300 // mV
	DefaultTMCU = 250  // tenths of degree
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Node.Board = strings.ToUpper(cfg.Node.Board)
	if cfg.Node.Mode == "" {
		cfg.Node.Mode = "addressed"
	}

	// Every board measures its own supply and temperature
	if cfg.Simulation.Analog == nil {
		cfg.Simulation.Analog = make(map[string]int32)
	}
	if _, ok := cfg.Simulation.Analog[string(driver.ChannelVMCU)]; !ok {
		cfg.Simulation.Analog[string(driver.ChannelVMCU)] = DefaultVMCU
	}
	if _, ok := cfg.Simulation.Analog[string(driver.ChannelTMCU)]; !ok {
		cfg.Simulation.Analog[string(driver.ChannelTMCU)] = DefaultTMCU
	}
	if cfg.Simulation.Digital == nil {
		cfg.Simulation.Digital = make(map[string]bool)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
