// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/node"
)

var (
	logLevels  = []string{"", "debug", "info", "warn", "error"}
	logFormats = []string{"", "text", "json"}
)

// Validate checks configuration correctness.
// It performs declarative validation only and never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// NODE
	// ------------------------------------------------------------

	if cfg.Node.Address < 0 || cfg.Node.Address >= bus.AddressBroadcast {
		return fmt.Errorf("node.address 0x%X out of range 0x01..0x%02X", cfg.Node.Address, bus.AddressBroadcast-1)
	}
	if cfg.Node.Board == "" {
		return fmt.Errorf("node.board is required")
	}
	if _, err := node.ParseBoard(strings.ToUpper(cfg.Node.Board)); err != nil {
		return fmt.Errorf("node.board: %w", err)
	}
	if _, err := bus.ParseMode(cfg.Node.Mode); err != nil {
		return fmt.Errorf("node.mode: %w", err)
	}

	// ------------------------------------------------------------
	// OPTIONS
	// ------------------------------------------------------------

	if err := validateInputs("options.analog_inputs", cfg.Options.AnalogInputs); err != nil {
		return err
	}
	if err := validateInputs("options.digital_inputs", cfg.Options.DigitalInputs); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// SIGFOX
	// ------------------------------------------------------------

	if err := validateHex("sigfox.ep_id", cfg.Sigfox.EPID, node.NVMEPIDSize, true); err != nil {
		return err
	}
	if err := validateHex("sigfox.ep_key", cfg.Sigfox.EPKey, node.NVMEPKeySize, true); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// SIMULATION
	// ------------------------------------------------------------

	sim := cfg.Simulation
	for name := range sim.Analog {
		if !slices.Contains(driver.AnalogChannels, driver.Channel(name)) {
			return fmt.Errorf("simulation.analog: unknown channel %q", name)
		}
	}
	for name := range sim.Digital {
		if !slices.Contains(driver.DigitalChannels, driver.Channel(name)) {
			return fmt.Errorf("simulation.digital: unknown channel %q", name)
		}
	}
	if sim.PowerSettleMs < 0 {
		return fmt.Errorf("simulation.power_settle_ms must not be negative")
	}
	if sim.GPS.FixTimeMs < 0 {
		return fmt.Errorf("simulation.gps.fix_time_ms must not be negative")
	}
	if sim.GPS.Latitude < -90 || sim.GPS.Latitude > 90 {
		return fmt.Errorf("simulation.gps.latitude %g out of range", sim.GPS.Latitude)
	}
	if sim.GPS.Longitude < -180 || sim.GPS.Longitude > 180 {
		return fmt.Errorf("simulation.gps.longitude %g out of range", sim.GPS.Longitude)
	}
	if err := validateHex("simulation.radio.downlink", sim.Radio.Downlink, 8, false); err != nil {
		return err
	}
	if sim.Sensor.Humidity > 100 {
		return fmt.Errorf("simulation.sensor.humidity %d above 100", sim.Sensor.Humidity)
	}
	if len(sim.Meter) > boards.MPMCMChannels {
		return fmt.Errorf("simulation.meter: %d channels, board has %d", len(sim.Meter), boards.MPMCMChannels)
	}
	for i, ch := range sim.Meter {
		if ch.PowerFactor > 100 {
			return fmt.Errorf("simulation.meter[%d].power_factor %d above 100", i, ch.PowerFactor)
		}
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if !slices.Contains(logLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("log.level %q unknown", cfg.Log.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(cfg.Log.Format)) {
		return fmt.Errorf("log.format %q unknown", cfg.Log.Format)
	}

	return nil
}

func validateInputs(key string, inputs []int) error {
	seen := make(map[int]bool)
	for _, i := range inputs {
		if i < 0 || i > 3 {
			return fmt.Errorf("%s: input %d out of range 0..3", key, i)
		}
		if seen[i] {
			return fmt.Errorf("%s: input %d listed twice", key, i)
		}
		seen[i] = true
	}
	return nil
}

// validateHex checks that s is hex of exactly size bytes (exact) or at most
// size bytes. An empty string is always accepted.
func validateHex(key, s string, size int, exact bool) error {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if exact && len(b) != size {
		return fmt.Errorf("%s: %d bytes, want %d", key, len(b), size)
	}
	if len(b) > size {
		return fmt.Errorf("%s: %d bytes, at most %d", key, len(b), size)
	}
	return nil
}
