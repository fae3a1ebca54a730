// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the YAML description of a simulated node: its
// identity, board options, radio credentials and the values returned by the
// simulated hardware.
//
// The lifecycle is Load, then Validate (declarative, never mutates), then
// Normalize (fills defaults), then Env to build the node collaborators.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Options    OptionsConfig    `yaml:"options"`
	Sigfox     SigfoxConfig     `yaml:"sigfox"`
	Simulation SimulationConfig `yaml:"simulation"`
	Log        LogConfig        `yaml:"log"`
}

// ------------------------------------------------------------
// NODE
// ------------------------------------------------------------

type NodeConfig struct {
	// Address is the bus address. Zero means "use the address stored in
	// NVM".
	Address int    `yaml:"address"`
	Board   string `yaml:"board"`
	Mode    string `yaml:"mode"` // addressed | raw

	// NVM is the path of the persistent memory file. Empty keeps the
	// memory in RAM.
	NVM string `yaml:"nvm"`

	Software SoftwareConfig `yaml:"software"`
	Hardware HardwareConfig `yaml:"hardware"`
}

type SoftwareConfig struct {
	Major       uint8  `yaml:"major"`
	Minor       uint8  `yaml:"minor"`
	CommitIndex uint8  `yaml:"commit_index"`
	CommitID    uint32 `yaml:"commit_id"`
	Dirty       bool   `yaml:"dirty"`
}

type HardwareConfig struct {
	Major uint8 `yaml:"major"`
	Minor uint8 `yaml:"minor"`
}

// ------------------------------------------------------------
// BOARD OPTIONS
// ------------------------------------------------------------

type OptionsConfig struct {
	ForcedHardware bool `yaml:"forced_hardware"`

	// Fitted sensor module inputs, by index
	AnalogInputs  []int `yaml:"analog_inputs"`
	DigitalInputs []int `yaml:"digital_inputs"`
	DigitalSensor bool  `yaml:"digital_sensor"`
}

// ------------------------------------------------------------
// RADIO CREDENTIALS
// ------------------------------------------------------------

// SigfoxConfig holds the credentials provisioned in NVM at startup, as hex
// strings. Empty values leave the NVM untouched.
type SigfoxConfig struct {
	EPID  string `yaml:"ep_id"`
	EPKey string `yaml:"ep_key"`
}

// ------------------------------------------------------------
// SIMULATION
// ------------------------------------------------------------

type SimulationConfig struct {
	// Analog values by channel name, in mV, uA or tenths of degree
	Analog  map[string]int32 `yaml:"analog"`
	Digital map[string]bool  `yaml:"digital"`

	PowerSettleMs int `yaml:"power_settle_ms"`

	GPS    GPSConfig      `yaml:"gps"`
	Radio  RadioConfig    `yaml:"radio"`
	Sensor SensorConfig   `yaml:"sensor"`
	Meter  []MeterChannel `yaml:"meter"`
}

type GPSConfig struct {
	FixTimeMs int `yaml:"fix_time_ms"`

	// Decimal degrees, negative south and west
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  uint32  `yaml:"altitude"`
}

type RadioConfig struct {
	RSSI     int16  `yaml:"rssi"`
	Downlink string `yaml:"downlink"` // hex, empty for no downlink
}

type SensorConfig struct {
	Temperature int32 `yaml:"temperature"` // tenths of degree
	Humidity    uint8 `yaml:"humidity"`
}

type MeterChannel struct {
	VoltageMV   int32  `yaml:"voltage_mv"`
	CurrentUA   int32  `yaml:"current_ua"`
	PowerFactor uint8  `yaml:"power_factor"` // hundredths
	FrequencyMH uint32 `yaml:"frequency_mhz"`
	Detected    bool   `yaml:"detected"`
}

// ------------------------------------------------------------
// LOGGING
// ------------------------------------------------------------

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document. Unknown keys are rejected; an empty
// document yields the zero configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
