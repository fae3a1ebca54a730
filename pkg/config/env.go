// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/node"
)

// The accessors below expect a validated and normalized configuration.

// Board returns the configured board.
func (c *Config) Board() (node.BoardID, error) {
	return node.ParseBoard(c.Node.Board)
}

// Mode returns the configured framing mode.
func (c *Config) Mode() (bus.Mode, error) {
	return bus.ParseMode(c.Node.Mode)
}

// BoardOptions returns the personality options.
func (c *Config) BoardOptions() boards.Options {
	opts := boards.Options{
		ForcedHardware: c.Options.ForcedHardware,
		DigitalSensor:  c.Options.DigitalSensor,
	}
	for _, i := range c.Options.AnalogInputs {
		opts.AnalogInputs[i] = true
	}
	for _, i := range c.Options.DigitalInputs {
		opts.DigitalInputs[i] = true
	}
	return opts
}

// Info returns the identity published in the version registers.
func (c *Config) Info() node.Info {
	sw := c.Node.Software
	return node.Info{
		Software: node.Version{
			Major:       sw.Major,
			Minor:       sw.Minor,
			CommitIndex: sw.CommitIndex,
			CommitID:    sw.CommitID,
			Dirty:       sw.Dirty,
		},
		Hardware: node.Hardware{Major: c.Node.Hardware.Major, Minor: c.Node.Hardware.Minor},
	}
}

// Env builds the simulated hardware of the node. The NVM is file backed
// when node.nvm is set and the radio credentials are provisioned into it.
func (c *Config) Env(logger *slog.Logger) (node.Env, error) {
	nvm, err := c.openNVM()
	if err != nil {
		return node.Env{}, err
	}
	if err := provision(nvm, node.NVMEPIDOffset, c.Sigfox.EPID); err != nil {
		return node.Env{}, fmt.Errorf("provision EP ID: %w", err)
	}
	if err := provision(nvm, node.NVMEPKeyOffset, c.Sigfox.EPKey); err != nil {
		return node.Env{}, fmt.Errorf("provision EP key: %w", err)
	}

	sim := c.Simulation
	analog := &driver.SimAnalog{Values: make(map[driver.Channel]int32, len(sim.Analog))}
	for name, v := range sim.Analog {
		analog.Values[driver.Channel(name)] = v
	}
	digital := &driver.SimDigital{Values: make(map[driver.Channel]bool, len(sim.Digital))}
	for name, v := range sim.Digital {
		digital.Values[driver.Channel(name)] = v
	}

	loads := make(map[string]driver.Load, len(boards.LoadNames))
	for _, name := range boards.LoadNames {
		loads[name] = &driver.SimLoad{}
	}

	var downlink []byte
	if sim.Radio.Downlink != "" {
		if downlink, err = hex.DecodeString(sim.Radio.Downlink); err != nil {
			return node.Env{}, fmt.Errorf("simulation.radio.downlink: %w", err)
		}
	}

	meter := &driver.SimMeter{}
	for _, ch := range sim.Meter {
		meter.Channels = append(meter.Channels, driver.MeterData{
			VoltageMV:   ch.VoltageMV,
			CurrentUA:   ch.CurrentUA,
			PowerFactor: ch.PowerFactor,
			FrequencyMH: ch.FrequencyMH,
			Detected:    ch.Detected,
		})
	}

	settle := time.Duration(sim.PowerSettleMs) * time.Millisecond
	return node.Env{
		Address: uint8(c.Node.Address),
		NVM:     nvm,
		Analog:  analog,
		Digital: digital,
		Power:   driver.NewPowerManager(&driver.SimSwitch{}, settle),
		System:  &driver.SimSystem{Flags: driver.ResetPowerOn},
		Loads:   loads,
		GPS: &driver.SimGPS{
			Fix:     position(sim.GPS),
			FixTime: time.Duration(sim.GPS.FixTimeMs) * time.Millisecond,
			Clock:   time.Now,
		},
		Sigfox: &driver.SimSigfox{Downlink: downlink, RSSIValue: sim.Radio.RSSI},
		Sensor: &driver.SimSensor{Temperature: sim.Sensor.Temperature, Humidity: sim.Sensor.Humidity},
		Meter:  meter,
		Logger: logger,
	}, nil
}

func (c *Config) openNVM() (driver.NVM, error) {
	if c.Node.NVM == "" {
		return driver.NewMemNVM(driver.DefaultNVMSize), nil
	}
	nvm, err := driver.OpenFileNVM(c.Node.NVM, driver.DefaultNVMSize)
	if err != nil {
		return nil, fmt.Errorf("open NVM: %w", err)
	}
	return nvm, nil
}

func provision(nvm driver.NVM, offset int, s string) error {
	if s == "" {
		return nil
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	for i, b := range data {
		if err := nvm.WriteByteAt(offset+i, b); err != nil {
			return err
		}
	}
	return nil
}

func position(g GPSConfig) driver.Position {
	latD, latM, latS := dms(g.Latitude)
	longD, longM, longS := dms(g.Longitude)
	return driver.Position{
		LatDegrees:    latD,
		LatMinutes:    latM,
		LatSeconds:    latS,
		North:         g.Latitude >= 0,
		LongDegrees:   longD,
		LongMinutes:   longM,
		LongSeconds:   longS,
		East:          g.Longitude >= 0,
		AltitudeMeter: g.Altitude,
	}
}

// dms splits decimal degrees into degrees, minutes and thousandths of
// second.
func dms(deg float64) (uint8, uint8, uint32) {
	total := uint64(math.Round(math.Abs(deg) * 3600 * 1000))
	d := total / (3600 * 1000)
	m := total / (60 * 1000) % 60
	s := total % (60 * 1000)
	return uint8(d), uint8(m), uint32(s)
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(w io.Writer, cfg LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q unknown", cfg.Format)
	}
}
