// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/node"
)

const sample = `
node:
  address: 0x20
  board: uhfm
  software: {major: 2, minor: 1, commit_index: 7, commit_id: 0xABCDEF, dirty: true}
  hardware: {major: 1, minor: 0}
options:
  analog_inputs: [0, 2]
sigfox:
  ep_id: "01234567"
  ep_key: "00112233445566778899AABBCCDDEEFF"
simulation:
  analog:
    vmcu: 3250
    vrf: 3300
  gps:
    fix_time_ms: 1500
    latitude: 43.6034291
    longitude: -1.4437
    altitude: 150
  radio:
    rssi: -98
    downlink: "DEADBEEF"
log:
  level: DEBUG
  format: json
`

func mustParse(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

// ============================================================================
// Load Tests
// ============================================================================

func TestParse_Sample(t *testing.T) {
	cfg := mustParse(t, sample)

	if cfg.Node.Address != 0x20 || cfg.Node.Board != "uhfm" {
		t.Errorf("node = %+v", cfg.Node)
	}
	if cfg.Node.Software.CommitID != 0xABCDEF || !cfg.Node.Software.Dirty {
		t.Errorf("software = %+v", cfg.Node.Software)
	}
	if len(cfg.Options.AnalogInputs) != 2 || cfg.Options.AnalogInputs[1] != 2 {
		t.Errorf("analog inputs = %v", cfg.Options.AnalogInputs)
	}
	if cfg.Simulation.Analog["vrf"] != 3300 {
		t.Errorf("vrf = %d", cfg.Simulation.Analog["vrf"])
	}
	if cfg.Simulation.Radio.RSSI != -98 {
		t.Errorf("rssi = %d", cfg.Simulation.Radio.RSSI)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	if _, err := Parse([]byte("node:\n  adress: 3\n")); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParse_Empty(t *testing.T) {
	cfg := mustParse(t, "")
	if cfg.Node.Board != "" {
		t.Errorf("board = %q, want empty", cfg.Node.Board)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.Board != "uhfm" {
		t.Errorf("board = %q", cfg.Node.Board)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// ============================================================================
// Validate Tests
// ============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string // substring of the error, empty for success
	}{
		{"valid", func(*Config) {}, ""},
		{"address from NVM", func(c *Config) { c.Node.Address = 0 }, ""},
		{"raw mode", func(c *Config) { c.Node.Mode = "raw" }, ""},
		{"broadcast address", func(c *Config) { c.Node.Address = 0x7F }, "node.address"},
		{"negative address", func(c *Config) { c.Node.Address = -1 }, "node.address"},
		{"missing board", func(c *Config) { c.Node.Board = "" }, "node.board is required"},
		{"unknown board", func(c *Config) { c.Node.Board = "XYZ" }, "node.board"},
		{"unknown mode", func(c *Config) { c.Node.Mode = "modbus" }, "node.mode"},
		{"input out of range", func(c *Config) { c.Options.AnalogInputs = []int{4} }, "analog_inputs"},
		{"input twice", func(c *Config) { c.Options.DigitalInputs = []int{1, 1} }, "digital_inputs"},
		{"short EP ID", func(c *Config) { c.Sigfox.EPID = "0123" }, "sigfox.ep_id"},
		{"EP key not hex", func(c *Config) { c.Sigfox.EPKey = strings.Repeat("G", 32) }, "sigfox.ep_key"},
		{"unknown analog channel", func(c *Config) { c.Simulation.Analog["vxx"] = 1 }, "simulation.analog"},
		{"unknown digital channel", func(c *Config) { c.Simulation.Digital = map[string]bool{"vmcu": true} }, "simulation.digital"},
		{"negative settle", func(c *Config) { c.Simulation.PowerSettleMs = -1 }, "power_settle_ms"},
		{"latitude", func(c *Config) { c.Simulation.GPS.Latitude = 91 }, "latitude"},
		{"longitude", func(c *Config) { c.Simulation.GPS.Longitude = -181 }, "longitude"},
		{"long downlink", func(c *Config) { c.Simulation.Radio.Downlink = strings.Repeat("00", 9) }, "downlink"},
		{"humidity", func(c *Config) { c.Simulation.Sensor.Humidity = 101 }, "humidity"},
		{"meter channels", func(c *Config) { c.Simulation.Meter = make([]MeterChannel, 5) }, "simulation.meter"},
		{"power factor", func(c *Config) { c.Simulation.Meter = []MeterChannel{{PowerFactor: 120}} }, "power_factor"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustParse(t, sample)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := mustParse(t, sample)
	_ = Validate(cfg)
	if cfg.Node.Board != "uhfm" || cfg.Log.Level != "DEBUG" {
		t.Error("Validate mutated the configuration")
	}
}

// ============================================================================
// Normalize Tests
// ============================================================================

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{Node: NodeConfig{Board: "sm"}}
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	Normalize(cfg)

	if cfg.Node.Board != "SM" || cfg.Node.Mode != "addressed" {
		t.Errorf("node = %+v", cfg.Node)
	}
	if cfg.Simulation.Analog["vmcu"] != DefaultVMCU || cfg.Simulation.Analog["tmcu"] != DefaultTMCU {
		t.Errorf("analog = %v", cfg.Simulation.Analog)
	}
	if cfg.Simulation.Digital == nil {
		t.Error("digital map not created")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestNormalize_KeepsValues(t *testing.T) {
	cfg := mustParse(t, sample)
	Normalize(cfg)
	if cfg.Simulation.Analog["vmcu"] != 3250 {
		t.Errorf("vmcu = %d, want 3250", cfg.Simulation.Analog["vmcu"])
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

// ============================================================================
// Env Tests
// ============================================================================

func startNode(t *testing.T, cfg *Config) *node.Node {
	t.Helper()
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	Normalize(cfg)
	board, err := cfg.Board()
	if err != nil {
		t.Fatal(err)
	}
	p, err := boards.New(board, cfg.BoardOptions())
	if err != nil {
		t.Fatal(err)
	}
	env, err := cfg.Env(nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := node.New(p, env, cfg.Info())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestEnv_UHFM(t *testing.T) {
	cfg := mustParse(t, sample)
	n := startNode(t, cfg)

	if n.Address() != 0x20 || n.Board() != node.BoardUHFM {
		t.Errorf("address 0x%02X board %s", n.Address(), n.Board())
	}
	if got := n.Get(boards.UHFMEPID); got != 0x67452301 {
		t.Errorf("EP_ID = 0x%08X, want 0x67452301", got)
	}
	if n.Info().Software.Major != 2 || n.Info().Software.CommitID != 0xABCDEF {
		t.Errorf("info = %+v", n.Info())
	}

	mode, err := cfg.Mode()
	if err != nil || mode != bus.ModeAddressed {
		t.Errorf("mode = %v, %v", mode, err)
	}

	env := n.Env()
	sf := env.Sigfox.(*driver.SimSigfox)
	if sf.RSSIValue != -98 || string(sf.Downlink) != "\xDE\xAD\xBE\xEF" {
		t.Errorf("sigfox = %+v", sf)
	}
	if len(env.Loads) != len(boards.LoadNames) {
		t.Errorf("%d loads, want %d", len(env.Loads), len(boards.LoadNames))
	}
}

func TestEnv_BoardOptions(t *testing.T) {
	cfg := mustParse(t, sample)
	cfg.Options.DigitalInputs = []int{3}
	cfg.Options.ForcedHardware = true
	opts := cfg.BoardOptions()

	want := boards.Options{
		ForcedHardware: true,
		AnalogInputs:   [4]bool{true, false, true, false},
		DigitalInputs:  [4]bool{false, false, false, true},
	}
	if opts != want {
		t.Errorf("options = %+v, want %+v", opts, want)
	}
}

func TestEnv_FileNVM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvm.cbor")
	cfg := mustParse(t, sample)
	cfg.Node.NVM = path
	startNode(t, cfg)

	nvm, err := driver.OpenFileNVM(path, driver.DefaultNVMSize)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for i, want := range []byte{0x01, 0x23, 0x45, 0x67} {
		if b, _ := nvm.ReadByteAt(node.NVMEPIDOffset + i); b != want {
			t.Errorf("EP_ID byte %d = 0x%02X, want 0x%02X", i, b, want)
		}
	}
}

func TestEnv_GPSPosition(t *testing.T) {
	cfg := mustParse(t, sample)
	Normalize(cfg)
	env, err := cfg.Env(nil)
	if err != nil {
		t.Fatal(err)
	}
	gps := env.GPS.(*driver.SimGPS)

	want := driver.Position{
		LatDegrees: 43, LatMinutes: 36, LatSeconds: 12345, North: true,
		LongDegrees: 1, LongMinutes: 26, LongSeconds: 37320, East: false,
		AltitudeMeter: 150,
	}
	if gps.Fix != want {
		t.Errorf("fix = %+v, want %+v", gps.Fix, want)
	}
	if gps.FixTime.Milliseconds() != 1500 {
		t.Errorf("fix time = %s", gps.FixTime)
	}
}

// ============================================================================
// Logger Tests
// ============================================================================

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "addr", 0x20)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output %q is not one JSON record: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" {
		t.Errorf("msg = %v", rec["msg"])
	}

	if _, err := NewLogger(&buf, LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger(&buf, LogConfig{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
