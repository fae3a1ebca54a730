// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/status"
)

// ============================================================
// Argument Parsing Tests
// ============================================================

func TestParseNodeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    uint8
		wantErr bool
	}{
		{"0x10", 0x10, false},
		{"16", 0x10, false},
		{"0x7E", 0x7E, false},
		{"0", 0, false},
		{"0x7F", 0, true},
		{"0x100", 0, true},
		{"node", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseNodeAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseNodeAddress(%q) = 0x%02X, want 0x%02X", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseBroadcastOrNode(t *testing.T) {
	for _, in := range []string{"0x7F", "0x7f", "127"} {
		got, err := parseBroadcastOrNode(in)
		if err != nil || got != bus.AddressBroadcast {
			t.Errorf("parseBroadcastOrNode(%q) = 0x%02X, %v", in, got, err)
		}
	}
	if got, err := parseBroadcastOrNode("0x21"); err != nil || got != 0x21 {
		t.Errorf("parseBroadcastOrNode(0x21) = 0x%02X, %v", got, err)
	}
}

func TestParseHex32(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0x1F", 0x1F, false},
		{"0X1f", 0x1F, false},
		{"DEADBEEF", 0xDEADBEEF, false},
		{"0", 0, false},
		{"100000000", 0, true},
		{"0x", 0, true},
		{"xyz", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHex32(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseHex32(%q) = 0x%X, want 0x%X", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRegisterAddress(t *testing.T) {
	if got, err := parseRegisterAddress("0x0A"); err != nil || got != 0x0A {
		t.Errorf("parseRegisterAddress(0x0A) = 0x%02X, %v", got, err)
	}
	if _, err := parseRegisterAddress("100"); err == nil {
		t.Error("expected an error for 0x100")
	}
}

// ============================================================
// Field Helper Tests
// ============================================================

func TestLookupField(t *testing.T) {
	f, ok := lookupField(node.BoardLVRM, "rlst")
	if !ok {
		t.Fatal("RLST not found on LVRM")
	}
	if f.Name != "RLST" {
		t.Errorf("name = %q", f.Name)
	}

	// Common fields are shared by every board
	if f, ok := lookupField(node.BoardUHFM, "board_id"); !ok || f.Addr != node.AddrNodeID {
		t.Errorf("BOARD_ID = %+v, %v", f, ok)
	}

	if _, ok := lookupField(node.BoardUHFM, "RLST"); ok {
		t.Error("LVRM field found on UHFM")
	}
}

func TestFormatFields(t *testing.T) {
	got := formatFields(node.BoardUHFM, node.AddrNodeID, 0x0320)
	want := "  NODE_ADDR=0x20\n  BOARD_ID=3\n"
	if got != want {
		t.Errorf("formatFields = %q, want %q", got, want)
	}
}

func TestDescribeCode(t *testing.T) {
	if got := describeCode(status.BaseGPS + 0x02); got != "GPS error 0x02" {
		t.Errorf("describeCode = %q", got)
	}
}

// ============================================================
// Snapshot Tests
// ============================================================

func TestBuildSnapshot(t *testing.T) {
	layout := boards.Layout(node.BoardUHFM)
	values := make([]uint32, len(layout))
	values[node.AddrNodeID] = 0x0320
	failures := map[uint8]string{node.AddrErrorStack: "no reply from node"}

	snap := buildSnapshot(0x20, node.BoardUHFM, layout, values, failures)

	if snap.Address != 0x20 || snap.Board != "UHFM" {
		t.Errorf("header = 0x%02X %s", snap.Address, snap.Board)
	}
	if len(snap.Registers) != len(layout) {
		t.Fatalf("registers = %d, want %d", len(snap.Registers), len(layout))
	}
	if r := snap.Registers[node.AddrNodeID]; r.Name != "NODE_ID" || r.Value != 0x0320 {
		t.Errorf("NODE_ID register = %+v", r)
	}
	if snap.Fields["BOARD_ID"] != "3" || snap.Fields["NODE_ADDR"] != "0x20" {
		t.Errorf("fields = %v", snap.Fields)
	}
	if _, ok := snap.Fields["ERROR"]; ok {
		t.Error("field of a failed register decoded")
	}
	if snap.Errors[node.AddrErrorStack] != "no reply from node" {
		t.Errorf("errors = %v", snap.Errors)
	}
}

func TestWriteSnapshot_YAML(t *testing.T) {
	oldFormat, oldOutput := dumpFormat, dumpOutput
	t.Cleanup(func() { dumpFormat, dumpOutput = oldFormat, oldOutput })

	dumpFormat = "yaml"
	dumpOutput = filepath.Join(t.TempDir(), "snap.yaml")

	layout := boards.Layout(node.BoardLVRM)
	snap := buildSnapshot(0x10, node.BoardLVRM, layout, make([]uint32, len(layout)), nil)
	if err := writeSnapshot(snap); err != nil {
		t.Fatalf("writeSnapshot failed: %v", err)
	}

	data, err := os.ReadFile(dumpOutput)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"address: 16", "board: LVRM", "name: NODE_ID"} {
		if !strings.Contains(text, want) {
			t.Errorf("snapshot missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "errors:") {
		t.Error("empty errors written")
	}
}
