// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Bus flags
	busMode       string
	masterAddress uint8
	replyTimeout  time.Duration
	traceBus      bool
)

var rootCmd = &cobra.Command{
	Use:   "dinfox",
	Short: "Field node register bus toolkit",
	Long: `dinfox - Run and inspect field nodes on an addressed serial bus.

A node exposes its register map through AT commands framed on a shared
half-duplex line. The node command runs a simulated node from a YAML
description; the other commands act as the bus master.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the DINFOX_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bus flags
	rootCmd.PersistentFlags().StringVar(&busMode, "mode", "addressed", "Framing mode (addressed or raw)")
	rootCmd.PersistentFlags().Uint8Var(&masterAddress, "master", bus.AddressMaster, "Master address used as reply destination")
	rootCmd.PersistentFlags().DurationVar(&replyTimeout, "timeout", bus.DefaultTimeout, "Per-line reply timeout")
	rootCmd.PersistentFlags().BoolVar(&traceBus, "trace", false, "Log every byte read and written on stderr")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// parseMode returns the framing mode selected by --mode.
func parseMode() (bus.Mode, error) {
	return bus.ParseMode(busMode)
}

// parseNodeAddress parses a node address argument. Hex with a 0x prefix
// and decimal are accepted.
func parseNodeAddress(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node address %q: %w", s, err)
	}
	if v >= bus.AddressBroadcast {
		return 0, fmt.Errorf("node address 0x%02X out of range", v)
	}
	return uint8(v), nil
}

// parseHex32 parses a register address or value written in hex, with or
// without a 0x prefix.
func parseHex32(s string) (uint32, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q", s)
	}
	return uint32(v), nil
}

// traceLogger is the stderr logger used by --trace.
func traceLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
