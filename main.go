// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// dinfox - field node register/protocol core
//
// Runs a field node (relay, charge monitor, GPS, sensor, radio...) that
// exposes its register map over an addressed serial bus, and provides the
// master-side tools to inspect and control such nodes.

package main

import (
	"os"

	"github.com/Thermoquad/dinfox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
