// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dumpFormat string
	dumpOutput string
	dumpShow   string
)

var dumpCmd = &cobra.Command{
	Use:   "dump [node]",
	Short: "Snapshot every register of a node",
	Long: `Read the whole register map of a node and save it with its decoded fields.

The CBOR format is compact and meant to be compared or replayed later; the
YAML format is meant to be read. Use --show to print a saved snapshot
without a connection.

Examples:
  dinfox dump 0x10 --output lvrm.cbor
  dinfox dump 0x10 --format yaml
  dinfox dump --show lvrm.cbor`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVar(&dumpFormat, "format", "cbor", "Snapshot format (cbor or yaml)")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "Output file (stdout if empty)")
	dumpCmd.Flags().StringVar(&dumpShow, "show", "", "Print a saved CBOR snapshot as YAML")
}

// snapshot is the saved state of one node.
type snapshot struct {
	Address   uint8             `cbor:"1,keyasint" yaml:"address"`
	Board     string            `cbor:"2,keyasint" yaml:"board"`
	Taken     time.Time         `cbor:"3,keyasint" yaml:"taken"`
	Registers []registerDump    `cbor:"4,keyasint" yaml:"registers"`
	Errors    map[uint8]string  `cbor:"5,keyasint,omitempty" yaml:"errors,omitempty"`
	Fields    map[string]string `cbor:"6,keyasint,omitempty" yaml:"fields,omitempty"`
}

type registerDump struct {
	Addr  uint8  `cbor:"1,keyasint" yaml:"addr"`
	Name  string `cbor:"2,keyasint" yaml:"name"`
	Value uint32 `cbor:"3,keyasint" yaml:"value"`
}

func runDump(cmd *cobra.Command, args []string) error {
	if dumpShow != "" {
		return showSnapshot(dumpShow)
	}
	if len(args) != 1 {
		return errors.New("node address required")
	}
	addr, err := parseNodeAddress(args[0])
	if err != nil {
		return err
	}
	if dumpFormat != "cbor" && dumpFormat != "yaml" {
		return fmt.Errorf("unknown format %q", dumpFormat)
	}

	master, conn, _, err := OpenMaster()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	board, err := identify(ctx, master, addr)
	if err != nil {
		return err
	}
	layout := boards.Layout(board)
	values := make([]uint32, len(layout))
	failures := make(map[uint8]string)
	for i := range layout {
		v, err := master.ReadRegister(ctx, addr, uint8(i))
		if err != nil {
			failures[uint8(i)] = err.Error()
			continue
		}
		values[i] = v
	}

	snap := buildSnapshot(addr, board, layout, values, failures)
	snap.Taken = time.Now().UTC()
	return writeSnapshot(snap)
}

func buildSnapshot(addr uint8, board node.BoardID, layout register.Layout, values []uint32, failures map[uint8]string) snapshot {
	snap := snapshot{
		Address: addr,
		Board:   board.String(),
		Fields:  make(map[string]string),
	}
	for i, spec := range layout {
		snap.Registers = append(snap.Registers, registerDump{Addr: uint8(i), Name: spec.Name, Value: values[i]})
	}
	for _, f := range boards.Fields(board) {
		if _, failed := failures[f.Addr]; failed || int(f.Addr) >= len(values) {
			continue
		}
		snap.Fields[f.Name] = f.Format(values[f.Addr])
	}
	if len(failures) > 0 {
		snap.Errors = failures
	}
	return snap
}

func writeSnapshot(snap snapshot) error {
	var out io.Writer = os.Stdout
	if dumpOutput != "" {
		f, err := os.Create(dumpOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if dumpFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(snap)
	}
	return cbor.NewEncoder(out).Encode(snap)
}

func showSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(snap)
}
