// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Read and write node registers",
	Long: `Access the register map of a node through AT$R and AT$W.

Addresses and values are hex, with or without a 0x prefix. The board of the
node is read from its NODE_ID register to decode the fields of a register.`,
}

var registerReadCmd = &cobra.Command{
	Use:   "read <node> <addr>",
	Short: "Read a register and decode its fields",
	Args:  cobra.ExactArgs(2),
	RunE:  runRegisterRead,
}

var registerWriteCmd = &cobra.Command{
	Use:   "write <node> <addr> <value> [mask]",
	Short: "Write a register, optionally under a mask",
	Args:  cobra.RangeArgs(3, 4),
	RunE:  runRegisterWrite,
}

var registerSetCmd = &cobra.Command{
	Use:   "set <node> <field> <value>",
	Short: "Write one named field",
	Long: `Write one field of the node by name, for example:

  dinfox register set 0x10 RLST 1

The value is the raw field value, in decimal or 0x-prefixed hex. Only the
bits of the field are written.`,
	Args: cobra.ExactArgs(3),
	RunE: runRegisterSet,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.AddCommand(registerReadCmd, registerWriteCmd, registerSetCmd)
}

func parseRegisterAddress(s string) (uint8, error) {
	v, err := parseHex32(s)
	if err != nil {
		return 0, err
	}
	if v > 0xFF {
		return 0, fmt.Errorf("register address 0x%X out of range", v)
	}
	return uint8(v), nil
}

func runRegisterRead(cmd *cobra.Command, args []string) error {
	addr, err := parseNodeAddress(args[0])
	if err != nil {
		return err
	}
	reg, err := parseRegisterAddress(args[1])
	if err != nil {
		return err
	}
	master, conn, _, err := OpenMaster()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	value, err := master.ReadRegister(ctx, addr, reg)
	if err != nil {
		return err
	}
	fmt.Printf("0x%02X = 0x%08X\n", reg, value)

	board, err := identify(ctx, master, addr)
	if err != nil {
		return nil
	}
	fmt.Print(formatFields(board, reg, value))
	return nil
}

func runRegisterWrite(cmd *cobra.Command, args []string) error {
	addr, err := parseNodeAddress(args[0])
	if err != nil {
		return err
	}
	reg, err := parseRegisterAddress(args[1])
	if err != nil {
		return err
	}
	value, err := parseHex32(args[2])
	if err != nil {
		return err
	}
	mask := uint32(0xFFFFFFFF)
	if len(args) == 4 {
		if mask, err = parseHex32(args[3]); err != nil {
			return err
		}
	}

	master, conn, _, err := OpenMaster()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := master.WriteRegisterMask(context.Background(), addr, reg, value, mask); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func runRegisterSet(cmd *cobra.Command, args []string) error {
	addr, err := parseNodeAddress(args[0])
	if err != nil {
		return err
	}
	raw, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid field value %q", args[2])
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
	f, ok := lookupField(board, args[1])
	if !ok {
		return fmt.Errorf("board %s has no field %s", board, strings.ToUpper(args[1]))
	}
	if uint32(raw) > codec.Get(0xFFFFFFFF, f.Mask) {
		return fmt.Errorf("value %d does not fit field %s", raw, f.Name)
	}
	if err := master.WriteRegisterMask(ctx, addr, f.Addr, codec.Put(f.Mask, uint32(raw)), f.Mask); err != nil {
		return err
	}

	value, err := master.ReadRegister(ctx, addr, f.Addr)
	if err != nil {
		return err
	}
	fmt.Printf("%s=%s\n", f.Name, f.Format(value))
	return nil
}

func lookupField(board node.BoardID, name string) (node.Field, bool) {
	name = strings.ToUpper(name)
	for _, f := range boards.Fields(board) {
		if f.Name == name {
			return f, true
		}
	}
	return node.Field{}, false
}

// formatFields renders the fields of register addr as indented NAME=value
// lines.
func formatFields(board node.BoardID, addr uint8, value uint32) string {
	var s strings.Builder
	for _, f := range boards.Fields(board) {
		if f.Addr == addr {
			fmt.Fprintf(&s, "  %s=%s\n", f.Name, f.Format(value))
		}
	}
	return s.String()
}
