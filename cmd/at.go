// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/status"
	"github.com/spf13/cobra"
)

var atCmd = &cobra.Command{
	Use:   "at <node> <command>",
	Short: "Send one AT command to a node",
	Long: `Send an AT command line to a node and print its reply lines.

Use 0x7F as node to broadcast: every node executes the command and none
replies. Error replies are decoded into the module and code that raised them.

Examples:
  dinfox at 0x10 'AT$V?'
  dinfox at 0x22 'AT$SF=CAFE,1'
  dinfox at 0x7F 'AT$RST'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAT,
}

func init() {
	rootCmd.AddCommand(atCmd)
}

func runAT(cmd *cobra.Command, args []string) error {
	addr, err := parseBroadcastOrNode(args[0])
	if err != nil {
		return err
	}
	line := strings.Join(args[1:], " ")

	master, conn, _, err := OpenMaster()
	if err != nil {
		return err
	}
	defer conn.Close()

	lines, err := master.Command(context.Background(), addr, line)
	for _, l := range lines {
		fmt.Println(l)
	}
	if addr == bus.AddressBroadcast {
		if err == nil {
			fmt.Println("(broadcast, no reply)")
		}
		return err
	}

	var serr *status.Error
	if errors.As(err, &serr) {
		fmt.Printf("%s (%s)\n", bus.FormatErrorReply(serr.Code), describeCode(serr.Code))
		return err
	}
	if err != nil {
		return err
	}
	fmt.Println(bus.ReplyOK)
	return nil
}

func parseBroadcastOrNode(s string) (uint8, error) {
	if s == "0x7F" || s == "0x7f" || s == "127" {
		return bus.AddressBroadcast, nil
	}
	return parseNodeAddress(s)
}

// describeCode names the module that raised an error code.
func describeCode(code status.Code) string {
	return fmt.Sprintf("%s error 0x%02X", code.Subsystem(), code.Local())
}
