// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/spf13/cobra"
)

var (
	discoveryFirst       uint8
	discoveryLast        uint8
	discoveryPingTimeout time.Duration
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover the nodes present on the bus",
	Long: `Ping every address of a range and identify the nodes that answer.

Each node found is identified by its NODE_ID register (board and address)
and by its AT$V? version reply. The master address and the broadcast
address are never probed.

Examples:
  # Scan the whole bus
  dinfox discovery --port /dev/ttyUSB0

  # Scan a small range with a short per-address timeout
  dinfox discovery --port /dev/ttyUSB0 --first 0x10 --last 0x1F --ping-timeout 50ms

Exit codes:
  0 - Discovery successful (at least one node found)
  1 - Discovery failed (no nodes)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().Uint8Var(&discoveryFirst, "first", 0x01, "First address to probe")
	discoveryCmd.Flags().Uint8Var(&discoveryLast, "last", bus.AddressBroadcast-1, "Last address to probe")
	discoveryCmd.Flags().DurationVar(&discoveryPingTimeout, "ping-timeout", 100*time.Millisecond, "Reply timeout per probed address")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	master, conn, connInfo, err := OpenMaster()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("dinfox - Node Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Range: 0x%02X..0x%02X\n", discoveryFirst, discoveryLast)
	fmt.Printf("Timeout: %s per address\n\n", discoveryPingTimeout)

	ctx := context.Background()
	found, err := master.Scan(ctx, discoveryFirst, discoveryLast, discoveryPingTimeout, func(addr uint8) {
		fmt.Printf("Node found at 0x%02X\n", addr)
	})
	if err != nil {
		fmt.Printf("SCAN FAILED: %v\n", err)
		os.Exit(2)
	}

	for _, addr := range found {
		fmt.Printf("\nNode 0x%02X:\n", addr)
		board, err := identify(ctx, master, addr)
		if err != nil {
			fmt.Printf("  Board: unknown (%v)\n", err)
		} else {
			fmt.Printf("  Board: %s\n", board)
		}
		version, err := master.Command(ctx, addr, "AT$V?")
		if err != nil {
			fmt.Printf("  Version: unknown (%v)\n", err)
			continue
		}
		for _, line := range version {
			fmt.Printf("  %s\n", strings.TrimSpace(line))
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Nodes found: %d\n", len(found))

	if len(found) == 0 {
		fmt.Printf("No nodes discovered. Check connection, framing mode and node power.\n")
		os.Exit(1)
	}
	return nil
}

// identify reads the board of the node at addr from its NODE_ID register.
func identify(ctx context.Context, m *bus.Master, addr uint8) (node.BoardID, error) {
	reg, err := m.ReadRegister(ctx, addr, node.AddrNodeID)
	if err != nil {
		return 0, err
	}
	id := node.Field{Addr: node.AddrNodeID, Mask: node.MaskBoardID}.Extract(reg)
	return node.BoardID(id), nil
}
