// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/dinfox/pkg/bus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	controlFirst       uint8
	controlLast        uint8
	controlPingTimeout time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for inspecting and controlling nodes",
	Long: `Inspect and control the nodes of a bus via an interactive terminal UI.

Features:
  - Node discovery (address scan)
  - Live decoded register fields of the selected node
  - AT command entry for the selected node
  - Measurement and reboot triggers
  - Statistics tracking and event logging
  - Automatic reconnection on connection loss

The TUI discovers nodes first before enabling control. Tab switches between
the node list, the command input and the buttons. Arrow keys navigate the
node list.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().Uint8Var(&controlFirst, "first", 0x01, "First address to scan")
	controlCmd.Flags().Uint8Var(&controlLast, "last", bus.AddressBroadcast-1, "Last address to scan")
	controlCmd.Flags().DurationVar(&controlPingTimeout, "ping-timeout", 100*time.Millisecond, "Reply timeout per scanned address")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	master   *bus.Master
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
}

func (cm *connectionManager) getMaster() *bus.Master {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.master
}

func (cm *connectionManager) set(master *bus.Master, conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.master = master
	cm.conn = conn
	cm.connInfo = connInfo
}

func (cm *connectionManager) close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.conn != nil {
		cm.conn.Close()
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	master, conn, connInfo, err := OpenMaster()
	if err != nil {
		return err
	}

	cm := &connectionManager{done: make(chan struct{})}
	cm.set(master, conn, connInfo)

	m := initialControlModel(cm, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.watch()
	go cm.discover()

	_, err = p.Run()
	close(cm.done)
	cm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// watch reconnects whenever the link of the current master fails
func (cm *connectionManager) watch() {
	for {
		select {
		case <-cm.done:
			return
		case <-cm.getMaster().Done():
		}

		select {
		case <-cm.done:
			return
		default:
		}

		cm.p.Send(connectionLostMsg{})
		if !cm.reconnect() {
			return
		}
		go cm.discover()
	}
}

// discover scans the bus and reports every node found, then the end of
// the scan
func (cm *connectionManager) discover() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-cm.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	master := cm.getMaster()
	found, _ := master.Scan(ctx, controlFirst, controlLast, controlPingTimeout, func(addr uint8) {
		cm.p.Send(nodeFoundMsg{address: addr})
	})
	for _, addr := range found {
		board, err := identify(ctx, master, addr)
		if err != nil {
			continue
		}
		cm.p.Send(nodeIdentifiedMsg{address: addr, board: board})
	}
	cm.p.Send(discoveryCompleteMsg{})
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	cm.close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		master, conn, connInfo, err := OpenMaster()
		if err == nil {
			cm.set(master, conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		backoff = min(backoff*2, maxBackoff)
	}
}
