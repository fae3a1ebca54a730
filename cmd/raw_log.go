// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/spf13/cobra"
)

var rawLogStatsInterval int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display bus traffic in human-readable format",
	Long: `Continuously decode and display every frame seen on the bus, whatever its
source and destination.

Each line shows a timestamp, the direction (REQUEST, REPLY or BROADCAST), the
source and destination addresses and the AT line. Framing errors are printed
as they occur and statistics are printed periodically when --stats is set.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogStatsInterval, "stats", 0, "Statistics interval in seconds (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	mode, err := parseMode()
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("dinfox - Raw Bus Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Mode: %s\n", mode)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := bus.NewDecoder(mode)
	stats := bus.NewStatistics()

	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunks <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var tick <-chan time.Time
	if rawLogStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(rawLogStatsInterval) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-chunks:
			for _, b := range data {
				frame, err := decoder.DecodeByte(b)
				if frame == nil && err == nil {
					continue
				}
				stats.Update(frame, err)
				if err != nil {
					fmt.Printf("[ERROR] %v\n", err)
				}
				if frame != nil {
					fmt.Print(bus.FormatFrame(frame))
				}
			}

		case err := <-readErr:
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				fmt.Print(stats.String())
				return nil
			}
			return fmt.Errorf("read error: %w", err)

		case <-tick:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
