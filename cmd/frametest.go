// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/dinfox/pkg/bus"
	"github.com/spf13/cobra"
)

var frameTestWait int

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid bus frame",
	Long: `Wait for a complete frame on the connection until timeout.

Bytes seen before the first frame start are skipped, as are truncated and
interrupted frames. Any frame counts, whatever its source and destination.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the wiring, the baud rate and the framing mode.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestWait, "wait", 10, "Time in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	mode, err := parseMode()
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("dinfox - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Mode: %s\n", mode)
	fmt.Printf("Waiting up to %d seconds for a valid frame...\n\n", frameTestWait)

	frameChan := make(chan *bus.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		decoder := bus.NewDecoder(mode)
		buf := make([]byte, 128)
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil || frame == nil {
					if !decoder.Pending() {
						skipped++
					}
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d bytes before sync)\n", skipped)
				}
				frameChan <- frame
				return
			}
		}
	}()

	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Direction: %s\n", bus.FormatDirection(frame))
		fmt.Printf("  Source: %s\n", bus.FormatAddress(frame.Source))
		fmt.Printf("  Destination: %s\n", bus.FormatAddress(frame.Destination))
		fmt.Printf("  Line: %q\n", frame.Line)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestWait) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestWait)
		os.Exit(1)
	}

	return nil
}
