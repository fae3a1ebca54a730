// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"fmt"
	"strconv"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")

	result := fmt.Sprintf("[%s] %s %s -> %s %s", timestamp, FormatDirection(f),
		FormatAddress(f.Source), FormatAddress(f.Destination), strconv.Quote(f.Line))
	if f.Truncated {
		result += " (truncated)"
	}
	return result + "\n"
}

// FormatDirection names the role of a frame on the bus
func FormatDirection(f *Frame) string {
	switch {
	case f.IsBroadcast():
		return "BROADCAST"
	case f.IsReply():
		return "REPLY"
	default:
		return "REQUEST"
	}
}

// FormatAddress returns the human-readable form of a bus address
func FormatAddress(addr uint8) string {
	switch addr {
	case AddressMaster:
		return "master"
	case AddressBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("0x%02X", addr)
	}
}
