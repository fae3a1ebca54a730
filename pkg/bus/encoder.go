// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import "fmt"

// Encoder encodes frames for transmission in one link mode.
type Encoder struct {
	mode Mode
}

// NewEncoder creates a new frame encoder.
func NewEncoder(mode Mode) *Encoder {
	return &Encoder{mode: mode}
}

// Encode encodes a frame to wire format.
func (e *Encoder) Encode(f *Frame) ([]byte, error) {
	return EncodeFrame(e.mode, f.Destination, f.Source, f.Line)
}

// EncodeFrame creates a complete wire-formatted frame.
// The line must be printable ASCII and fit the receive buffer of the peer.
func EncodeFrame(mode Mode, destination, source uint8, line string) ([]byte, error) {
	if len(line) > LineCapacity {
		return nil, fmt.Errorf("%d bytes (max %d): %w", len(line), LineCapacity, ErrLineTooLong)
	}
	for i := 0; i < len(line); i++ {
		if c := line[i]; c < 0x20 || c >= 0x7F {
			return nil, fmt.Errorf("byte 0x%02X at %d: %w", c, i, ErrInvalidCharacter)
		}
	}

	frame := make([]byte, 0, len(line)+3)
	if mode == ModeAddressed {
		frame = append(frame, DestinationFlag|(destination&AddressMask), source&AddressMask)
	}
	frame = append(frame, line...)
	frame = append(frame, Terminator)
	return frame, nil
}
