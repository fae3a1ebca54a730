// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import "time"

// Frame is one decoded bus frame
type Frame struct {
	Destination uint8
	Source      uint8
	Line        string
	// Truncated is set when the line overflowed the receive buffer. Line
	// then only holds the bytes that fit.
	Truncated bool

	timestamp time.Time
}

// NewFrame creates a frame for transmission
func NewFrame(destination, source uint8, line string) *Frame {
	return &Frame{
		Destination: destination & AddressMask,
		Source:      source & AddressMask,
		Line:        line,
		timestamp:   time.Now(),
	}
}

// Timestamp returns the frame decode or creation time
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsBroadcast returns true if the frame is addressed to every node
func (f *Frame) IsBroadcast() bool {
	return f.Destination == AddressBroadcast
}

// IsReply returns true if the frame is addressed to the master
func (f *Frame) IsReply() bool {
	return f.Destination == AddressMaster
}
