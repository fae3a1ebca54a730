// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"time"
)

// Decoder states
const (
	stateIdle = iota
	stateSource
	stateLine
)

// Decoder implements the bus frame decoder state machine. The line buffer
// has a fixed capacity; once it is full, further bytes are dropped until
// the terminator and the frame is reported as truncated.
type Decoder struct {
	mode        Mode
	state       int
	destination uint8
	source      uint8
	buffer      [LineCapacity]byte
	bufferIndex int
	truncated   bool
}

// NewDecoder creates a new frame decoder
func NewDecoder(mode Mode) *Decoder {
	d := &Decoder{mode: mode}
	d.Reset()
	return d
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	if d.mode == ModeRaw {
		d.state = stateLine
	}
	d.destination = 0
	d.source = 0
	d.bufferIndex = 0
	d.truncated = false
}

// Pending returns true if a frame is partially decoded
func (d *Decoder) Pending() bool {
	if d.mode == ModeRaw {
		return d.bufferIndex > 0 || d.truncated
	}
	return d.state != stateIdle
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// A truncated frame is returned together with ErrLineTruncated.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if d.mode == ModeAddressed && b&DestinationFlag != 0 {
		var err error
		if d.state != stateIdle {
			err = ErrFrameInterrupted
		}
		d.Reset()
		d.destination = b & AddressMask
		d.state = stateSource
		return nil, err
	}

	switch d.state {
	case stateIdle:
		// Noise between frames
		return nil, nil

	case stateSource:
		d.source = b
		d.state = stateLine
		return nil, nil

	case stateLine:
		if b == Terminator {
			return d.complete()
		}
		if d.mode == ModeRaw && b == '\n' {
			return nil, nil
		}
		if d.bufferIndex >= LineCapacity {
			d.truncated = true
			return nil, nil
		}
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		return nil, nil
	}

	d.Reset()
	return nil, nil
}

func (d *Decoder) complete() (*Frame, error) {
	f := &Frame{
		Destination: d.destination,
		Source:      d.source,
		Line:        string(d.buffer[:d.bufferIndex]),
		Truncated:   d.truncated,
		timestamp:   time.Now(),
	}
	d.Reset()
	if f.Truncated {
		return f, ErrLineTruncated
	}
	return f, nil
}

// Decode feeds data through the decoder and returns every completed frame
// and every error in arrival order.
func (d *Decoder) Decode(data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil && err == nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}
