// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"io"
	"sync/atomic"
)

// Received is a completed line delivered by a Receiver. Err is
// ErrLineTruncated when the line overflowed the buffer.
type Received struct {
	Frame *Frame
	Err   error
}

// Receiver reads a link and decodes it into frames. It only fills the line
// buffer and signals completed lines; commands are executed by the consumer.
//
// In half-duplex mode the receiver disables itself after each completed
// line, and drops every byte until the consumer calls Enable.
type Receiver struct {
	r          io.Reader
	decoder    *Decoder
	stats      *Statistics
	halfDuplex bool

	enabled atomic.Bool
	lines   chan Received
	done    chan struct{}
	err     error
}

// NewReceiver creates a receiver. Call Run to start reading.
func NewReceiver(r io.Reader, mode Mode, halfDuplex bool, stats *Statistics) *Receiver {
	if stats == nil {
		stats = NewStatistics()
	}
	depth := 16
	if halfDuplex {
		depth = 1
	}
	rx := &Receiver{
		r:          r,
		decoder:    NewDecoder(mode),
		stats:      stats,
		halfDuplex: halfDuplex,
		lines:      make(chan Received, depth),
		done:       make(chan struct{}),
	}
	rx.enabled.Store(true)
	return rx
}

// Lines returns the channel of completed lines
func (rx *Receiver) Lines() <-chan Received {
	return rx.lines
}

// Done is closed when Run returns
func (rx *Receiver) Done() <-chan struct{} {
	return rx.done
}

// Err returns the read error that stopped the receiver
func (rx *Receiver) Err() error {
	<-rx.done
	return rx.err
}

// Enable re-enables reception
func (rx *Receiver) Enable() {
	rx.enabled.Store(true)
}

// Disable stops reception. Bytes received while disabled are dropped.
func (rx *Receiver) Disable() {
	rx.enabled.Store(false)
}

// Run reads until the underlying reader fails. Closing the connection is
// the way to stop it.
func (rx *Receiver) Run() {
	defer close(rx.done)

	buf := make([]byte, 256)
	for {
		n, err := rx.r.Read(buf)
		for _, b := range buf[:n] {
			rx.receive(b)
		}
		if err != nil {
			rx.err = err
			return
		}
	}
}

func (rx *Receiver) receive(b byte) {
	if !rx.enabled.Load() {
		rx.decoder.Reset()
		rx.stats.AddDropped(1)
		return
	}

	f, err := rx.decoder.DecodeByte(b)
	if f == nil {
		if err != nil {
			rx.stats.Update(nil, err)
		}
		return
	}
	rx.stats.Update(f, err)

	if rx.halfDuplex {
		rx.enabled.Store(false)
	}
	select {
	case rx.lines <- Received{Frame: f, Err: err}:
	default:
		rx.stats.AddDropped(len(f.Line))
	}
}
