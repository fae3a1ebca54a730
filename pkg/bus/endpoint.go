// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"io"
	"log/slog"
)

// Handler executes the command lines received by an endpoint.
type Handler interface {
	// Address returns the current bus address of the node.
	Address() uint8
	// Handle executes one line and returns the reply lines.
	Handle(line string) []string
	// Overflow is called for a line that was truncated and discarded.
	Overflow(err error)
	// Idle is called once the reply has been transmitted.
	Idle()
}

// Endpoint is the node side of the bus. It executes one command at a time:
// reception is disabled as soon as a line completes, and re-enabled once
// the command has run and its reply has been transmitted, so the node never
// hears its own reply on a shared line.
type Endpoint struct {
	conn    io.ReadWriter
	mode    Mode
	handler Handler
	stats   *Statistics
	log     *slog.Logger
}

// NewEndpoint creates a node endpoint on a link.
func NewEndpoint(conn io.ReadWriter, mode Mode, h Handler, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Endpoint{
		conn:    conn,
		mode:    mode,
		handler: h,
		stats:   NewStatistics(),
		log:     logger,
	}
}

// Statistics returns the endpoint frame statistics
func (e *Endpoint) Statistics() *Statistics {
	return e.stats
}

// Serve runs the endpoint until ctx is cancelled or the link fails. The
// caller closes the link to release the reader.
func (e *Endpoint) Serve(ctx context.Context) error {
	rx := NewReceiver(e.conn, e.mode, true, e.stats)
	go rx.Run()

	e.log.Info("endpoint started", "address", FormatAddress(e.handler.Address()), "mode", e.mode.String())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rx.Done():
			return rx.Err()
		case in := <-rx.Lines():
			e.process(in, rx)
		}
	}
}

func (e *Endpoint) process(in Received, rx *Receiver) {
	f := in.Frame
	if e.mode == ModeAddressed && f.Destination != e.handler.Address() && !f.IsBroadcast() {
		e.stats.AddForeign()
		rx.Enable()
		return
	}
	if in.Err != nil {
		e.log.Warn("line discarded", "source", FormatAddress(f.Source), "error", in.Err)
		e.handler.Overflow(in.Err)
		rx.Enable()
		return
	}

	e.log.Debug("command", "source", FormatAddress(f.Source), "line", f.Line)
	replies := e.handler.Handle(f.Line)
	if e.mode == ModeRaw || !f.IsBroadcast() {
		for _, line := range replies {
			e.send(f.Source, line)
		}
		e.drain()
	}
	rx.Enable()
	e.handler.Idle()
}

// drainer is implemented by links that buffer transmitted bytes, such as
// serial ports.
type drainer interface {
	Drain() error
}

// drain waits until the reply has left the link
func (e *Endpoint) drain() {
	d, ok := e.conn.(drainer)
	if !ok {
		return
	}
	if err := d.Drain(); err != nil {
		e.log.Warn("drain failed", "error", err)
	}
}

func (e *Endpoint) send(destination uint8, line string) {
	data, err := EncodeFrame(e.mode, destination, e.handler.Address(), line)
	if err == nil {
		_, err = e.conn.Write(data)
	}
	if err != nil {
		e.stats.AddTransmitError()
		e.log.Error("reply not sent", "destination", FormatAddress(destination), "line", line, "error", err)
	}
}
