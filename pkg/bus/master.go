// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Thermoquad/dinfox/pkg/status"
)

// DefaultTimeout is the longest silence tolerated between two reply lines
const DefaultTimeout = time.Second

// Master is the request side of the bus. Commands are serialized: each one
// waits for its final OK or ERROR line before the next is sent.
type Master struct {
	conn    io.ReadWriter
	mode    Mode
	address uint8
	timeout time.Duration
	stats   *Statistics
	rx      *Receiver

	// A command that ended before its final line may still be answered
	// after the next one is sent. stale records the node it was sent to.
	stale     bool
	staleNode uint8

	mu sync.Mutex
}

// NewMaster creates a master on a link and starts its receiver. The
// receiver runs until the link is closed.
func NewMaster(conn io.ReadWriter, mode Mode) *Master {
	stats := NewStatistics()
	m := &Master{
		conn:    conn,
		mode:    mode,
		address: AddressMaster,
		timeout: DefaultTimeout,
		stats:   stats,
		rx:      NewReceiver(conn, mode, false, stats),
	}
	go m.rx.Run()
	return m
}

// Done is closed when the link fails or is closed.
func (m *Master) Done() <-chan struct{} {
	return m.rx.Done()
}

// SetAddress sets the source address of requests
func (m *Master) SetAddress(addr uint8) {
	m.mu.Lock()
	m.address = addr & AddressMask
	m.mu.Unlock()
}

// SetTimeout sets the reply timeout
func (m *Master) SetTimeout(d time.Duration) {
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// Statistics returns the receive statistics
func (m *Master) Statistics() *Statistics {
	return m.stats
}

// Command sends one command line and collects the reply lines preceding the
// final OK. An ERROR reply is returned as a *status.Error carrying the node
// code. Broadcast commands return immediately with no reply.
func (m *Master) Command(ctx context.Context, node uint8, line string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.command(ctx, node, line, m.timeout)
}

func (m *Master) command(ctx context.Context, node uint8, line string, timeout time.Duration) (lines []string, err error) {
	if m.stale && (m.mode != ModeAddressed || m.staleNode == node) {
		m.settle(ctx, timeout/2, 2*timeout)
	}
	m.stale = false
	m.drain()
	defer func() {
		if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			m.stale, m.staleNode = true, node
		}
	}()

	data, err := EncodeFrame(m.mode, node, m.address, line)
	if err != nil {
		return nil, err
	}
	if _, err := m.conn.Write(data); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}
	if m.mode == ModeAddressed && node == AddressBroadcast {
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return lines, ctx.Err()
		case <-timer.C:
			return lines, fmt.Errorf("node %s: %w", FormatAddress(node), ErrTimeout)
		case <-m.rx.Done():
			if err := m.rx.Err(); err != nil {
				return lines, err
			}
			return lines, io.ErrClosedPipe
		case in := <-m.rx.Lines():
			if in.Err != nil {
				continue
			}
			f := in.Frame
			if m.mode == ModeAddressed && (f.Destination != m.address || f.Source != node) {
				continue
			}
			if f.Line == ReplyOK {
				return lines, nil
			}
			if code, ok := ParseErrorReply(f.Line); ok {
				return lines, status.New(code, fmt.Sprintf("node %s replied %s", FormatAddress(node), f.Line))
			}
			lines = append(lines, f.Line)
			timer.Reset(timeout)
		}
	}
}

// settle discards lines until the link has been quiet for the quiet period,
// giving up after limit.
func (m *Master) settle(ctx context.Context, quiet, limit time.Duration) {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	silence := time.NewTimer(quiet)
	defer silence.Stop()

	discarded := 0
	for {
		select {
		case <-m.rx.Lines():
			discarded++
			silence.Reset(quiet)
		case <-silence.C:
			if discarded > 0 {
				slog.Debug("discarded late replies", "lines", discarded)
			}
			return
		case <-deadline.C:
			slog.Warn("link not quiet after timeout", "lines", discarded)
			return
		case <-ctx.Done():
			return
		case <-m.rx.Done():
			return
		}
	}
}

// drain discards replies already queued
func (m *Master) drain() {
	for {
		select {
		case <-m.rx.Lines():
		default:
			return
		}
	}
}

// Ping checks that a node answers and returns the round trip time
func (m *Master) Ping(ctx context.Context, node uint8) (time.Duration, error) {
	start := time.Now()
	if _, err := m.Command(ctx, node, "AT"); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// ReadRegister reads one register of a node
func (m *Master) ReadRegister(ctx context.Context, node, addr uint8) (uint32, error) {
	lines, err := m.Command(ctx, node, fmt.Sprintf("AT$R=%02X", addr))
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, ErrMalformedReply
	}
	v, err := strconv.ParseUint(lines[0], 16, 32)
	if err != nil {
		return 0, status.Wrap(ErrMalformedReply.Code, "register value", err)
	}
	return uint32(v), nil
}

// WriteRegister writes a full register of a node
func (m *Master) WriteRegister(ctx context.Context, node, addr uint8, value uint32) error {
	_, err := m.Command(ctx, node, fmt.Sprintf("AT$W=%02X,%08X", addr, value))
	return err
}

// WriteRegisterMask writes the bits of value selected by mask
func (m *Master) WriteRegisterMask(ctx context.Context, node, addr uint8, value, mask uint32) error {
	_, err := m.Command(ctx, node, fmt.Sprintf("AT$W=%02X,%08X,%08X", addr, value, mask))
	return err
}

// Scan pings every address in [first, last] and returns those that answer
// within timeout.
func (m *Master) Scan(ctx context.Context, first, last uint8, timeout time.Duration, found func(addr uint8)) ([]uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var nodes []uint8
	for addr := int(first); addr <= int(last); addr++ {
		if ctx.Err() != nil {
			return nodes, ctx.Err()
		}
		if addr == int(m.address) || addr == AddressBroadcast {
			continue
		}
		_, err := m.command(ctx, uint8(addr), "AT", timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nodes, ctx.Err()
			}
			continue
		}
		nodes = append(nodes, uint8(addr))
		if found != nil {
			found(uint8(addr))
		}
	}
	return nodes, nil
}
