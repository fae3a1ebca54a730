// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"io"
	"log/slog"
)

// LogOption is a bitmask for selecting which operations to log.
type LogOption uint8

const (
	LogNone  LogOption = 0
	LogRead  LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLoggedConn wraps a link and logs the selected operations at the given
// level. Close is forwarded without logging.
func NewLoggedConn(inner io.ReadWriteCloser, logger *slog.Logger, level slog.Level, opts LogOption) io.ReadWriteCloser {
	return &loggedConn{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
	}
}

type loggedConn struct {
	inner  io.ReadWriteCloser
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
}

func (l *loggedConn) Read(p []byte) (int, error) {
	n, err := l.inner.Read(p)
	if l.opts&LogRead != 0 {
		if n > 0 {
			l.logger.Log(context.Background(), l.level, "bus read",
				"len", n,
				"data", p[:n],
			)
		}
		if err != nil && err != io.EOF {
			l.logger.Log(context.Background(), slog.LevelError, "bus read error",
				"error", err,
			)
		}
	}
	return n, err
}

func (l *loggedConn) Write(p []byte) (int, error) {
	if l.opts&LogWrite != 0 {
		l.logger.Log(context.Background(), l.level, "bus write",
			"len", len(p),
			"data", p,
		)
	}
	n, err := l.inner.Write(p)
	if l.opts&LogWrite != 0 && err != nil {
		l.logger.Log(context.Background(), slog.LevelError, "bus write error",
			"error", err,
		)
	}
	return n, err
}

// Drain forwards to the wrapped link when it buffers transmitted bytes
func (l *loggedConn) Drain() error {
	if d, ok := l.inner.(drainer); ok {
		return d.Drain()
	}
	return nil
}

func (l *loggedConn) Close() error {
	return l.inner.Close()
}
