// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus implements the addressed serial bus protocol between a master
// and its nodes.
//
// Every frame is one ASCII command or reply line:
//
//	[destination | 0x80] [source] [line ...] [terminator]
//
// The destination byte is the only byte with its top bit set, which lets a
// receiver resynchronize on it. A point-to-point link may also run in raw
// mode, where frames are bare lines with no address bytes.
package bus

import (
	"fmt"
	"strconv"

	"github.com/Thermoquad/dinfox/pkg/status"
)

// Framing bytes
const (
	Terminator      = '\r'
	DestinationFlag = 0x80
	AddressMask     = 0x7F
)

// LineCapacity is the size of the receive line buffer. Longer lines are
// truncated and discarded.
const LineCapacity = 64

// Well-known addresses
const (
	AddressMaster    = 0x00
	AddressBroadcast = 0x7F
)

// Mode selects the framing of a link.
type Mode uint8

// Link modes
const (
	ModeAddressed Mode = iota
	ModeRaw
)

func (m Mode) String() string {
	if m == ModeRaw {
		return "raw"
	}
	return "addressed"
}

// ParseMode parses a link mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "addressed":
		return ModeAddressed, nil
	case "raw":
		return ModeRaw, nil
	}
	return 0, fmt.Errorf("unknown bus mode %q", s)
}

// Reply lines
const (
	ReplyOK          = "OK"
	replyErrorPrefix = "ERROR_"
)

// FormatErrorReply returns the reply line of a failed command.
func FormatErrorReply(code status.Code) string {
	return fmt.Sprintf("%s%04X", replyErrorPrefix, uint16(code))
}

// ParseErrorReply returns the code of an error reply line.
func ParseErrorReply(line string) (status.Code, bool) {
	if len(line) != len(replyErrorPrefix)+4 || line[:len(replyErrorPrefix)] != replyErrorPrefix {
		return 0, false
	}
	code, err := strconv.ParseUint(line[len(replyErrorPrefix):], 16, 16)
	if err != nil {
		return 0, false
	}
	return status.Code(code), true
}

// Errors
var (
	ErrLineTruncated    = status.New(status.BaseBus+1, "line exceeds buffer capacity")
	ErrFrameInterrupted = status.New(status.BaseBus+2, "frame interrupted by a new destination byte")
	ErrTimeout          = status.New(status.BaseBus+3, "no reply from node")
	ErrLineTooLong      = status.New(status.BaseBus+4, "line too long")
	ErrInvalidCharacter = status.New(status.BaseBus+5, "invalid character in line")
	ErrMalformedReply   = status.New(status.BaseBus+6, "malformed reply")
)
