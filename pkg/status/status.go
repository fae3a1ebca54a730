// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package status defines the numeric error codes shared by every layer of a
// node. A code is the sum of a subsystem base and a local status value, and
// is what ends up on the error stack and in ERROR_<code> replies.
package status

import (
	"errors"
	"fmt"
)

// Code is a subsystem base plus a local status value.
type Code uint16

// Success is the absence of error.
const Success Code = 0x0000

// Subsystem bases
const (
	BaseNode    Code = 0x0100
	BaseAT      Code = 0x0200
	BaseBus     Code = 0x0300
	BaseAnalog  Code = 0x0400
	BaseDigital Code = 0x0500
	BaseLoad    Code = 0x0600
	BaseGPS     Code = 0x0700
	BaseRadio   Code = 0x0800
	BaseNVM     Code = 0x0900
	BasePower   Code = 0x0A00
	BaseSensor  Code = 0x0B00
	BaseMeter   Code = 0x0C00
)

var baseNames = map[Code]string{
	BaseNode:    "NODE",
	BaseAT:      "AT",
	BaseBus:     "BUS",
	BaseAnalog:  "ANALOG",
	BaseDigital: "DIGITAL",
	BaseLoad:    "LOAD",
	BaseGPS:     "GPS",
	BaseRadio:   "RADIO",
	BaseNVM:     "NVM",
	BasePower:   "POWER",
	BaseSensor:  "SENSOR",
	BaseMeter:   "METER",
}

// Subsystem names the subsystem of the code.
func (c Code) Subsystem() string {
	if name, ok := baseNames[c.Base()]; ok {
		return name
	}
	return "UNKNOWN"
}

// Base returns the subsystem base of the code.
func (c Code) Base() Code {
	return c & 0xFF00
}

// Local returns the subsystem-local part of the code.
func (c Code) Local() uint8 {
	return uint8(c & 0x00FF)
}

// IsDriver reports whether the code comes from a collaborator (driver) layer
// rather than from the protocol or policy layers.
func (c Code) IsDriver() bool {
	return c.Base() >= BaseAnalog
}

func (c Code) String() string {
	return fmt.Sprintf("0x%04X", uint16(c))
}

// Error carries a status code through the error chain.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

// New creates an error for the given code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap attaches a code to a lower-layer error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Msg, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Code)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any status error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the outermost status code from err. Errors that do not
// carry a code map to the generic code of the given fallback base.
func CodeOf(err error, fallback Code) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return fallback.Base() + 0xFF
}
