// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package register implements the node register store: an indexable array
// of 32-bit registers with static access attributes, masked reads and
// writes, and request-source gated hooks.
//
// Internal accesses (from the node's own logic) bypass access control and
// hooks. External accesses (from the bus) are access-checked, refresh the
// register before a read, and run the validation and side-effect hooks
// around a write.
package register

import (
	"fmt"

	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/status"
)

// Access is the static access attribute of a register.
type Access uint8

// Access values
const (
	ReadWrite Access = iota
	ReadOnly
)

func (a Access) String() string {
	if a == ReadOnly {
		return "RO"
	}
	return "RW"
}

// Source tags every register access.
type Source uint8

// Source values
const (
	Internal Source = iota
	External
)

func (s Source) String() string {
	if s == External {
		return "external"
	}
	return "internal"
}

// Spec is the build-time description of one register.
type Spec struct {
	Name   string
	Access Access
	// ErrorValue is loaded by Reset before each measurement cycle.
	ErrorValue uint32
	// Triggers selects edge-triggered bits. They fire their handler on a
	// 0 to 1 transition and are cleared by the same store operation.
	Triggers uint32
	// Volatile registers are reset to ErrorValue before a measurement.
	Volatile bool
	// Persistent registers are mirrored to non-volatile memory.
	Persistent bool
}

// Layout is the ordered register map of a node, indexed by address.
type Layout []Spec

// Errors
var (
	ErrUnknownAddress     = status.New(status.BaseNode+0x01, "unknown register address")
	ErrReadOnlyViolation  = status.New(status.BaseNode+0x02, "read-only register")
	ErrRegisterFieldValue = status.New(status.BaseNode+0x03, "invalid register field value")
)

// Hooks are the personality callbacks invoked on external accesses.
type Hooks interface {
	// Refresh recomputes the volatile fields of addr before it is read.
	Refresh(s *Store, addr uint8) error
	// Secure validates a proposed write before it is merged. It returns the
	// mask and value actually applied.
	Secure(s *Store, addr uint8, mask, value uint32) (uint32, uint32, error)
	// Process executes the side effects of a merged write.
	Process(s *Store, addr uint8, mask uint32) error
}

// Store holds the registers of one node.
type Store struct {
	layout Layout
	regs   []uint32
	hooks  Hooks
}

// New creates a store for the given layout. Every register starts at its
// error value.
func New(layout Layout) *Store {
	s := &Store{
		layout: layout,
		regs:   make([]uint32, len(layout)),
	}
	for addr := range layout {
		s.regs[addr] = layout[addr].ErrorValue
	}
	return s
}

// SetHooks installs the hooks used for external accesses.
func (s *Store) SetHooks(h Hooks) {
	s.hooks = h
}

// Count returns the number of registers.
func (s *Store) Count() int {
	return len(s.regs)
}

// Spec returns the description of addr.
func (s *Store) Spec(addr uint8) (Spec, error) {
	if err := s.check(addr); err != nil {
		return Spec{}, err
	}
	return s.layout[addr], nil
}

func (s *Store) check(addr uint8) error {
	if int(addr) >= len(s.regs) {
		return fmt.Errorf("address 0x%02X (count %d): %w", addr, len(s.regs), ErrUnknownAddress)
	}
	return nil
}

// Read returns the value of addr. An external read first refreshes the
// register; the current value is returned even when the refresh fails.
func (s *Store) Read(src Source, addr uint8) (uint32, error) {
	if err := s.check(addr); err != nil {
		return 0, err
	}
	var err error
	if src == External && s.hooks != nil {
		err = s.hooks.Refresh(s, addr)
	}
	return s.regs[addr], err
}

// ReadField returns the field of addr selected by mask, shifted down.
func (s *Store) ReadField(src Source, addr uint8, mask uint32) (uint32, error) {
	value, err := s.Read(src, addr)
	return codec.Get(value, mask), err
}

// Write merges value into addr under mask.
//
// For an external source the write is rejected on read-only registers, then
// validated and clamped by the Secure hook before the merge, then handed to
// the Process hook. Edge-triggered bits are cleared before Write returns,
// whatever the outcome of Process. The first error is returned.
func (s *Store) Write(src Source, addr uint8, mask, value uint32) error {
	if err := s.check(addr); err != nil {
		return err
	}
	spec := s.layout[addr]
	if src == Internal || s.hooks == nil {
		s.merge(addr, mask, value)
		return nil
	}
	if spec.Access == ReadOnly {
		return fmt.Errorf("%s (0x%02X): %w", spec.Name, addr, ErrReadOnlyViolation)
	}

	mask, value, secureErr := s.hooks.Secure(s, addr, mask, value)
	s.merge(addr, mask, value)

	processErr := s.hooks.Process(s, addr, mask)
	s.regs[addr] &^= spec.Triggers

	if secureErr != nil {
		return secureErr
	}
	return processErr
}

// WriteField sets the field selected by mask to field.
func (s *Store) WriteField(src Source, addr uint8, mask, field uint32) error {
	return s.Write(src, addr, mask, codec.Put(mask, field))
}

func (s *Store) merge(addr uint8, mask, value uint32) {
	s.regs[addr] = (s.regs[addr] &^ mask) | (value & mask)
}

// Reset loads the error value of addr.
func (s *Store) Reset(addr uint8) error {
	if err := s.check(addr); err != nil {
		return err
	}
	s.regs[addr] = s.layout[addr].ErrorValue
	return nil
}

// ResetVolatile loads the error value of every volatile register.
func (s *Store) ResetVolatile() {
	for addr, spec := range s.layout {
		if spec.Volatile {
			s.regs[addr] = spec.ErrorValue
		}
	}
}

// Snapshot returns a copy of every register value.
func (s *Store) Snapshot() []uint32 {
	out := make([]uint32, len(s.regs))
	copy(out, s.regs)
	return out
}
