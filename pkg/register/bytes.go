// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package register

import "fmt"

// Byte arrays are laid out little-endian over consecutive registers: byte i
// lives in register addr + i/4 under mask 0xFF << (8 * (i % 4)).

func byteMask(i int) uint32 {
	return 0xFF << (8 * uint(i%4))
}

// checkSpan rejects a byte array whose last register lies past the layout.
// The whole span is checked before anything is written.
func (s *Store) checkSpan(addr uint8, n int) error {
	if n <= 0 {
		return s.check(addr)
	}
	last := int(addr) + (n-1)/4
	if last >= len(s.regs) {
		return fmt.Errorf("bytes 0x%02X..0x%02X (count %d): %w", addr, last, len(s.regs), ErrUnknownAddress)
	}
	return nil
}

// WriteBytes stores data starting at register addr, one masked byte field at
// a time, so that external writes go through the same access checks and
// hooks as any other write.
func (s *Store) WriteBytes(src Source, addr uint8, data []byte) error {
	if err := s.checkSpan(addr, len(data)); err != nil {
		return err
	}
	for i, b := range data {
		reg := addr + uint8(i/4)
		shift := 8 * uint(i%4)
		if err := s.Write(src, reg, byteMask(i), uint32(b)<<shift); err != nil {
			return err
		}
	}
	return nil
}

// ReadBytes loads n bytes starting at register addr. Each register is read
// once.
func (s *Store) ReadBytes(src Source, addr uint8, n int) ([]byte, error) {
	if err := s.checkSpan(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	var value uint32
	for i := 0; i < n; i++ {
		if i%4 == 0 {
			v, err := s.Read(src, addr+uint8(i/4))
			if err != nil {
				return nil, err
			}
			value = v
		}
		out[i] = byte(value >> (8 * uint(i%4)))
	}
	return out, nil
}
