// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package codec

import "math/bits"

// Shift returns the position of the lowest set bit of mask.
func Shift(mask uint32) uint {
	if mask == 0 {
		return 0
	}
	return uint(bits.TrailingZeros32(mask))
}

// Get extracts the field selected by mask from a register value.
func Get(reg, mask uint32) uint32 {
	return (reg & mask) >> Shift(mask)
}

// Set places field into the bits selected by mask. Bits outside mask are
// left unchanged.
func Set(reg, mask, field uint32) uint32 {
	return (reg &^ mask) | ((field << Shift(mask)) & mask)
}

// Put returns field shifted into mask, with every other bit cleared. The
// result is meant to be combined with mask in a masked register write.
func Put(mask, field uint32) uint32 {
	return (field << Shift(mask)) & mask
}

// Bit is the 2-bit state of a binary signal that may be unavailable or
// forced by hardware.
type Bit uint32

// Bit values
const (
	Bit0              Bit = 0b00
	Bit1              Bit = 0b01
	BitForcedHardware Bit = 0b10
	BitError          Bit = 0b11
)

// BitOf converts a boolean into Bit0 or Bit1.
func BitOf(state bool) Bit {
	if state {
		return Bit1
	}
	return Bit0
}

func (b Bit) String() string {
	switch b {
	case Bit0:
		return "0"
	case Bit1:
		return "1"
	case BitForcedHardware:
		return "forced_hw"
	default:
		return "error"
	}
}
