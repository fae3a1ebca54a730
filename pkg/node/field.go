// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"fmt"
	"math/bits"

	"github.com/Thermoquad/dinfox/pkg/codec"
)

// Kind selects how a field is decoded into a physical value.
type Kind uint8

// Field kinds
const (
	KindHex Kind = iota
	KindDecimal
	KindBool
	KindBit
	KindVoltage
	KindCurrent
	KindTemperature
	KindTime
	KindRFPower
	KindHumidity
)

// Field is a named bit range of one register.
type Field struct {
	Name string
	Addr uint8
	Mask uint32
	Kind Kind
}

// Extract returns the raw field from a register value.
func (f Field) Extract(reg uint32) uint32 {
	return codec.Get(reg, f.Mask)
}

// Format decodes the field from a register value into a printable physical
// value. Error sentinels print as "N/A".
func (f Field) Format(reg uint32) string {
	v := f.Extract(reg)
	switch f.Kind {
	case KindDecimal:
		return fmt.Sprintf("%d", v)
	case KindBool:
		if v != 0 {
			return "1"
		}
		return "0"
	case KindBit:
		return codec.Bit(v).String()
	case KindVoltage:
		if mv, ok := codec.DecodeVoltage(v); ok {
			return fmt.Sprintf("%dmV", mv)
		}
	case KindCurrent:
		if ua, ok := codec.DecodeCurrent(v); ok {
			return fmt.Sprintf("%duA", ua)
		}
	case KindTemperature:
		if t, ok := codec.DecodeTemperature(v); ok {
			sign := ""
			if t < 0 {
				sign, t = "-", -t
			}
			return fmt.Sprintf("%s%d.%dC", sign, t/10, t%10)
		}
	case KindTime:
		if s, ok := codec.DecodeTime(v); ok {
			return fmt.Sprintf("%ds", s)
		}
	case KindRFPower:
		if dbm, ok := codec.DecodeRFPower(v); ok {
			return fmt.Sprintf("%ddBm", dbm)
		}
	case KindHumidity:
		if h, ok := codec.DecodeHumidity(v); ok {
			return fmt.Sprintf("%d%%", h)
		}
	default:
		digits := (bits.Len32(f.Mask>>codec.Shift(f.Mask)) + 3) / 4
		return fmt.Sprintf("0x%0*X", digits, v)
	}
	return "N/A"
}

// FieldsAt returns the fields of fields located in register addr.
func FieldsAt(fields []Field, addr uint8) []Field {
	var out []Field
	for _, f := range fields {
		if f.Addr == addr {
			out = append(out, f)
		}
	}
	return out
}
