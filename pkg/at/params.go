// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package at

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParamKind is the grammar of one command parameter.
type ParamKind uint8

// Parameter kinds
const (
	ParamHex ParamKind = iota
	ParamDecimal
	ParamBoolean
	ParamBytes
)

// Param describes one comma-separated command parameter.
type Param struct {
	Name     string
	Kind     ParamKind
	Optional bool
	// MaxBytes bounds a byte array parameter.
	MaxBytes int
}

type value struct {
	present bool
	u       uint32
	i       int32
	bytes   []byte
}

// Args holds the parsed parameters of a command, by position.
type Args struct {
	values []value
}

// Has reports whether parameter i was given
func (a Args) Has(i int) bool {
	return i < len(a.values) && a.values[i].present
}

// Hex returns hexadecimal parameter i
func (a Args) Hex(i int) uint32 {
	if !a.Has(i) {
		return 0
	}
	return a.values[i].u
}

// HexOr returns hexadecimal parameter i, or def when it was omitted
func (a Args) HexOr(i int, def uint32) uint32 {
	if !a.Has(i) {
		return def
	}
	return a.values[i].u
}

// Decimal returns decimal parameter i
func (a Args) Decimal(i int) int32 {
	if !a.Has(i) {
		return 0
	}
	return a.values[i].i
}

// DecimalOr returns decimal parameter i, or def when it was omitted
func (a Args) DecimalOr(i int, def int32) int32 {
	if !a.Has(i) {
		return def
	}
	return a.values[i].i
}

// Bool returns boolean parameter i
func (a Args) Bool(i int) bool {
	return a.Has(i) && a.values[i].u != 0
}

// Bytes returns byte array parameter i
func (a Args) Bytes(i int) []byte {
	if !a.Has(i) {
		return nil
	}
	return a.values[i].bytes
}

// parseArgs parses the text following a command prefix
func parseArgs(params []Param, text string) (Args, error) {
	var parts []string
	if text != "" {
		parts = strings.Split(text, ",")
	}
	if len(parts) > len(params) {
		return Args{}, fmt.Errorf("%d parameters (max %d): %w", len(parts), len(params), ErrExtraParameter)
	}

	args := Args{values: make([]value, len(params))}
	for i, p := range params {
		if i >= len(parts) || parts[i] == "" {
			if p.Optional {
				continue
			}
			return Args{}, fmt.Errorf("%s: %w", p.Name, ErrMissingParameter)
		}
		v, err := parseValue(p, parts[i])
		if err != nil {
			return Args{}, fmt.Errorf("%s=%q: %w", p.Name, parts[i], err)
		}
		args.values[i] = v
	}
	return args, nil
}

func parseValue(p Param, s string) (value, error) {
	v := value{present: true}
	switch p.Kind {
	case ParamHex:
		if len(s) > 8 {
			return v, ErrParameterOverflow
		}
		u, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return v, ErrInvalidParameter
		}
		v.u = uint32(u)
	case ParamDecimal:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return v, ErrParameterOverflow
			}
			return v, ErrInvalidParameter
		}
		v.i = int32(i)
	case ParamBoolean:
		switch s {
		case "0":
		case "1":
			v.u = 1
		default:
			return v, ErrInvalidParameter
		}
	case ParamBytes:
		if len(s)%2 != 0 {
			return v, ErrInvalidParameter
		}
		if p.MaxBytes > 0 && len(s)/2 > p.MaxBytes {
			return v, ErrParameterOverflow
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return v, ErrInvalidParameter
		}
		v.bytes = b
	}
	return v, nil
}
