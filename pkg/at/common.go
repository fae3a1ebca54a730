// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package at

import (
	"fmt"

	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/errstack"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
)

// commonCommands are available on every board
var commonCommands = []Command{
	{Prefix: "AT", Run: ping},
	{Prefix: "AT?", Run: list},
	{Prefix: "AT$V?", Run: version},
	{Prefix: "AT$ERROR?", Run: errorStack},
	{Prefix: "AT$RST", Run: reset},
	{Prefix: "AT$ADC?", Run: adc},
	{
		Prefix: "AT$R=",
		Params: []Param{{Name: "addr", Kind: ParamHex}},
		Run:    readRegister,
	},
	{
		Prefix: "AT$W=",
		Params: []Param{
			{Name: "addr", Kind: ParamHex},
			{Name: "value", Kind: ParamHex},
			{Name: "mask", Kind: ParamHex, Optional: true},
		},
		Run: writeRegister,
	},
}

func ping(in *Interpreter, args Args) ([]string, error) {
	return nil, nil
}

func list(in *Interpreter, args Args) ([]string, error) {
	lines := make([]string, 0, len(in.commands))
	for _, c := range in.commands {
		lines = append(lines, c.Syntax())
	}
	return lines, nil
}

func version(in *Interpreter, args Args) ([]string, error) {
	sw0, err := in.n.Read(register.External, node.AddrSWVersion0)
	if err != nil {
		return nil, err
	}
	sw1, err := in.n.Read(register.External, node.AddrSWVersion1)
	if err != nil {
		return nil, err
	}
	hw, err := in.n.Read(register.External, node.AddrHWVersion)
	if err != nil {
		return nil, err
	}

	sw := fmt.Sprintf("SW=%d.%d.%d ID=%07X",
		codec.Get(sw0, node.MaskSWMajor),
		codec.Get(sw0, node.MaskSWMinor),
		codec.Get(sw0, node.MaskSWCommitIndex),
		codec.Get(sw1, node.MaskSWCommitID))
	if codec.Get(sw0, node.MaskSWDirty) != 0 {
		sw += " dirty"
	}
	return []string{
		sw,
		fmt.Sprintf("HW=%d.%d", codec.Get(hw, node.MaskHWMajor), codec.Get(hw, node.MaskHWMinor)),
	}, nil
}

// errorStack drains the error stack, most recent code first
func errorStack(in *Interpreter, args Args) ([]string, error) {
	var lines []string
	for i := 0; i < errstack.DefaultDepth; i++ {
		reg, err := in.n.Read(register.External, node.AddrErrorStack)
		if err != nil {
			return lines, err
		}
		code := codec.Get(reg, node.MaskErrorCode)
		if code == 0 {
			break
		}
		lines = append(lines, fmt.Sprintf("%04X", code))
	}
	return lines, nil
}

func reset(in *Interpreter, args Args) ([]string, error) {
	return nil, in.n.Write(register.External, node.AddrControl0, node.MaskRTRG, node.MaskRTRG)
}

// adc triggers a measurement and prints every analog field of the board
func adc(in *Interpreter, args Args) ([]string, error) {
	if err := in.n.Write(register.External, node.AddrControl0, node.MaskMTRG, node.MaskMTRG); err != nil {
		return nil, err
	}

	var lines []string
	var addrs []uint8
	byAddr := map[uint8][]node.Field{}
	for _, f := range in.fields {
		switch f.Kind {
		case node.KindVoltage, node.KindCurrent, node.KindTemperature, node.KindHumidity:
		default:
			continue
		}
		if _, ok := byAddr[f.Addr]; !ok {
			addrs = append(addrs, f.Addr)
		}
		byAddr[f.Addr] = append(byAddr[f.Addr], f)
	}
	for _, addr := range addrs {
		out, err := in.format(addr, byAddr[addr])
		if err != nil {
			return lines, err
		}
		lines = append(lines, out...)
	}
	return lines, nil
}

// readRegister prints the raw register value, then each of its fields in
// physical units.
func readRegister(in *Interpreter, args Args) ([]string, error) {
	addr := args.Hex(0)
	if addr > 0xFF {
		return nil, ErrParameterOverflow
	}
	reg, err := in.n.Read(register.External, uint8(addr))
	if err != nil {
		return nil, err
	}
	lines := []string{fmt.Sprintf("%08X", reg)}
	for _, f := range node.FieldsAt(in.fields, uint8(addr)) {
		lines = append(lines, f.Name+"="+f.Format(reg))
	}
	return lines, nil
}

// writeRegister writes a register; an omitted mask writes every bit
func writeRegister(in *Interpreter, args Args) ([]string, error) {
	addr := args.Hex(0)
	if addr > 0xFF {
		return nil, ErrParameterOverflow
	}
	return nil, in.n.Write(register.External, uint8(addr), args.HexOr(2, 0xFFFFFFFF), args.Hex(1))
}
