// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package at

import (
	"fmt"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
)

// extensions are the board specific commands, appended after the common
// table.
var extensions = map[node.BoardID][]Command{
	node.BoardUHFM: radioCommands,
	node.BoardGPSM: gpsCommands,
}

const rssiMaxCount = 10

var radioCommands = []Command{
	{Prefix: "AT$SO", Run: sigfoxControl},
	{
		Prefix: "AT$SF=",
		Params: []Param{
			{Name: "data", Kind: ParamBytes, MaxBytes: boards.UHFMULPayloadMax},
			{Name: "bidir", Kind: ParamBoolean, Optional: true},
		},
		Run: sigfoxSend,
	},
	{
		Prefix: "AT$CW=",
		Params: []Param{
			{Name: "frequency", Kind: ParamDecimal},
			{Name: "enable", Kind: ParamBoolean},
			{Name: "power", Kind: ParamDecimal, Optional: true},
		},
		Run: continuousWave,
	},
	{
		Prefix: "AT$TM=",
		Params: []Param{
			{Name: "rc", Kind: ParamDecimal},
			{Name: "mode", Kind: ParamDecimal},
		},
		Run: testMode,
	},
	{
		Prefix: "AT$RSSI=",
		Params: []Param{
			{Name: "frequency", Kind: ParamDecimal},
			{Name: "count", Kind: ParamDecimal, Optional: true},
		},
		Run: rssi,
	},
}

// sigfoxControl sends an empty control (keep-alive) message
func sigfoxControl(in *Interpreter, args Args) ([]string, error) {
	mask := boards.UHFMMaskULPayloadSize | boards.UHFMMaskBF | boards.UHFMMaskCMSG
	if err := in.n.Write(register.External, boards.UHFMConfiguration0, mask, boards.UHFMMaskCMSG); err != nil {
		return nil, err
	}
	return nil, in.trigger(boards.UHFMControl1, boards.UHFMMaskSTRG)
}

// sigfoxSend sends an application message and prints the downlink of a
// bidirectional exchange
func sigfoxSend(in *Interpreter, args Args) ([]string, error) {
	data := args.Bytes(0)
	bidir := args.Bool(1)

	if err := in.n.WriteBytes(register.External, boards.UHFMULPayload0, data); err != nil {
		return nil, err
	}
	mask := boards.UHFMMaskULPayloadSize | boards.UHFMMaskBF | boards.UHFMMaskCMSG
	value := codec.Put(boards.UHFMMaskULPayloadSize, uint32(len(data))) |
		codec.Put(boards.UHFMMaskBF, boolValue(bidir))
	if err := in.n.Write(register.External, boards.UHFMConfiguration0, mask, value); err != nil {
		return nil, err
	}
	if err := in.trigger(boards.UHFMControl1, boards.UHFMMaskSTRG); err != nil {
		return nil, err
	}
	if !bidir {
		return nil, nil
	}

	dl, err := in.n.ReadBytes(register.External, boards.UHFMDLPayload0, boards.UHFMDLPayloadMax)
	if err != nil {
		return nil, err
	}
	rssi, err := in.format(boards.UHFMRadioData0, []node.Field{in.field("DL_RSSI")})
	if err != nil {
		return nil, err
	}
	return append([]string{fmt.Sprintf("+RX=%X", dl)}, rssi...), nil
}

func continuousWave(in *Interpreter, args Args) ([]string, error) {
	freq := args.Decimal(0)
	if freq < 0 {
		return nil, ErrParameterOverflow
	}
	if err := in.n.Write(register.External, boards.UHFMConfiguration1, boards.UHFMMaskCWFrequency, uint32(freq)); err != nil {
		return nil, err
	}
	if args.Has(2) {
		dbm := args.Decimal(2)
		if dbm < -174 || dbm > 80 {
			return nil, ErrParameterOverflow
		}
		tx := codec.Put(boards.UHFMMaskTXPower, codec.EncodeRFPower(int16(dbm)))
		if err := in.n.Write(register.External, boards.UHFMConfiguration0, boards.UHFMMaskTXPower, tx); err != nil {
			return nil, err
		}
	}
	return nil, in.n.Write(register.External, boards.UHFMControl1, boards.UHFMMaskCWEN,
		codec.Put(boards.UHFMMaskCWEN, boolValue(args.Bool(1))))
}

func testMode(in *Interpreter, args Args) ([]string, error) {
	rc, mode := args.Decimal(0), args.Decimal(1)
	if rc < 0 || rc > 0xFF || mode < 0 || mode > 0xFF {
		return nil, ErrParameterOverflow
	}
	value := codec.Put(boards.UHFMMaskTMRC, uint32(rc)) | codec.Put(boards.UHFMMaskTMMode, uint32(mode))
	if err := in.n.Write(register.External, boards.UHFMConfiguration2, boards.UHFMMaskTMRC|boards.UHFMMaskTMMode, value); err != nil {
		return nil, err
	}
	return nil, in.trigger(boards.UHFMControl1, boards.UHFMMaskTTRG)
}

// rssi measures the received power count times on one frequency
func rssi(in *Interpreter, args Args) ([]string, error) {
	freq := args.Decimal(0)
	count := args.DecimalOr(1, 1)
	if freq < 0 || count < 1 || count > rssiMaxCount {
		return nil, ErrParameterOverflow
	}
	if err := in.n.Write(register.External, boards.UHFMConfiguration1, boards.UHFMMaskCWFrequency, uint32(freq)); err != nil {
		return nil, err
	}

	field := in.field("RSSI")
	var lines []string
	for i := int32(0); i < count; i++ {
		if err := in.trigger(boards.UHFMControl1, boards.UHFMMaskRSTRG); err != nil {
			return lines, err
		}
		out, err := in.format(boards.UHFMRadioData0, []node.Field{field})
		if err != nil {
			return lines, err
		}
		lines = append(lines, out...)
	}
	return lines, nil
}

// trigger sets a self-clearing request bit
func (in *Interpreter) trigger(addr uint8, bit uint32) error {
	return in.n.Write(register.External, addr, bit, bit)
}

func boolValue(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
