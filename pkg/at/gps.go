// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package at

import (
	"fmt"

	"github.com/Thermoquad/dinfox/pkg/boards"
	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/register"
)

var gpsCommands = []Command{
	{
		Prefix: "AT$TIME=",
		Params: []Param{{Name: "timeout", Kind: ParamDecimal}},
		Run:    gpsTime,
	},
	{
		Prefix: "AT$GPS=",
		Params: []Param{{Name: "timeout", Kind: ParamDecimal}},
		Run:    gpsPosition,
	},
	{
		Prefix: "AT$PULSE=",
		Params: []Param{
			{Name: "enable", Kind: ParamBoolean},
			{Name: "frequency", Kind: ParamDecimal},
			{Name: "duty", Kind: ParamDecimal},
		},
		Run: timepulse,
	},
}

// acquire sets an acquisition timeout, then runs the acquisition
func (in *Interpreter) acquire(args Args, timeoutMask, trigger uint32) error {
	seconds := args.Decimal(0)
	if seconds < 1 {
		return ErrParameterOverflow
	}
	timeout := codec.Put(timeoutMask, codec.EncodeTime(uint32(seconds)))
	if err := in.n.Write(register.External, boards.GPSMConfiguration0, timeoutMask, timeout); err != nil {
		return err
	}
	return in.trigger(boards.GPSMControl1, trigger)
}

func gpsTime(in *Interpreter, args Args) ([]string, error) {
	if err := in.acquire(args, boards.GPSMMaskTimeTimeout, boards.GPSMMaskTTRG); err != nil {
		return nil, err
	}
	var regs [3]uint32
	for i, addr := range []uint8{boards.GPSMTimeData0, boards.GPSMTimeData1, boards.GPSMTimeData2} {
		reg, err := in.n.Read(register.External, addr)
		if err != nil {
			return nil, err
		}
		regs[i] = reg
	}
	fix := in.field("TIME_FIX_DURATION")
	return []string{
		fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
			2000+codec.Get(regs[0], boards.GPSMMaskYear),
			codec.Get(regs[0], boards.GPSMMaskMonth),
			codec.Get(regs[0], boards.GPSMMaskDate),
			codec.Get(regs[1], boards.GPSMMaskHour),
			codec.Get(regs[1], boards.GPSMMaskMinute),
			codec.Get(regs[1], boards.GPSMMaskSecond)),
		"FIX=" + fix.Format(regs[2]),
	}, nil
}

func gpsPosition(in *Interpreter, args Args) ([]string, error) {
	if err := in.acquire(args, boards.GPSMMaskGeolocTimeout, boards.GPSMMaskGTRG); err != nil {
		return nil, err
	}
	var regs [3]uint32
	for i, addr := range []uint8{boards.GPSMGeolocData0, boards.GPSMGeolocData1, boards.GPSMGeolocData2} {
		reg, err := in.n.Read(register.External, addr)
		if err != nil {
			return nil, err
		}
		regs[i] = reg
	}
	fix := in.field("GEOLOC_FIX_DURATION")
	return []string{
		"LAT=" + formatCoordinate(regs[0], "N", "S"),
		"LONG=" + formatCoordinate(regs[1], "E", "W"),
		fmt.Sprintf("ALT=%dm", codec.Get(regs[2], boards.GPSMMaskAltitude)),
		"FIX=" + fix.Format(regs[2]),
	}, nil
}

// formatCoordinate prints a packed coordinate as degrees, minutes and
// seconds with milliseconds
func formatCoordinate(reg uint32, positive, negative string) string {
	hemisphere := negative
	if codec.Get(reg, boards.GPSMMaskHemisphere) != 0 {
		hemisphere = positive
	}
	seconds := codec.Get(reg, boards.GPSMMaskSeconds)
	return fmt.Sprintf("%dd%02dm%02d.%03ds%s",
		codec.Get(reg, boards.GPSMMaskDegrees),
		codec.Get(reg, boards.GPSMMaskMinutes),
		seconds/1000, seconds%1000, hemisphere)
}

func timepulse(in *Interpreter, args Args) ([]string, error) {
	freq, duty := args.Decimal(1), args.Decimal(2)
	if freq < 0 || duty < 0 || duty > 0xFF {
		return nil, ErrParameterOverflow
	}
	if err := in.n.Write(register.External, boards.GPSMConfiguration1, boards.GPSMMaskTPFrequency, uint32(freq)); err != nil {
		return nil, err
	}
	if err := in.n.Write(register.External, boards.GPSMConfiguration0, boards.GPSMMaskTPDuty,
		codec.Put(boards.GPSMMaskTPDuty, uint32(duty))); err != nil {
		return nil, err
	}
	return nil, in.n.Write(register.External, boards.GPSMControl1, boards.GPSMMaskTPEN,
		codec.Put(boards.GPSMMaskTPEN, boolValue(args.Bool(0))))
}
