// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boards

import (
	"fmt"
	"time"

	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
)

// GPSM registers
const (
	GPSMConfiguration0 = node.AddrSpecific + iota
	GPSMConfiguration1
	GPSMStatus1
	GPSMControl1
	GPSMTimeData0
	GPSMTimeData1
	GPSMTimeData2
	GPSMGeolocData0
	GPSMGeolocData1
	GPSMGeolocData2
	GPSMAnalogData1
)

// GPSM fields
const (
	GPSMMaskTimeTimeout   uint32 = 0x000000FF
	GPSMMaskGeolocTimeout uint32 = 0x0000FF00
	GPSMMaskTPDuty        uint32 = 0x00FF0000 // percent
	GPSMMaskTPFrequency   uint32 = 0xFFFFFFFF // Hz

	GPSMMaskTFS  uint32 = 0x00000001 // time fix status
	GPSMMaskGFS  uint32 = 0x00000002 // geoloc fix status
	GPSMMaskTPST uint32 = 0x0000000C
	GPSMMaskPWST uint32 = 0x00000030

	GPSMMaskTTRG uint32 = 0x00000001
	GPSMMaskGTRG uint32 = 0x00000002
	GPSMMaskTPEN uint32 = 0x00000004
	GPSMMaskPWMD uint32 = 0x00000008 // 1 = manual power control
	GPSMMaskPWEN uint32 = 0x00000010

	GPSMMaskYear   uint32 = 0x000000FF // years since 2000
	GPSMMaskMonth  uint32 = 0x0000FF00
	GPSMMaskDate   uint32 = 0x00FF0000
	GPSMMaskHour   uint32 = 0x000000FF
	GPSMMaskMinute uint32 = 0x0000FF00
	GPSMMaskSecond uint32 = 0x00FF0000

	GPSMMaskTimeFixDuration   uint32 = 0x000000FF
	GPSMMaskSeconds           uint32 = 0x0000FFFF // thousandths
	GPSMMaskMinutes           uint32 = 0x003F0000
	GPSMMaskDegrees           uint32 = 0x3FC00000
	GPSMMaskHemisphere        uint32 = 0x40000000 // north or east
	GPSMMaskAltitude          uint32 = 0x0000FFFF
	GPSMMaskGeolocFixDuration uint32 = 0x00FF0000

	GPSMMaskVGPS uint32 = 0x0000FFFF
	GPSMMaskVANT uint32 = 0xFFFF0000
)

// GPSM defaults
const (
	gpsmDefaultTimeout   = 120 * time.Second
	gpsmDefaultDuty      = 50
	gpsmDefaultFrequency = 1
	gpsmMaxFrequency     = 10000000
)

var gpsmFields = []node.Field{
	{Name: "TIME_TIMEOUT", Addr: GPSMConfiguration0, Mask: GPSMMaskTimeTimeout, Kind: node.KindTime},
	{Name: "GEOLOC_TIMEOUT", Addr: GPSMConfiguration0, Mask: GPSMMaskGeolocTimeout, Kind: node.KindTime},
	{Name: "TP_DUTY_CYCLE", Addr: GPSMConfiguration0, Mask: GPSMMaskTPDuty, Kind: node.KindDecimal},
	{Name: "TP_FREQUENCY", Addr: GPSMConfiguration1, Mask: GPSMMaskTPFrequency, Kind: node.KindDecimal},
	{Name: "TFS", Addr: GPSMStatus1, Mask: GPSMMaskTFS, Kind: node.KindBool},
	{Name: "GFS", Addr: GPSMStatus1, Mask: GPSMMaskGFS, Kind: node.KindBool},
	{Name: "TPST", Addr: GPSMStatus1, Mask: GPSMMaskTPST, Kind: node.KindBit},
	{Name: "PWST", Addr: GPSMStatus1, Mask: GPSMMaskPWST, Kind: node.KindBit},
	{Name: "TTRG", Addr: GPSMControl1, Mask: GPSMMaskTTRG, Kind: node.KindBool},
	{Name: "GTRG", Addr: GPSMControl1, Mask: GPSMMaskGTRG, Kind: node.KindBool},
	{Name: "TPEN", Addr: GPSMControl1, Mask: GPSMMaskTPEN, Kind: node.KindBool},
	{Name: "PWMD", Addr: GPSMControl1, Mask: GPSMMaskPWMD, Kind: node.KindBool},
	{Name: "PWEN", Addr: GPSMControl1, Mask: GPSMMaskPWEN, Kind: node.KindBool},
	{Name: "YEAR", Addr: GPSMTimeData0, Mask: GPSMMaskYear, Kind: node.KindDecimal},
	{Name: "MONTH", Addr: GPSMTimeData0, Mask: GPSMMaskMonth, Kind: node.KindDecimal},
	{Name: "DATE", Addr: GPSMTimeData0, Mask: GPSMMaskDate, Kind: node.KindDecimal},
	{Name: "HOUR", Addr: GPSMTimeData1, Mask: GPSMMaskHour, Kind: node.KindDecimal},
	{Name: "MINUTE", Addr: GPSMTimeData1, Mask: GPSMMaskMinute, Kind: node.KindDecimal},
	{Name: "SECOND", Addr: GPSMTimeData1, Mask: GPSMMaskSecond, Kind: node.KindDecimal},
	{Name: "TIME_FIX_DURATION", Addr: GPSMTimeData2, Mask: GPSMMaskTimeFixDuration, Kind: node.KindTime},
	{Name: "LAT_SECONDS", Addr: GPSMGeolocData0, Mask: GPSMMaskSeconds, Kind: node.KindDecimal},
	{Name: "LAT_MINUTES", Addr: GPSMGeolocData0, Mask: GPSMMaskMinutes, Kind: node.KindDecimal},
	{Name: "LAT_DEGREES", Addr: GPSMGeolocData0, Mask: GPSMMaskDegrees, Kind: node.KindDecimal},
	{Name: "LAT_NORTH", Addr: GPSMGeolocData0, Mask: GPSMMaskHemisphere, Kind: node.KindBool},
	{Name: "LONG_SECONDS", Addr: GPSMGeolocData1, Mask: GPSMMaskSeconds, Kind: node.KindDecimal},
	{Name: "LONG_MINUTES", Addr: GPSMGeolocData1, Mask: GPSMMaskMinutes, Kind: node.KindDecimal},
	{Name: "LONG_DEGREES", Addr: GPSMGeolocData1, Mask: GPSMMaskDegrees, Kind: node.KindDecimal},
	{Name: "LONG_EAST", Addr: GPSMGeolocData1, Mask: GPSMMaskHemisphere, Kind: node.KindBool},
	{Name: "ALTITUDE", Addr: GPSMGeolocData2, Mask: GPSMMaskAltitude, Kind: node.KindDecimal},
	{Name: "GEOLOC_FIX_DURATION", Addr: GPSMGeolocData2, Mask: GPSMMaskGeolocFixDuration, Kind: node.KindTime},
	{Name: "VGPS", Addr: GPSMAnalogData1, Mask: GPSMMaskVGPS, Kind: node.KindVoltage},
	{Name: "VANT", Addr: GPSMAnalogData1, Mask: GPSMMaskVANT, Kind: node.KindVoltage},
}

var gpsmProbes = []node.Probe{
	{Addr: GPSMAnalogData1, Mask: GPSMMaskVGPS, Channel: driver.ChannelVGPS, Kind: node.KindVoltage},
	{Addr: GPSMAnalogData1, Mask: GPSMMaskVANT, Channel: driver.ChannelVANT, Kind: node.KindVoltage},
}

// gpsm is the GPS module: time and position acquisition and a configurable
// timepulse output.
type gpsm struct {
	gps       driver.GPS
	timepulse bool
	powered   bool // manual power request
}

func newGPSM(opts Options) *gpsm {
	return &gpsm{}
}

func (b *gpsm) Board() node.BoardID { return node.BoardGPSM }

func (b *gpsm) Layout() register.Layout {
	return register.Layout{
		{Name: "CONFIGURATION_0", Access: register.ReadWrite, Persistent: true},
		{Name: "CONFIGURATION_1", Access: register.ReadWrite, Persistent: true},
		{Name: "STATUS_1", Access: register.ReadOnly},
		{Name: "CONTROL_1", Access: register.ReadWrite, Triggers: GPSMMaskTTRG | GPSMMaskGTRG},
		{Name: "TIME_DATA_0", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF},
		{Name: "TIME_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF},
		{Name: "TIME_DATA_2", Access: register.ReadOnly, ErrorValue: codec.TimeError},
		{Name: "GEOLOC_DATA_0", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF},
		{Name: "GEOLOC_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF},
		{Name: "GEOLOC_DATA_2", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF},
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
	}
}

func (b *gpsm) Init(n *node.Node) error {
	b.gps = n.Env().GPS
	if b.gps == nil {
		return fmt.Errorf("gps: %w", node.ErrMissingDriver)
	}
	if b.powered {
		n.Env().Power.Disable(driver.RequesterCommand, driver.DomainGPS)
	}
	b.powered, b.timepulse = false, false
	return b.Refresh(n, GPSMStatus1)
}

func (b *gpsm) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	switch addr {
	case GPSMConfiguration0:
		timeout := codec.EncodeTime(uint32(gpsmDefaultTimeout / time.Second))
		return codec.Put(GPSMMaskTimeTimeout, timeout) |
			codec.Put(GPSMMaskGeolocTimeout, timeout) |
			codec.Put(GPSMMaskTPDuty, gpsmDefaultDuty), nil
	case GPSMConfiguration1:
		return gpsmDefaultFrequency, nil
	case GPSMTimeData0, GPSMTimeData1, GPSMGeolocData0, GPSMGeolocData1, GPSMGeolocData2:
		return 0xFFFFFFFF, nil
	case GPSMTimeData2:
		return codec.TimeError, nil
	}
	return 0, nil
}

func (b *gpsm) Refresh(n *node.Node, addr uint8) error {
	if addr != GPSMStatus1 {
		return nil
	}
	n.SetField(GPSMStatus1, GPSMMaskTPST, uint32(codec.BitOf(b.timepulse)))
	n.SetField(GPSMStatus1, GPSMMaskPWST, uint32(codec.BitOf(b.powered)))
	return nil
}

func (b *gpsm) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	switch addr {
	case GPSMConfiguration0:
		v := proposed(n, addr, mask, value)
		var err error
		for _, m := range []uint32{GPSMMaskTimeTimeout, GPSMMaskGeolocTimeout} {
			if _, ok := codec.DecodeTime(codec.Get(v, m)); !ok {
				v = codec.Set(v, m, codec.EncodeTime(uint32(gpsmDefaultTimeout/time.Second)))
				err = fmt.Errorf("timeout: %w", register.ErrRegisterFieldValue)
			}
		}
		if codec.Get(v, GPSMMaskTPDuty) > 100 {
			v = codec.Set(v, GPSMMaskTPDuty, gpsmDefaultDuty)
			err = fmt.Errorf("duty cycle: %w", register.ErrRegisterFieldValue)
		}
		return 0xFFFFFFFF, v, err
	case GPSMConfiguration1:
		if f := proposed(n, addr, mask, value); f == 0 || f > gpsmMaxFrequency {
			return 0xFFFFFFFF, gpsmDefaultFrequency, fmt.Errorf("frequency %d Hz: %w", f, register.ErrRegisterFieldValue)
		}
	case GPSMControl1:
		if mask&GPSMMaskPWEN != 0 && codec.Get(proposed(n, addr, mask, value), GPSMMaskPWMD) == 0 {
			return mask &^ GPSMMaskPWEN, value, fmt.Errorf("gps power: %w", node.ErrForcedSoftware)
		}
	}
	return mask, value, nil
}

func (b *gpsm) Process(n *node.Node, addr uint8, mask uint32) error {
	if addr != GPSMControl1 {
		return nil
	}
	defer b.Refresh(n, GPSMStatus1)
	reg := n.Get(GPSMControl1)

	if mask&(GPSMMaskPWMD|GPSMMaskPWEN) != 0 {
		if err := b.manualPower(n, codec.Get(reg, GPSMMaskPWMD) != 0 && codec.Get(reg, GPSMMaskPWEN) != 0); err != nil {
			return err
		}
	}
	if mask&GPSMMaskTPEN != 0 {
		if err := b.setTimepulse(n, codec.Get(reg, GPSMMaskTPEN) != 0); err != nil {
			return err
		}
	}
	if mask&reg&GPSMMaskTTRG != 0 {
		if err := b.acquireTime(n); err != nil {
			return err
		}
	}
	if mask&reg&GPSMMaskGTRG != 0 {
		return b.acquirePosition(n)
	}
	return nil
}

func (b *gpsm) Measure(n *node.Node) error {
	return n.MeasureProbes(gpsmProbes)
}

func (b *gpsm) manualPower(n *node.Node, on bool) error {
	if on == b.powered {
		return nil
	}
	power := n.Env().Power
	var err error
	if on {
		err = power.Enable(driver.RequesterCommand, driver.DomainGPS)
	} else {
		err = power.Disable(driver.RequesterCommand, driver.DomainGPS)
	}
	if err == nil {
		b.powered = on
	}
	return err
}

// setTimepulse applies TPEN. A failed start clears TPEN so that control and
// status agree.
func (b *gpsm) setTimepulse(n *node.Node, on bool) error {
	err := b.applyTimepulse(n, on)
	if err != nil && on {
		n.SetField(GPSMControl1, GPSMMaskTPEN, 0)
	}
	return err
}

func (b *gpsm) applyTimepulse(n *node.Node, on bool) error {
	power := n.Env().Power
	tp := driver.Timepulse{
		Enabled:     on,
		FrequencyHz: n.Get(GPSMConfiguration1),
		DutyPercent: uint8(n.Field(GPSMConfiguration0, GPSMMaskTPDuty)),
	}
	if on {
		if err := power.Enable(driver.RequesterGPS, driver.DomainGPS); err != nil {
			return err
		}
	}
	if err := b.gps.SetTimepulse(tp); err != nil {
		power.Disable(driver.RequesterGPS, driver.DomainGPS)
		b.timepulse = false
		return err
	}
	b.timepulse = on
	if !on {
		return power.Disable(driver.RequesterGPS, driver.DomainGPS)
	}
	return nil
}

func (b *gpsm) timeout(n *node.Node, mask uint32) time.Duration {
	s, ok := codec.DecodeTime(n.Field(GPSMConfiguration0, mask))
	if !ok {
		return gpsmDefaultTimeout
	}
	return time.Duration(s) * time.Second
}

// withPower runs fn with the GPS domain enabled for the acquisition.
func (b *gpsm) withPower(n *node.Node, fn func() error) error {
	power := n.Env().Power
	if err := power.Enable(driver.RequesterMeasure, driver.DomainGPS); err != nil {
		return err
	}
	defer power.Disable(driver.RequesterMeasure, driver.DomainGPS)
	return fn()
}

func (b *gpsm) acquireTime(n *node.Node) error {
	for _, addr := range []uint8{GPSMTimeData0, GPSMTimeData1, GPSMTimeData2} {
		n.Reset(addr)
	}
	n.SetField(GPSMStatus1, GPSMMaskTFS, 0)
	return b.withPower(n, func() error {
		t, took, err := b.gps.Time(b.timeout(n, GPSMMaskTimeTimeout))
		if err != nil {
			return err
		}
		n.SetField(GPSMTimeData0, GPSMMaskYear, uint32(t.Year%100))
		n.SetField(GPSMTimeData0, GPSMMaskMonth, uint32(t.Month))
		n.SetField(GPSMTimeData0, GPSMMaskDate, uint32(t.Date))
		n.SetField(GPSMTimeData1, GPSMMaskHour, uint32(t.Hours))
		n.SetField(GPSMTimeData1, GPSMMaskMinute, uint32(t.Minute))
		n.SetField(GPSMTimeData1, GPSMMaskSecond, uint32(t.Second))
		n.SetField(GPSMTimeData2, GPSMMaskTimeFixDuration, codec.EncodeTime(uint32(took/time.Second)))
		n.SetField(GPSMStatus1, GPSMMaskTFS, 1)
		return nil
	})
}

func (b *gpsm) acquirePosition(n *node.Node) error {
	for _, addr := range []uint8{GPSMGeolocData0, GPSMGeolocData1, GPSMGeolocData2} {
		n.Reset(addr)
	}
	n.SetField(GPSMStatus1, GPSMMaskGFS, 0)
	return b.withPower(n, func() error {
		p, took, err := b.gps.Position(b.timeout(n, GPSMMaskGeolocTimeout))
		if err != nil {
			return err
		}
		n.SetField(GPSMGeolocData0, 0xFFFFFFFF, packCoordinate(p.LatDegrees, p.LatMinutes, p.LatSeconds, p.North))
		n.SetField(GPSMGeolocData1, 0xFFFFFFFF, packCoordinate(p.LongDegrees, p.LongMinutes, p.LongSeconds, p.East))
		n.SetField(GPSMGeolocData2, 0xFFFFFFFF,
			codec.Put(GPSMMaskAltitude, p.AltitudeMeter)|
				codec.Put(GPSMMaskGeolocFixDuration, codec.EncodeTime(uint32(took/time.Second))))
		n.SetField(GPSMStatus1, GPSMMaskGFS, 1)
		return nil
	})
}

func packCoordinate(degrees, minutes uint8, seconds uint32, hemisphere bool) uint32 {
	return codec.Put(GPSMMaskSeconds, seconds) |
		codec.Put(GPSMMaskMinutes, uint32(minutes)) |
		codec.Put(GPSMMaskDegrees, uint32(degrees)) |
		codec.Put(GPSMMaskHemisphere, boolField(hemisphere))
}
