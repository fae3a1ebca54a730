// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boards

import (
	"fmt"

	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
)

// SM registers
const (
	SMConfiguration0 = node.AddrSpecific + iota
	SMAnalogData1
	SMAnalogData2
	SMAnalogData3
	SMDigitalData
)

// SM fields
const (
	SMMaskAINF uint32 = 0x0000000F // one flag per analog input
	SMMaskDIOF uint32 = 0x000000F0 // one flag per digital input
	SMMaskDIGF uint32 = 0x00000100 // digital temperature and humidity sensor

	SMMaskAIN0 uint32 = 0x0000FFFF
	SMMaskAIN1 uint32 = 0xFFFF0000
	SMMaskAIN2 uint32 = 0x0000FFFF
	SMMaskAIN3 uint32 = 0xFFFF0000
	SMMaskTAMB uint32 = 0x0000FFFF
	SMMaskHAMB uint32 = 0x00FF0000
)

// SMMaskDIO returns the mask of digital input i in DIGITAL_DATA.
func SMMaskDIO(i int) uint32 {
	return 0x3 << (2 * uint(i))
}

var smFields = []node.Field{
	{Name: "AINF", Addr: SMConfiguration0, Mask: SMMaskAINF, Kind: node.KindHex},
	{Name: "DIOF", Addr: SMConfiguration0, Mask: SMMaskDIOF, Kind: node.KindHex},
	{Name: "DIGF", Addr: SMConfiguration0, Mask: SMMaskDIGF, Kind: node.KindBool},
	{Name: "AIN0", Addr: SMAnalogData1, Mask: SMMaskAIN0, Kind: node.KindVoltage},
	{Name: "AIN1", Addr: SMAnalogData1, Mask: SMMaskAIN1, Kind: node.KindVoltage},
	{Name: "AIN2", Addr: SMAnalogData2, Mask: SMMaskAIN2, Kind: node.KindVoltage},
	{Name: "AIN3", Addr: SMAnalogData2, Mask: SMMaskAIN3, Kind: node.KindVoltage},
	{Name: "TAMB", Addr: SMAnalogData3, Mask: SMMaskTAMB, Kind: node.KindTemperature},
	{Name: "HAMB", Addr: SMAnalogData3, Mask: SMMaskHAMB, Kind: node.KindHumidity},
	{Name: "DIO0", Addr: SMDigitalData, Mask: SMMaskDIO(0), Kind: node.KindBit},
	{Name: "DIO1", Addr: SMDigitalData, Mask: SMMaskDIO(1), Kind: node.KindBit},
	{Name: "DIO2", Addr: SMDigitalData, Mask: SMMaskDIO(2), Kind: node.KindBit},
	{Name: "DIO3", Addr: SMDigitalData, Mask: SMMaskDIO(3), Kind: node.KindBit},
}

var (
	smAnalogProbes = [4]node.Probe{
		{Addr: SMAnalogData1, Mask: SMMaskAIN0, Channel: driver.ChannelAIN0, Kind: node.KindVoltage},
		{Addr: SMAnalogData1, Mask: SMMaskAIN1, Channel: driver.ChannelAIN1, Kind: node.KindVoltage},
		{Addr: SMAnalogData2, Mask: SMMaskAIN2, Channel: driver.ChannelAIN2, Kind: node.KindVoltage},
		{Addr: SMAnalogData2, Mask: SMMaskAIN3, Channel: driver.ChannelAIN3, Kind: node.KindVoltage},
	}
	smDigitalChannels = [4]driver.Channel{
		driver.ChannelDIO0, driver.ChannelDIO1, driver.ChannelDIO2, driver.ChannelDIO3,
	}
)

// sm is the sensor module. Which inputs are fitted is a build option
// published read-only in CONFIGURATION_0; inputs not fitted keep their
// error value.
type sm struct {
	opts Options
}

func newSM(opts Options) *sm {
	return &sm{opts: opts}
}

func (b *sm) Board() node.BoardID { return node.BoardSM }

func (b *sm) Layout() register.Layout {
	return register.Layout{
		{Name: "CONFIGURATION_0", Access: register.ReadOnly},
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
		{Name: "ANALOG_DATA_2", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
		{Name: "ANALOG_DATA_3", Access: register.ReadOnly, ErrorValue: 0x00FFFFFF, Volatile: true},
		{Name: "DIGITAL_DATA", Access: register.ReadOnly, ErrorValue: 0x000000FF, Volatile: true},
	}
}

func (b *sm) Init(n *node.Node) error {
	if b.opts.DigitalSensor && n.Env().Sensor == nil {
		return fmt.Errorf("sensor: %w", node.ErrMissingDriver)
	}
	return nil
}

func (b *sm) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	if addr != SMConfiguration0 {
		return 0, nil
	}
	var flags uint32
	for i := 0; i < 4; i++ {
		if b.opts.AnalogInputs[i] {
			flags |= 1 << uint(i)
		}
		if b.opts.DigitalInputs[i] {
			flags |= 1 << uint(4+i)
		}
	}
	if b.opts.DigitalSensor {
		flags |= SMMaskDIGF
	}
	return flags, nil
}

func (b *sm) Refresh(n *node.Node, addr uint8) error {
	return nil
}

func (b *sm) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	return mask, value, nil
}

func (b *sm) Process(n *node.Node, addr uint8, mask uint32) error {
	return nil
}

func (b *sm) Measure(n *node.Node) error {
	for i, p := range smAnalogProbes {
		if !b.opts.AnalogInputs[i] {
			continue
		}
		if err := n.MeasureProbes([]node.Probe{p}); err != nil {
			return err
		}
	}
	for i, ch := range smDigitalChannels {
		if !b.opts.DigitalInputs[i] {
			continue
		}
		bit, err := n.ReadBit(ch)
		if err != nil {
			return err
		}
		n.SetField(SMDigitalData, SMMaskDIO(i), uint32(bit))
	}
	if !b.opts.DigitalSensor {
		return nil
	}
	return b.measureAmbient(n)
}

func (b *sm) measureAmbient(n *node.Node) error {
	power := n.Env().Power
	if err := power.Enable(driver.RequesterMeasure, driver.DomainSensors); err != nil {
		return err
	}
	defer power.Disable(driver.RequesterMeasure, driver.DomainSensors)

	tamb, hamb, err := n.Env().Sensor.Read()
	if err != nil {
		return err
	}
	n.SetField(SMAnalogData3, SMMaskTAMB, codec.EncodeTemperature(tamb))
	n.SetField(SMAnalogData3, SMMaskHAMB, codec.EncodeHumidity(hamb))
	return nil
}
