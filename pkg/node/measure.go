// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/driver"
)

// ConvertVoltage converts an analog channel and encodes it as a voltage
// field.
func (n *Node) ConvertVoltage(ch driver.Channel) (uint32, error) {
	mv, err := n.env.Analog.Convert(ch)
	if err != nil {
		return codec.VoltageError, err
	}
	return codec.EncodeVoltage(mv), nil
}

// ConvertCurrent converts an analog channel and encodes it as a current
// field.
func (n *Node) ConvertCurrent(ch driver.Channel) (uint32, error) {
	ua, err := n.env.Analog.Convert(ch)
	if err != nil {
		return codec.CurrentError, err
	}
	return codec.EncodeCurrent(ua), nil
}

// ConvertTemperature converts an analog channel and encodes it as a
// temperature field.
func (n *Node) ConvertTemperature(ch driver.Channel) (uint32, error) {
	tenths, err := n.env.Analog.Convert(ch)
	if err != nil {
		return codec.TemperatureError, err
	}
	return codec.EncodeTemperature(tenths), nil
}

// ReadBit reads a digital channel as a 2-bit state.
func (n *Node) ReadBit(ch driver.Channel) (codec.Bit, error) {
	if n.env.Digital == nil {
		return codec.BitError, driver.ErrDigitalChannel
	}
	state, err := n.env.Digital.Read(ch)
	if err != nil {
		return codec.BitError, err
	}
	return codec.BitOf(state), nil
}

// Probe binds an analog channel to the register field it is measured into.
type Probe struct {
	Addr    uint8
	Mask    uint32
	Channel driver.Channel
	Kind    Kind // KindVoltage, KindCurrent or KindTemperature
}

// MeasureProbes converts every probe in order, stopping at the first
// failure. Fields of the probes not reached keep their error value.
func (n *Node) MeasureProbes(probes []Probe) error {
	for _, p := range probes {
		var field uint32
		var err error
		switch p.Kind {
		case KindCurrent:
			field, err = n.ConvertCurrent(p.Channel)
		case KindTemperature:
			field, err = n.ConvertTemperature(p.Channel)
		default:
			field, err = n.ConvertVoltage(p.Channel)
		}
		if err != nil {
			return err
		}
		n.SetField(p.Addr, p.Mask, field)
	}
	return nil
}
