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

// DDRM and RRM registers
const (
	RegulatorStatus1 = node.AddrSpecific + iota
	RegulatorControl1
	RegulatorAnalogData1
	RegulatorAnalogData2
)

// DDRM and RRM fields
const (
	RegulatorMaskENST uint32 = 0x00000003
	RegulatorMaskEN   uint32 = 0x00000001
	RegulatorMaskVIN  uint32 = 0x0000FFFF
	RegulatorMaskVOUT uint32 = 0xFFFF0000
	RegulatorMaskIOUT uint32 = 0x0000FFFF
)

var regulatorFields = []node.Field{
	{Name: "ENST", Addr: RegulatorStatus1, Mask: RegulatorMaskENST, Kind: node.KindBit},
	{Name: "EN", Addr: RegulatorControl1, Mask: RegulatorMaskEN, Kind: node.KindBool},
	{Name: "VIN", Addr: RegulatorAnalogData1, Mask: RegulatorMaskVIN, Kind: node.KindVoltage},
	{Name: "VOUT", Addr: RegulatorAnalogData1, Mask: RegulatorMaskVOUT, Kind: node.KindVoltage},
	{Name: "IOUT", Addr: RegulatorAnalogData2, Mask: RegulatorMaskIOUT, Kind: node.KindCurrent},
}

var regulatorProbes = []node.Probe{
	{Addr: RegulatorAnalogData1, Mask: RegulatorMaskVIN, Channel: driver.ChannelVIN, Kind: node.KindVoltage},
	{Addr: RegulatorAnalogData1, Mask: RegulatorMaskVOUT, Channel: driver.ChannelVOUT, Kind: node.KindVoltage},
	{Addr: RegulatorAnalogData2, Mask: RegulatorMaskIOUT, Channel: driver.ChannelIOUT, Kind: node.KindCurrent},
}

// regulator is a switched DC-DC converter (DDRM) or linear regulator (RRM).
// Both boards share one register map.
type regulator struct {
	board node.BoardID
	out   output
}

func newRegulator(board node.BoardID, opts Options) *regulator {
	return &regulator{board: board, out: output{name: LoadRegulator, forced: opts.ForcedHardware}}
}

func (b *regulator) Board() node.BoardID { return b.board }

func (b *regulator) Layout() register.Layout {
	return register.Layout{
		{Name: "STATUS_1", Access: register.ReadOnly, ErrorValue: uint32(codec.BitError)},
		{Name: "CONTROL_1", Access: register.ReadWrite},
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
		{Name: "ANALOG_DATA_2", Access: register.ReadOnly, ErrorValue: 0x0000FFFF, Volatile: true},
	}
}

func (b *regulator) Init(n *node.Node) error {
	if err := b.out.bind(n); err != nil {
		return err
	}
	n.SetField(RegulatorControl1, RegulatorMaskEN, boolField(b.out.state))
	return b.Refresh(n, RegulatorStatus1)
}

func (b *regulator) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	if addr == RegulatorStatus1 {
		return uint32(codec.BitError), nil
	}
	return 0, nil
}

func (b *regulator) Refresh(n *node.Node, addr uint8) error {
	if addr == RegulatorStatus1 {
		n.SetField(RegulatorStatus1, RegulatorMaskENST, uint32(b.out.status()))
	}
	return nil
}

func (b *regulator) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	if addr == RegulatorControl1 && mask&RegulatorMaskEN != 0 && b.out.forced {
		return mask &^ RegulatorMaskEN, value, fmt.Errorf("%s output: %w", b.board, node.ErrForcedHardware)
	}
	return mask, value, nil
}

func (b *regulator) Process(n *node.Node, addr uint8, mask uint32) error {
	if addr != RegulatorControl1 || mask&RegulatorMaskEN == 0 {
		return nil
	}
	err := b.out.set(n.Field(RegulatorControl1, RegulatorMaskEN) != 0)
	b.Refresh(n, RegulatorStatus1)
	return err
}

func (b *regulator) Measure(n *node.Node) error {
	return n.MeasureProbes(regulatorProbes)
}
