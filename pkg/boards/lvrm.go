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

// LVRM registers
const (
	LVRMConfiguration0 = node.AddrSpecific + iota
	LVRMConfiguration1
	LVRMStatus1
	LVRMControl1
	LVRMAnalogData1
	LVRMAnalogData2
)

// LVRM fields
const (
	LVRMMaskBMSF   uint32 = 0x00000001 // relay driven by battery voltage
	LVRMMaskRLSTST uint32 = 0x00000003
	LVRMMaskRLST   uint32 = 0x00000001
	LVRMMaskVCOM   uint32 = 0x0000FFFF
	LVRMMaskVOUT   uint32 = 0xFFFF0000
	LVRMMaskIOUT   uint32 = 0x0000FFFF
)

// Default battery thresholds of the relay automatic mode
const (
	lvrmDefaultLowMV  = 10000
	lvrmDefaultHighMV = 11000
)

var lvrmFields = []node.Field{
	{Name: "BMSF", Addr: LVRMConfiguration0, Mask: LVRMMaskBMSF, Kind: node.KindBool},
	{Name: "VBATT_LOW_THRESHOLD", Addr: LVRMConfiguration1, Mask: maskThresholdLow, Kind: node.KindVoltage},
	{Name: "VBATT_HIGH_THRESHOLD", Addr: LVRMConfiguration1, Mask: maskThresholdHigh, Kind: node.KindVoltage},
	{Name: "RLSTST", Addr: LVRMStatus1, Mask: LVRMMaskRLSTST, Kind: node.KindBit},
	{Name: "RLST", Addr: LVRMControl1, Mask: LVRMMaskRLST, Kind: node.KindBool},
	{Name: "VCOM", Addr: LVRMAnalogData1, Mask: LVRMMaskVCOM, Kind: node.KindVoltage},
	{Name: "VOUT", Addr: LVRMAnalogData1, Mask: LVRMMaskVOUT, Kind: node.KindVoltage},
	{Name: "IOUT", Addr: LVRMAnalogData2, Mask: LVRMMaskIOUT, Kind: node.KindCurrent},
}

var lvrmProbes = []node.Probe{
	{Addr: LVRMAnalogData1, Mask: LVRMMaskVCOM, Channel: driver.ChannelVCOM, Kind: node.KindVoltage},
	{Addr: LVRMAnalogData1, Mask: LVRMMaskVOUT, Channel: driver.ChannelVOUT, Kind: node.KindVoltage},
	{Addr: LVRMAnalogData2, Mask: LVRMMaskIOUT, Channel: driver.ChannelIOUT, Kind: node.KindCurrent},
}

// lvrm is the low voltage relay module: one relay, optionally switched
// automatically from the battery voltage.
type lvrm struct {
	relay output
}

func newLVRM(opts Options) *lvrm {
	return &lvrm{relay: output{name: LoadRelay, forced: opts.ForcedHardware}}
}

func (b *lvrm) Board() node.BoardID { return node.BoardLVRM }

func (b *lvrm) Layout() register.Layout {
	return register.Layout{
		{Name: "CONFIGURATION_0", Access: register.ReadWrite, Persistent: true},
		{Name: "CONFIGURATION_1", Access: register.ReadWrite, Persistent: true},
		{Name: "STATUS_1", Access: register.ReadOnly, ErrorValue: uint32(codec.BitError)},
		{Name: "CONTROL_1", Access: register.ReadWrite},
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
		{Name: "ANALOG_DATA_2", Access: register.ReadOnly, ErrorValue: 0x0000FFFF, Volatile: true},
	}
}

func (b *lvrm) Init(n *node.Node) error {
	if err := b.relay.bind(n); err != nil {
		return err
	}
	n.SetField(LVRMControl1, LVRMMaskRLST, boolField(b.relay.state))
	return b.Refresh(n, LVRMStatus1)
}

func (b *lvrm) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	switch addr {
	case LVRMConfiguration1:
		return codec.Put(maskThresholdLow, codec.EncodeVoltage(lvrmDefaultLowMV)) |
			codec.Put(maskThresholdHigh, codec.EncodeVoltage(lvrmDefaultHighMV)), nil
	case LVRMStatus1:
		return uint32(codec.BitError), nil
	}
	return 0, nil
}

func (b *lvrm) Refresh(n *node.Node, addr uint8) error {
	if addr == LVRMStatus1 {
		n.SetField(LVRMStatus1, LVRMMaskRLSTST, uint32(b.relay.status()))
	}
	return nil
}

func (b *lvrm) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	switch addr {
	case LVRMConfiguration1:
		return secureThresholds(n, addr, mask, value, lvrmDefaultLowMV, lvrmDefaultHighMV)
	case LVRMControl1:
		if mask&LVRMMaskRLST == 0 {
			break
		}
		if b.relay.forced {
			return mask &^ LVRMMaskRLST, value, fmt.Errorf("relay: %w", node.ErrForcedHardware)
		}
		if n.Field(LVRMConfiguration0, LVRMMaskBMSF) != 0 {
			return mask &^ LVRMMaskRLST, value, fmt.Errorf("relay: %w", node.ErrForcedSoftware)
		}
	}
	return mask, value, nil
}

func (b *lvrm) Process(n *node.Node, addr uint8, mask uint32) error {
	if addr == LVRMControl1 && mask&LVRMMaskRLST != 0 {
		err := b.relay.set(n.Field(LVRMControl1, LVRMMaskRLST) != 0)
		b.Refresh(n, LVRMStatus1)
		return err
	}
	return nil
}

func (b *lvrm) Measure(n *node.Node) error {
	if err := n.MeasureProbes(lvrmProbes); err != nil {
		return err
	}
	if b.relay.forced || n.Field(LVRMConfiguration0, LVRMMaskBMSF) == 0 {
		return nil
	}
	vcom, ok := codec.DecodeVoltage(n.Field(LVRMAnalogData1, LVRMMaskVCOM))
	if !ok {
		return nil
	}
	low, _ := codec.DecodeVoltage(n.Field(LVRMConfiguration1, maskThresholdLow))
	high, _ := codec.DecodeVoltage(n.Field(LVRMConfiguration1, maskThresholdHigh))
	on := hysteresis(b.relay.state, vcom, low, high)
	if err := b.relay.set(on); err != nil {
		return err
	}
	n.SetField(LVRMControl1, LVRMMaskRLST, boolField(on))
	return b.Refresh(n, LVRMStatus1)
}

func boolField(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
