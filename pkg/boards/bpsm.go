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

// BPSM registers
const (
	BPSMConfiguration0 = node.AddrSpecific + iota
	BPSMStatus1
	BPSMAnalogData1
	BPSMAnalogData2
	BPSMControl1
)

// BPSM fields
const (
	BPSMMaskCHST   uint32 = 0x00000003
	BPSMMaskCHENST uint32 = 0x0000000C
	BPSMMaskBKENST uint32 = 0x00000030
	BPSMMaskVSRC   uint32 = 0x0000FFFF
	BPSMMaskVSTR   uint32 = 0xFFFF0000
	BPSMMaskVBKP   uint32 = 0x0000FFFF
	BPSMMaskCHMD   uint32 = 0x00000001 // 1 = manual charge control
	BPSMMaskBKEN   uint32 = 0x00000002
	BPSMMaskCHEN   uint32 = 0x00000004
)

// Default storage element thresholds of the automatic charge mode
const (
	bpsmDefaultLowMV  = 3700
	bpsmDefaultHighMV = 4100
)

var bpsmFields = []node.Field{
	{Name: "CHRG_LOW_THRESHOLD", Addr: BPSMConfiguration0, Mask: maskThresholdLow, Kind: node.KindVoltage},
	{Name: "CHRG_HIGH_THRESHOLD", Addr: BPSMConfiguration0, Mask: maskThresholdHigh, Kind: node.KindVoltage},
	{Name: "CHST", Addr: BPSMStatus1, Mask: BPSMMaskCHST, Kind: node.KindBit},
	{Name: "CHENST", Addr: BPSMStatus1, Mask: BPSMMaskCHENST, Kind: node.KindBit},
	{Name: "BKENST", Addr: BPSMStatus1, Mask: BPSMMaskBKENST, Kind: node.KindBit},
	{Name: "VSRC", Addr: BPSMAnalogData1, Mask: BPSMMaskVSRC, Kind: node.KindVoltage},
	{Name: "VSTR", Addr: BPSMAnalogData1, Mask: BPSMMaskVSTR, Kind: node.KindVoltage},
	{Name: "VBKP", Addr: BPSMAnalogData2, Mask: BPSMMaskVBKP, Kind: node.KindVoltage},
	{Name: "CHMD", Addr: BPSMControl1, Mask: BPSMMaskCHMD, Kind: node.KindBool},
	{Name: "BKEN", Addr: BPSMControl1, Mask: BPSMMaskBKEN, Kind: node.KindBool},
	{Name: "CHEN", Addr: BPSMControl1, Mask: BPSMMaskCHEN, Kind: node.KindBool},
}

var bpsmProbes = []node.Probe{
	{Addr: BPSMAnalogData1, Mask: BPSMMaskVSRC, Channel: driver.ChannelVSRC, Kind: node.KindVoltage},
	{Addr: BPSMAnalogData1, Mask: BPSMMaskVSTR, Channel: driver.ChannelVSTR, Kind: node.KindVoltage},
	{Addr: BPSMAnalogData2, Mask: BPSMMaskVBKP, Channel: driver.ChannelVBKP, Kind: node.KindVoltage},
}

// charger is the charge and backup logic shared by the charge monitor and
// the charge controller.
type charger struct {
	charge output
	backup output

	config  uint8 // thresholds register
	status  uint8
	control uint8
	data    uint8 // register holding VSTR
}

func (c *charger) init(n *node.Node) error {
	if err := c.charge.bind(n); err != nil {
		return err
	}
	if err := c.backup.bind(n); err != nil {
		return err
	}
	n.SetField(c.control, BPSMMaskCHEN, boolField(c.charge.state))
	n.SetField(c.control, BPSMMaskBKEN, boolField(c.backup.state))
	return c.refresh(n)
}

func (c *charger) refresh(n *node.Node) error {
	chst, err := n.ReadBit(driver.ChannelCHST0)
	n.SetField(c.status, BPSMMaskCHST, uint32(chst))
	n.SetField(c.status, BPSMMaskCHENST, uint32(c.charge.status()))
	n.SetField(c.status, BPSMMaskBKENST, uint32(c.backup.status()))
	return err
}

func (c *charger) manual(n *node.Node) bool {
	return n.Field(c.control, BPSMMaskCHMD) != 0
}

func (c *charger) secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	switch addr {
	case c.config:
		return secureThresholds(n, addr, mask, value, bpsmDefaultLowMV, bpsmDefaultHighMV)
	case c.control:
		if mask&BPSMMaskCHEN == 0 {
			break
		}
		if c.charge.forced {
			return mask &^ BPSMMaskCHEN, value, fmt.Errorf("charge: %w", node.ErrForcedHardware)
		}
		if codec.Get(proposed(n, addr, mask, value), BPSMMaskCHMD) == 0 {
			return mask &^ BPSMMaskCHEN, value, fmt.Errorf("charge: %w", node.ErrForcedSoftware)
		}
	}
	return mask, value, nil
}

func (c *charger) process(n *node.Node, addr uint8, mask uint32) error {
	if addr != c.control {
		return nil
	}
	var err error
	if mask&BPSMMaskBKEN != 0 {
		err = c.backup.set(n.Field(c.control, BPSMMaskBKEN) != 0)
	}
	if err == nil && mask&BPSMMaskCHEN != 0 {
		err = c.charge.set(n.Field(c.control, BPSMMaskCHEN) != 0)
	}
	c.refresh(n)
	return err
}

// automatic applies the threshold charge policy on the last VSTR
// measurement.
func (c *charger) automatic(n *node.Node) error {
	if c.charge.forced || c.manual(n) {
		return nil
	}
	vstr, ok := codec.DecodeVoltage(n.Field(c.data, BPSMMaskVSTR))
	if !ok {
		return nil
	}
	low, _ := codec.DecodeVoltage(n.Field(c.config, maskThresholdLow))
	high, _ := codec.DecodeVoltage(n.Field(c.config, maskThresholdHigh))
	return c.setCharge(n, !hysteresis(!c.charge.state, vstr, low, high))
}

func (c *charger) setCharge(n *node.Node, on bool) error {
	if err := c.charge.set(on); err != nil {
		return err
	}
	n.SetField(c.control, BPSMMaskCHEN, boolField(on))
	return nil
}

func (c *charger) initRegister(addr uint8) uint32 {
	switch addr {
	case c.config:
		return codec.Put(maskThresholdLow, codec.EncodeVoltage(bpsmDefaultLowMV)) |
			codec.Put(maskThresholdHigh, codec.EncodeVoltage(bpsmDefaultHighMV))
	case c.status:
		return codec.Put(BPSMMaskCHST, uint32(codec.BitError)) |
			codec.Put(BPSMMaskCHENST, uint32(codec.BitError)) |
			codec.Put(BPSMMaskBKENST, uint32(codec.BitError))
	}
	return 0
}

// bpsm is the backup power supply module: a storage element charger and a
// backup output.
type bpsm struct {
	charger
}

func newBPSM(opts Options) *bpsm {
	return &bpsm{charger{
		charge:  output{name: LoadCharge, forced: opts.ForcedHardware},
		backup:  output{name: LoadBackup},
		config:  BPSMConfiguration0,
		status:  BPSMStatus1,
		control: BPSMControl1,
		data:    BPSMAnalogData1,
	}}
}

func (b *bpsm) Board() node.BoardID { return node.BoardBPSM }

func (b *bpsm) Layout() register.Layout {
	return register.Layout{
		{Name: "CONFIGURATION_0", Access: register.ReadWrite, Persistent: true},
		{Name: "STATUS_1", Access: register.ReadOnly},
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
		{Name: "ANALOG_DATA_2", Access: register.ReadOnly, ErrorValue: 0x0000FFFF, Volatile: true},
		{Name: "CONTROL_1", Access: register.ReadWrite},
	}
}

func (b *bpsm) Init(n *node.Node) error {
	return b.init(n)
}

func (b *bpsm) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	return b.initRegister(addr), nil
}

func (b *bpsm) Refresh(n *node.Node, addr uint8) error {
	if addr == BPSMStatus1 {
		return b.refresh(n)
	}
	return nil
}

func (b *bpsm) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	return b.secure(n, addr, mask, value)
}

func (b *bpsm) Process(n *node.Node, addr uint8, mask uint32) error {
	return b.process(n, addr, mask)
}

func (b *bpsm) Measure(n *node.Node) error {
	if err := n.MeasureProbes(bpsmProbes); err != nil {
		return err
	}
	if err := b.automatic(n); err != nil {
		return err
	}
	return b.refresh(n)
}
