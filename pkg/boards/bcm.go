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

// BCM registers
const (
	BCMConfiguration0 = node.AddrSpecific + iota
	BCMConfiguration1
	BCMStatus1
	BCMControl1
	BCMAnalogData1
	BCMAnalogData2
)

// BCM fields. STATUS_1 and CONTROL_1 share the BPSM layout.
const (
	BCMMaskTogglePeriod   uint32 = 0x000000FF
	BCMMaskToggleDuration uint32 = 0x0000FF00
	BCMMaskCHST                  = BPSMMaskCHST
	BCMMaskCHENST                = BPSMMaskCHENST
	BCMMaskBKENST                = BPSMMaskBKENST
	BCMMaskCHMD                  = BPSMMaskCHMD
	BCMMaskBKEN                  = BPSMMaskBKEN
	BCMMaskCHEN                  = BPSMMaskCHEN
	BCMMaskVSRC                  = BPSMMaskVSRC
	BCMMaskVSTR                  = BPSMMaskVSTR
	BCMMaskISTR           uint32 = 0x0000FFFF
	BCMMaskVBKP           uint32 = 0xFFFF0000
)

// Default charge toggle timing
const (
	bcmDefaultPeriod   = 3600 * time.Second
	bcmDefaultDuration = 60 * time.Second
)

var bcmFields = []node.Field{
	{Name: "CHRG_LOW_THRESHOLD", Addr: BCMConfiguration0, Mask: maskThresholdLow, Kind: node.KindVoltage},
	{Name: "CHRG_HIGH_THRESHOLD", Addr: BCMConfiguration0, Mask: maskThresholdHigh, Kind: node.KindVoltage},
	{Name: "CHRG_TOGGLE_PERIOD", Addr: BCMConfiguration1, Mask: BCMMaskTogglePeriod, Kind: node.KindTime},
	{Name: "CHRG_TOGGLE_DURATION", Addr: BCMConfiguration1, Mask: BCMMaskToggleDuration, Kind: node.KindTime},
	{Name: "CHST", Addr: BCMStatus1, Mask: BCMMaskCHST, Kind: node.KindBit},
	{Name: "CHENST", Addr: BCMStatus1, Mask: BCMMaskCHENST, Kind: node.KindBit},
	{Name: "BKENST", Addr: BCMStatus1, Mask: BCMMaskBKENST, Kind: node.KindBit},
	{Name: "CHMD", Addr: BCMControl1, Mask: BCMMaskCHMD, Kind: node.KindBool},
	{Name: "BKEN", Addr: BCMControl1, Mask: BCMMaskBKEN, Kind: node.KindBool},
	{Name: "CHEN", Addr: BCMControl1, Mask: BCMMaskCHEN, Kind: node.KindBool},
	{Name: "VSRC", Addr: BCMAnalogData1, Mask: BCMMaskVSRC, Kind: node.KindVoltage},
	{Name: "VSTR", Addr: BCMAnalogData1, Mask: BCMMaskVSTR, Kind: node.KindVoltage},
	{Name: "ISTR", Addr: BCMAnalogData2, Mask: BCMMaskISTR, Kind: node.KindCurrent},
	{Name: "VBKP", Addr: BCMAnalogData2, Mask: BCMMaskVBKP, Kind: node.KindVoltage},
}

var bcmProbes = []node.Probe{
	{Addr: BCMAnalogData1, Mask: BCMMaskVSRC, Channel: driver.ChannelVSRC, Kind: node.KindVoltage},
	{Addr: BCMAnalogData1, Mask: BCMMaskVSTR, Channel: driver.ChannelVSTR, Kind: node.KindVoltage},
	{Addr: BCMAnalogData2, Mask: BCMMaskISTR, Channel: driver.ChannelISTR, Kind: node.KindCurrent},
	{Addr: BCMAnalogData2, Mask: BCMMaskVBKP, Channel: driver.ChannelVBKP, Kind: node.KindVoltage},
}

// bcm is the battery charge controller. In automatic mode the charge is
// periodically interrupted so that the storage voltage can be measured at
// rest before the thresholds are applied.
type bcm struct {
	charger

	nextToggle time.Time // charge interruption deadline
	restUntil  time.Time // end of the current interruption
}

func newBCM(opts Options) *bcm {
	return &bcm{charger: charger{
		charge:  output{name: LoadCharge, forced: opts.ForcedHardware},
		backup:  output{name: LoadBackup},
		config:  BCMConfiguration0,
		status:  BCMStatus1,
		control: BCMControl1,
		data:    BCMAnalogData1,
	}}
}

func (b *bcm) Board() node.BoardID { return node.BoardBCM }

func (b *bcm) Layout() register.Layout {
	return register.Layout{
		{Name: "CONFIGURATION_0", Access: register.ReadWrite, Persistent: true},
		{Name: "CONFIGURATION_1", Access: register.ReadWrite, Persistent: true},
		{Name: "STATUS_1", Access: register.ReadOnly},
		{Name: "CONTROL_1", Access: register.ReadWrite},
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
		{Name: "ANALOG_DATA_2", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
	}
}

func (b *bcm) Init(n *node.Node) error {
	b.nextToggle, b.restUntil = time.Time{}, time.Time{}
	return b.init(n)
}

func (b *bcm) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	if addr == BCMConfiguration1 {
		return bcmToggleDefaults(), nil
	}
	return b.initRegister(addr), nil
}

func bcmToggleDefaults() uint32 {
	return codec.Put(BCMMaskTogglePeriod, codec.EncodeTime(uint32(bcmDefaultPeriod/time.Second))) |
		codec.Put(BCMMaskToggleDuration, codec.EncodeTime(uint32(bcmDefaultDuration/time.Second)))
}

func (b *bcm) Refresh(n *node.Node, addr uint8) error {
	if addr == BCMStatus1 {
		return b.refresh(n)
	}
	return nil
}

func (b *bcm) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	if addr != BCMConfiguration1 {
		return b.secure(n, addr, mask, value)
	}
	v := proposed(n, addr, mask, value)
	period, okPeriod := codec.DecodeTime(codec.Get(v, BCMMaskTogglePeriod))
	duration, okDuration := codec.DecodeTime(codec.Get(v, BCMMaskToggleDuration))
	if okPeriod && okDuration && duration < period {
		return mask, value, nil
	}
	return 0xFFFFFFFF, bcmToggleDefaults(), fmt.Errorf("toggle %ds every %ds: %w", duration, period, register.ErrRegisterFieldValue)
}

func (b *bcm) Process(n *node.Node, addr uint8, mask uint32) error {
	if addr == BCMControl1 && mask&(BCMMaskCHMD|BCMMaskCHEN) != 0 {
		b.nextToggle, b.restUntil = time.Time{}, time.Time{}
	}
	return b.process(n, addr, mask)
}

func (b *bcm) Measure(n *node.Node) error {
	if err := n.MeasureProbes(bcmProbes); err != nil {
		return err
	}
	if err := b.toggle(n); err != nil {
		return err
	}
	return b.refresh(n)
}

func (b *bcm) toggle(n *node.Node) error {
	if b.charge.forced || b.manual(n) {
		return nil
	}
	now := n.Env().Now()

	if b.charge.state && !b.nextToggle.IsZero() && !now.Before(b.nextToggle) {
		duration, _ := codec.DecodeTime(n.Field(BCMConfiguration1, BCMMaskToggleDuration))
		b.nextToggle = time.Time{}
		b.restUntil = now.Add(time.Duration(duration) * time.Second)
		return b.setCharge(n, false)
	}
	if !b.restUntil.IsZero() {
		if now.Before(b.restUntil) {
			return nil
		}
		b.restUntil = time.Time{}
	}

	if err := b.automatic(n); err != nil {
		return err
	}
	if b.charge.state && b.nextToggle.IsZero() {
		period, _ := codec.DecodeTime(n.Field(BCMConfiguration1, BCMMaskTogglePeriod))
		b.nextToggle = now.Add(time.Duration(period) * time.Second)
	}
	return nil
}
