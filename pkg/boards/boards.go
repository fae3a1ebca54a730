// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package boards provides the node personalities: one register map and one
// set of hooks per board type. A node runs exactly one of them, selected by
// New.
package boards

import (
	"fmt"
	"sort"

	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
)

// Options are the build-time options of a board.
type Options struct {
	// ForcedHardware marks the main output of the board (relay, charge
	// enable, regulator enable) as driven by hardware. Remote control of
	// that output is then rejected.
	ForcedHardware bool

	// Sensor module inputs
	AnalogInputs  [4]bool
	DigitalInputs [4]bool
	DigitalSensor bool
}

// Load names looked up in node.Env.Loads
const (
	LoadRelay     = "relay"
	LoadCharge    = "charge"
	LoadBackup    = "backup"
	LoadRegulator = "regulator"
)

// LoadNames lists every load a board may bind.
var LoadNames = []string{LoadRelay, LoadCharge, LoadBackup, LoadRegulator}

type factory struct {
	create func(opts Options) node.Personality
	fields []node.Field
}

var registry = map[node.BoardID]factory{
	node.BoardLVRM:  {func(o Options) node.Personality { return newLVRM(o) }, lvrmFields},
	node.BoardBPSM:  {func(o Options) node.Personality { return newBPSM(o) }, bpsmFields},
	node.BoardDDRM:  {func(o Options) node.Personality { return newRegulator(node.BoardDDRM, o) }, regulatorFields},
	node.BoardRRM:   {func(o Options) node.Personality { return newRegulator(node.BoardRRM, o) }, regulatorFields},
	node.BoardGPSM:  {func(o Options) node.Personality { return newGPSM(o) }, gpsmFields},
	node.BoardSM:    {func(o Options) node.Personality { return newSM(o) }, smFields},
	node.BoardBCM:   {func(o Options) node.Personality { return newBCM(o) }, bcmFields},
	node.BoardUHFM:  {func(o Options) node.Personality { return newUHFM(o) }, uhfmFields},
	node.BoardMPMCM: {func(o Options) node.Personality { return newMPMCM(o) }, mpmcmFields},
}

// New creates the personality of board id.
func New(id node.BoardID, opts Options) (node.Personality, error) {
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("no personality for board %s", id)
	}
	return f.create(opts), nil
}

// Supported returns the supported boards in identifier order.
func Supported() []node.BoardID {
	ids := make([]node.BoardID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fields returns the field table of board id, common registers included.
func Fields(id node.BoardID) []node.Field {
	fields := append([]node.Field(nil), node.CommonFields...)
	if f, ok := registry[id]; ok {
		fields = append(fields, f.fields...)
	}
	return fields
}

// Layout returns the full register layout of board id.
func Layout(id node.BoardID) register.Layout {
	layout := node.CommonLayout()
	if f, ok := registry[id]; ok {
		layout = append(layout, f.create(Options{}).Layout()...)
	}
	return layout
}

// output is a switched load with the last state commanded through it.
type output struct {
	name   string
	forced bool
	load   driver.Load
	state  bool
}

func (o *output) bind(n *node.Node) error {
	if o.forced {
		return nil
	}
	load, ok := n.Env().Loads[o.name]
	if !ok || load == nil {
		return fmt.Errorf("load %q: %w", o.name, node.ErrMissingDriver)
	}
	o.load = load
	o.state = load.OutputState()
	return nil
}

// status returns the output feedback as a 2-bit state.
func (o *output) status() codec.Bit {
	if o.forced {
		return codec.BitForcedHardware
	}
	if o.load == nil {
		return codec.BitError
	}
	return codec.BitOf(o.load.OutputState())
}

// set drives the load only when the requested state differs from the last
// commanded one.
func (o *output) set(on bool) error {
	if o.forced {
		return node.ErrForcedHardware
	}
	if on == o.state {
		return nil
	}
	if err := o.load.SetOutputState(on); err != nil {
		return err
	}
	o.state = on
	return nil
}

// proposed returns the register value a write would produce.
func proposed(n *node.Node, addr uint8, mask, value uint32) uint32 {
	return (n.Get(addr) &^ mask) | (value & mask)
}

// secureThresholds validates a pair of voltage thresholds packed as
// low[15:0] high[31:16]. An invalid pair is replaced by the defaults.
func secureThresholds(n *node.Node, addr uint8, mask, value uint32, defLow, defHigh int32) (uint32, uint32, error) {
	v := proposed(n, addr, mask, value)
	low, okLow := codec.DecodeVoltage(codec.Get(v, maskThresholdLow))
	high, okHigh := codec.DecodeVoltage(codec.Get(v, maskThresholdHigh))
	if okLow && okHigh && low < high {
		return mask, value, nil
	}
	safe := codec.Put(maskThresholdLow, codec.EncodeVoltage(defLow)) |
		codec.Put(maskThresholdHigh, codec.EncodeVoltage(defHigh))
	return 0xFFFFFFFF, safe, fmt.Errorf("thresholds %d/%d mV: %w", low, high, register.ErrRegisterFieldValue)
}

// Threshold pair fields
const (
	maskThresholdLow  uint32 = 0x0000FFFF
	maskThresholdHigh uint32 = 0xFFFF0000
)

// hysteresis returns true once mv rises above high and false once it drops
// below low. Between the thresholds the current state is kept.
func hysteresis(current bool, mv, low, high int32) bool {
	switch {
	case mv > high:
		return true
	case mv < low:
		return false
	}
	return current
}
