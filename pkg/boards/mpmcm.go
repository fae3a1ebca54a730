// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boards

import (
	"fmt"

	"github.com/Thermoquad/dinfox/pkg/codec"
	"github.com/Thermoquad/dinfox/pkg/node"
	"github.com/Thermoquad/dinfox/pkg/register"
)

// MPMCMChannels is the number of current channels.
const MPMCMChannels = 4

// MPMCM registers
const (
	MPMCMConfiguration0 = node.AddrSpecific + iota
	MPMCMStatus1
	MPMCMAnalogData1
	MPMCMChannelData0 // one register per current channel
)

// MPMCM fields
const (
	MPMCMMaskCurrentOffset uint32 = 0x0000FFFF // current codec
	MPMCMMaskMVD           uint32 = 0x00000001 // mains voltage detected
	MPMCMMaskVRMS          uint32 = 0x0000FFFF
	MPMCMMaskFrequency     uint32 = 0xFFFF0000 // hundredths of Hz
	MPMCMMaskIRMS          uint32 = 0x0000FFFF
	MPMCMMaskPF            uint32 = 0x00FF0000 // hundredths
)

// MPMCMMaskCHD returns the detection flag of current channel i in STATUS_1.
func MPMCMMaskCHD(i int) uint32 {
	return 0x2 << uint(i)
}

const mpmcmMaxOffsetUA = 100000

var mpmcmFields = func() []node.Field {
	fields := []node.Field{
		{Name: "CURRENT_OFFSET", Addr: MPMCMConfiguration0, Mask: MPMCMMaskCurrentOffset, Kind: node.KindCurrent},
		{Name: "MVD", Addr: MPMCMStatus1, Mask: MPMCMMaskMVD, Kind: node.KindBool},
	}
	for i := 0; i < MPMCMChannels; i++ {
		fields = append(fields, node.Field{Name: fmt.Sprintf("CH%dD", i+1), Addr: MPMCMStatus1, Mask: MPMCMMaskCHD(i), Kind: node.KindBool})
	}
	fields = append(fields,
		node.Field{Name: "VRMS", Addr: MPMCMAnalogData1, Mask: MPMCMMaskVRMS, Kind: node.KindVoltage},
		node.Field{Name: "FREQ", Addr: MPMCMAnalogData1, Mask: MPMCMMaskFrequency, Kind: node.KindDecimal},
	)
	for i := 0; i < MPMCMChannels; i++ {
		addr := MPMCMChannelData0 + uint8(i)
		fields = append(fields,
			node.Field{Name: fmt.Sprintf("CH%d_IRMS", i+1), Addr: addr, Mask: MPMCMMaskIRMS, Kind: node.KindCurrent},
			node.Field{Name: fmt.Sprintf("CH%d_PF", i+1), Addr: addr, Mask: MPMCMMaskPF, Kind: node.KindDecimal},
		)
	}
	return fields
}()

// mpmcm is the mains power meter: mains voltage and frequency, and the
// current and power factor of each channel.
type mpmcm struct{}

func newMPMCM(opts Options) *mpmcm {
	return &mpmcm{}
}

func (b *mpmcm) Board() node.BoardID { return node.BoardMPMCM }

func (b *mpmcm) Layout() register.Layout {
	layout := register.Layout{
		{Name: "CONFIGURATION_0", Access: register.ReadWrite, Persistent: true},
		{Name: "STATUS_1", Access: register.ReadOnly, Volatile: true},
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
	}
	for i := 0; i < MPMCMChannels; i++ {
		layout = append(layout, register.Spec{
			Name:       fmt.Sprintf("CH%d_DATA", i+1),
			Access:     register.ReadOnly,
			ErrorValue: 0x00FFFFFF,
			Volatile:   true,
		})
	}
	return layout
}

func (b *mpmcm) Init(n *node.Node) error {
	if n.Env().Meter == nil {
		return fmt.Errorf("meter: %w", node.ErrMissingDriver)
	}
	return nil
}

func (b *mpmcm) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	return 0, nil
}

func (b *mpmcm) Refresh(n *node.Node, addr uint8) error {
	return nil
}

// Secure caps the current offset. An offset that does not decode or exceeds
// the maximum is replaced by zero.
func (b *mpmcm) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	if addr != MPMCMConfiguration0 {
		return mask, value, nil
	}
	v := proposed(n, addr, mask, value)
	ua, ok := codec.DecodeCurrent(codec.Get(v, MPMCMMaskCurrentOffset))
	if ok && ua <= mpmcmMaxOffsetUA {
		return mask, value, nil
	}
	v = codec.Set(v, MPMCMMaskCurrentOffset, codec.EncodeCurrent(0))
	return 0xFFFFFFFF, v, fmt.Errorf("current offset %d uA: %w", ua, register.ErrRegisterFieldValue)
}

func (b *mpmcm) Process(n *node.Node, addr uint8, mask uint32) error {
	return nil
}

func (b *mpmcm) Measure(n *node.Node) error {
	meter := n.Env().Meter
	offset, _ := codec.DecodeCurrent(n.Field(MPMCMConfiguration0, MPMCMMaskCurrentOffset))

	for i := 0; i < MPMCMChannels; i++ {
		data, err := meter.Measure(i)
		if err != nil {
			return err
		}
		if i == 0 {
			n.SetField(MPMCMStatus1, MPMCMMaskMVD, boolField(data.VoltageMV > 0))
			n.SetField(MPMCMAnalogData1, MPMCMMaskVRMS, codec.EncodeVoltage(data.VoltageMV))
			n.SetField(MPMCMAnalogData1, MPMCMMaskFrequency, data.FrequencyMH/10)
		}
		n.SetField(MPMCMStatus1, MPMCMMaskCHD(i), boolField(data.Detected))
		if !data.Detected {
			continue
		}
		irms := data.CurrentUA - offset
		if irms < 0 {
			irms = 0
		}
		addr := MPMCMChannelData0 + uint8(i)
		n.SetField(addr, MPMCMMaskIRMS, codec.EncodeCurrent(irms))
		n.SetField(addr, MPMCMMaskPF, uint32(data.PowerFactor))
	}
	return nil
}
