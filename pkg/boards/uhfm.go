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

// UHFM registers
const (
	UHFMConfiguration0 = node.AddrSpecific + iota
	UHFMConfiguration1
	UHFMConfiguration2
	UHFMEPID
	UHFMEPKey0
	UHFMEPKey1
	UHFMEPKey2
	UHFMEPKey3
	UHFMULPayload0
	UHFMULPayload1
	UHFMULPayload2
	UHFMDLPayload0
	UHFMDLPayload1
	UHFMStatus1
	UHFMControl1
	UHFMRadioData0
	UHFMAnalogData1
)

// UHFM fields
const (
	UHFMMaskRC            uint32 = 0x000000FF
	UHFMMaskTXPower       uint32 = 0x0000FF00
	UHFMMaskULPayloadSize uint32 = 0x001F0000
	UHFMMaskBF            uint32 = 0x00200000 // bidirectional
	UHFMMaskCMSG          uint32 = 0x00400000 // control message

	UHFMMaskCWFrequency uint32 = 0xFFFFFFFF

	UHFMMaskTMRC   uint32 = 0x000000FF
	UHFMMaskTMMode uint32 = 0x0000FF00

	UHFMMaskCWST uint32 = 0x00000001
	UHFMMaskDLFF uint32 = 0x00000002

	UHFMMaskSTRG  uint32 = 0x00000001 // send
	UHFMMaskTTRG  uint32 = 0x00000002 // test mode
	UHFMMaskCWEN  uint32 = 0x00000004
	UHFMMaskRSTRG uint32 = 0x00000008 // RSSI measurement

	UHFMMaskDLRSSI uint32 = 0x000000FF
	UHFMMaskRSSI   uint32 = 0x0000FF00

	UHFMMaskVRF uint32 = 0x0000FFFF
)

// Sigfox frame limits
const (
	UHFMULPayloadMax = 12
	UHFMDLPayloadMax = 8

	uhfmDefaultRC      = 1
	uhfmDefaultTXPower = 14 // dBm
	uhfmMaxRC          = 7
)

var uhfmFields = []node.Field{
	{Name: "RC", Addr: UHFMConfiguration0, Mask: UHFMMaskRC, Kind: node.KindDecimal},
	{Name: "TX_POWER", Addr: UHFMConfiguration0, Mask: UHFMMaskTXPower, Kind: node.KindRFPower},
	{Name: "UL_PAYLOAD_SIZE", Addr: UHFMConfiguration0, Mask: UHFMMaskULPayloadSize, Kind: node.KindDecimal},
	{Name: "BF", Addr: UHFMConfiguration0, Mask: UHFMMaskBF, Kind: node.KindBool},
	{Name: "CMSG", Addr: UHFMConfiguration0, Mask: UHFMMaskCMSG, Kind: node.KindBool},
	{Name: "CW_FREQUENCY", Addr: UHFMConfiguration1, Mask: UHFMMaskCWFrequency, Kind: node.KindDecimal},
	{Name: "TM_RC", Addr: UHFMConfiguration2, Mask: UHFMMaskTMRC, Kind: node.KindDecimal},
	{Name: "TM_MODE", Addr: UHFMConfiguration2, Mask: UHFMMaskTMMode, Kind: node.KindDecimal},
	{Name: "EP_ID", Addr: UHFMEPID, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "EP_KEY_0", Addr: UHFMEPKey0, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "EP_KEY_1", Addr: UHFMEPKey1, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "EP_KEY_2", Addr: UHFMEPKey2, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "EP_KEY_3", Addr: UHFMEPKey3, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "UL_PAYLOAD_0", Addr: UHFMULPayload0, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "UL_PAYLOAD_1", Addr: UHFMULPayload1, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "UL_PAYLOAD_2", Addr: UHFMULPayload2, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "DL_PAYLOAD_0", Addr: UHFMDLPayload0, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "DL_PAYLOAD_1", Addr: UHFMDLPayload1, Mask: 0xFFFFFFFF, Kind: node.KindHex},
	{Name: "CWST", Addr: UHFMStatus1, Mask: UHFMMaskCWST, Kind: node.KindBool},
	{Name: "DLFF", Addr: UHFMStatus1, Mask: UHFMMaskDLFF, Kind: node.KindBool},
	{Name: "STRG", Addr: UHFMControl1, Mask: UHFMMaskSTRG, Kind: node.KindBool},
	{Name: "TTRG", Addr: UHFMControl1, Mask: UHFMMaskTTRG, Kind: node.KindBool},
	{Name: "CWEN", Addr: UHFMControl1, Mask: UHFMMaskCWEN, Kind: node.KindBool},
	{Name: "RSTRG", Addr: UHFMControl1, Mask: UHFMMaskRSTRG, Kind: node.KindBool},
	{Name: "DL_RSSI", Addr: UHFMRadioData0, Mask: UHFMMaskDLRSSI, Kind: node.KindRFPower},
	{Name: "RSSI", Addr: UHFMRadioData0, Mask: UHFMMaskRSSI, Kind: node.KindRFPower},
	{Name: "VRF", Addr: UHFMAnalogData1, Mask: UHFMMaskVRF, Kind: node.KindVoltage},
}

var uhfmProbes = []node.Probe{
	{Addr: UHFMAnalogData1, Mask: UHFMMaskVRF, Channel: driver.ChannelVRF, Kind: node.KindVoltage},
}

// uhfm is the Sigfox radio module.
type uhfm struct {
	radio driver.Sigfox
	cw    bool
}

func newUHFM(opts Options) *uhfm {
	return &uhfm{}
}

func (b *uhfm) Board() node.BoardID { return node.BoardUHFM }

func (b *uhfm) Layout() register.Layout {
	ro := func(name string, errorValue uint32) register.Spec {
		return register.Spec{Name: name, Access: register.ReadOnly, ErrorValue: errorValue}
	}
	return register.Layout{
		{Name: "CONFIGURATION_0", Access: register.ReadWrite, Persistent: true},
		{Name: "CONFIGURATION_1", Access: register.ReadWrite, Persistent: true},
		{Name: "CONFIGURATION_2", Access: register.ReadWrite, Persistent: true},
		ro("EP_ID", 0),
		ro("EP_KEY_0", 0),
		ro("EP_KEY_1", 0),
		ro("EP_KEY_2", 0),
		ro("EP_KEY_3", 0),
		{Name: "UL_PAYLOAD_0", Access: register.ReadWrite},
		{Name: "UL_PAYLOAD_1", Access: register.ReadWrite},
		{Name: "UL_PAYLOAD_2", Access: register.ReadWrite},
		ro("DL_PAYLOAD_0", 0),
		ro("DL_PAYLOAD_1", 0),
		ro("STATUS_1", 0),
		{Name: "CONTROL_1", Access: register.ReadWrite, Triggers: UHFMMaskSTRG | UHFMMaskTTRG | UHFMMaskRSTRG},
		ro("RADIO_DATA_0", codec.RFPowerError|codec.RFPowerError<<8),
		{Name: "ANALOG_DATA_1", Access: register.ReadOnly, ErrorValue: 0x0000FFFF, Volatile: true},
	}
}

func (b *uhfm) Init(n *node.Node) error {
	b.radio = n.Env().Sigfox
	if b.radio == nil {
		return fmt.Errorf("sigfox: %w", node.ErrMissingDriver)
	}
	b.cw = false
	id, err := n.ReadNVM(node.NVMEPIDOffset, node.NVMEPIDSize)
	if err != nil {
		return err
	}
	key, err := n.ReadNVM(node.NVMEPKeyOffset, node.NVMEPKeySize)
	if err != nil {
		return err
	}
	if err := n.WriteBytes(register.Internal, UHFMEPID, id); err != nil {
		return err
	}
	return n.WriteBytes(register.Internal, UHFMEPKey0, key)
}

func (b *uhfm) InitRegister(n *node.Node, addr uint8) (uint32, error) {
	switch addr {
	case UHFMConfiguration0:
		return codec.Put(UHFMMaskRC, uhfmDefaultRC) |
			codec.Put(UHFMMaskTXPower, codec.EncodeRFPower(uhfmDefaultTXPower)), nil
	case UHFMConfiguration2:
		return codec.Put(UHFMMaskTMRC, uhfmDefaultRC), nil
	case UHFMRadioData0:
		return codec.RFPowerError | codec.RFPowerError<<8, nil
	}
	return 0, nil
}

func (b *uhfm) Refresh(n *node.Node, addr uint8) error {
	if addr == UHFMStatus1 {
		n.SetField(UHFMStatus1, UHFMMaskCWST, boolField(b.cw))
	}
	return nil
}

func (b *uhfm) Secure(n *node.Node, addr uint8, mask, value uint32) (uint32, uint32, error) {
	switch addr {
	case UHFMConfiguration0:
		v := proposed(n, addr, mask, value)
		var err error
		if rc := codec.Get(v, UHFMMaskRC); rc < 1 || rc > uhfmMaxRC {
			v = codec.Set(v, UHFMMaskRC, uhfmDefaultRC)
			err = fmt.Errorf("RC%d: %w", rc, register.ErrRegisterFieldValue)
		}
		if size := codec.Get(v, UHFMMaskULPayloadSize); size > UHFMULPayloadMax {
			v = codec.Set(v, UHFMMaskULPayloadSize, UHFMULPayloadMax)
			err = fmt.Errorf("payload size %d: %w", size, register.ErrRegisterFieldValue)
		}
		if _, ok := codec.DecodeRFPower(codec.Get(v, UHFMMaskTXPower)); !ok {
			v = codec.Set(v, UHFMMaskTXPower, codec.EncodeRFPower(uhfmDefaultTXPower))
			err = fmt.Errorf("tx power: %w", register.ErrRegisterFieldValue)
		}
		return 0xFFFFFFFF, v, err
	case UHFMConfiguration2:
		v := proposed(n, addr, mask, value)
		if rc := codec.Get(v, UHFMMaskTMRC); rc < 1 || rc > uhfmMaxRC {
			v = codec.Set(v, UHFMMaskTMRC, uhfmDefaultRC)
			return 0xFFFFFFFF, v, fmt.Errorf("test mode RC%d: %w", rc, register.ErrRegisterFieldValue)
		}
	case UHFMControl1:
		busy := codec.Get(proposed(n, addr, mask, value), UHFMMaskCWEN) != 0 && b.cw
		requested := mask & value & (UHFMMaskSTRG | UHFMMaskTTRG | UHFMMaskRSTRG)
		if busy && requested != 0 {
			return mask &^ requested, value, fmt.Errorf("continuous wave running: %w", node.ErrRadioState)
		}
	}
	return mask, value, nil
}

func (b *uhfm) Process(n *node.Node, addr uint8, mask uint32) error {
	if addr != UHFMControl1 {
		return nil
	}
	defer b.Refresh(n, UHFMStatus1)
	reg := n.Get(UHFMControl1)

	if mask&UHFMMaskCWEN != 0 {
		if err := b.continuousWave(n, codec.Get(reg, UHFMMaskCWEN) != 0); err != nil {
			return err
		}
	}
	if mask&reg&UHFMMaskSTRG != 0 {
		if err := b.send(n); err != nil {
			return err
		}
	}
	if mask&reg&UHFMMaskTTRG != 0 {
		if err := b.testMode(n); err != nil {
			return err
		}
	}
	if mask&reg&UHFMMaskRSTRG != 0 {
		return b.rssi(n)
	}
	return nil
}

func (b *uhfm) Measure(n *node.Node) error {
	return n.MeasureProbes(uhfmProbes)
}

func (b *uhfm) withRadio(n *node.Node, fn func() error) error {
	power := n.Env().Power
	if err := power.Enable(driver.RequesterRadio, driver.DomainRadio); err != nil {
		return err
	}
	err := fn()
	if !b.cw {
		if perr := power.Disable(driver.RequesterRadio, driver.DomainRadio); err == nil {
			err = perr
		}
	}
	return err
}

func (b *uhfm) txPower(n *node.Node) int16 {
	dbm, ok := codec.DecodeRFPower(n.Field(UHFMConfiguration0, UHFMMaskTXPower))
	if !ok {
		return uhfmDefaultTXPower
	}
	return dbm
}

func (b *uhfm) continuousWave(n *node.Node, on bool) error {
	if on == b.cw {
		return nil
	}
	freq := n.Get(UHFMConfiguration1)
	if on {
		power := n.Env().Power
		if err := power.Enable(driver.RequesterRadio, driver.DomainRadio); err != nil {
			n.SetField(UHFMControl1, UHFMMaskCWEN, 0)
			return err
		}
		if err := b.radio.ContinuousWave(true, freq, b.txPower(n)); err != nil {
			power.Disable(driver.RequesterRadio, driver.DomainRadio)
			n.SetField(UHFMControl1, UHFMMaskCWEN, 0)
			return err
		}
		b.cw = true
		return nil
	}
	b.cw = false
	return b.withRadio(n, func() error {
		return b.radio.ContinuousWave(false, freq, 0)
	})
}

func (b *uhfm) send(n *node.Node) error {
	n.Reset(UHFMDLPayload0)
	n.Reset(UHFMDLPayload1)
	n.SetField(UHFMStatus1, UHFMMaskDLFF, 0)
	n.SetField(UHFMRadioData0, UHFMMaskDLRSSI, codec.RFPowerError)

	size := int(n.Field(UHFMConfiguration0, UHFMMaskULPayloadSize))
	payload, err := n.ReadBytes(register.Internal, UHFMULPayload0, size)
	if err != nil {
		return err
	}
	ul := driver.Uplink{
		RC:            uint8(n.Field(UHFMConfiguration0, UHFMMaskRC)),
		PowerDBM:      b.txPower(n),
		Payload:       payload,
		Bidirectional: n.Field(UHFMConfiguration0, UHFMMaskBF) != 0,
		Control:       n.Field(UHFMConfiguration0, UHFMMaskCMSG) != 0,
	}
	return b.withRadio(n, func() error {
		dl, err := b.radio.Send(ul)
		if err != nil || dl == nil {
			return err
		}
		data := dl.Payload
		if len(data) > UHFMDLPayloadMax {
			data = data[:UHFMDLPayloadMax]
		}
		if err := n.WriteBytes(register.Internal, UHFMDLPayload0, data); err != nil {
			return err
		}
		n.SetField(UHFMRadioData0, UHFMMaskDLRSSI, codec.EncodeRFPower(dl.RSSI))
		n.SetField(UHFMStatus1, UHFMMaskDLFF, 1)
		return nil
	})
}

func (b *uhfm) testMode(n *node.Node) error {
	rc := uint8(n.Field(UHFMConfiguration2, UHFMMaskTMRC))
	mode := uint8(n.Field(UHFMConfiguration2, UHFMMaskTMMode))
	return b.withRadio(n, func() error {
		return b.radio.TestMode(rc, mode)
	})
}

func (b *uhfm) rssi(n *node.Node) error {
	n.SetField(UHFMRadioData0, UHFMMaskRSSI, codec.RFPowerError)
	freq := n.Get(UHFMConfiguration1)
	return b.withRadio(n, func() error {
		rssi, err := b.radio.RSSI(freq)
		if err != nil {
			return err
		}
		n.SetField(UHFMRadioData0, UHFMMaskRSSI, codec.EncodeRFPower(rssi))
		return nil
	})
}
