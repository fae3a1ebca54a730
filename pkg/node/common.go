// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"github.com/Thermoquad/dinfox/pkg/register"
)

// Common register addresses, identical on every board
const (
	AddrSWVersion0 uint8 = iota
	AddrSWVersion1
	AddrHWVersion
	AddrStatus0
	AddrControl0
	AddrErrorStack
	AddrAnalogData0
	AddrNodeID
	AddrSpecific // first personality register
)

// SW_VERSION_0 fields
const (
	MaskSWMajor       uint32 = 0x000000FF
	MaskSWMinor       uint32 = 0x0000FF00
	MaskSWCommitIndex uint32 = 0x003F0000
	MaskSWDirty       uint32 = 0x00400000
)

// SW_VERSION_1 fields
const (
	MaskSWCommitID uint32 = 0x0FFFFFFF
)

// HW_VERSION fields
const (
	MaskHWMajor uint32 = 0x000000FF
	MaskHWMinor uint32 = 0x0000FF00
)

// STATUS_0 fields
const (
	MaskResetFlags uint32 = 0x000000FF
	MaskBootFlag   uint32 = 0x00000100
	MaskErrorFlag  uint32 = 0x00000200
)

// CONTROL_0 fields
const (
	MaskRTRG   uint32 = 0x00000001 // software reset
	MaskMTRG   uint32 = 0x00000002 // measurement
	MaskBFCTRG uint32 = 0x00000004 // boot flag clear
)

// ERROR_STACK fields
const (
	MaskErrorCode uint32 = 0x0000FFFF
)

// ANALOG_DATA_0 fields
const (
	MaskVMCU uint32 = 0x0000FFFF
	MaskTMCU uint32 = 0xFFFF0000
)

// NODE_ID fields
const (
	MaskNodeAddress uint32 = 0x000000FF
	MaskBoardID     uint32 = 0x0000FF00
)

var commonLayout = register.Layout{
	AddrSWVersion0:  {Name: "SW_VERSION_0", Access: register.ReadOnly},
	AddrSWVersion1:  {Name: "SW_VERSION_1", Access: register.ReadOnly},
	AddrHWVersion:   {Name: "HW_VERSION", Access: register.ReadOnly},
	AddrStatus0:     {Name: "STATUS_0", Access: register.ReadOnly},
	AddrControl0:    {Name: "CONTROL_0", Access: register.ReadWrite, Triggers: MaskRTRG | MaskMTRG | MaskBFCTRG},
	AddrErrorStack:  {Name: "ERROR_STACK", Access: register.ReadOnly},
	AddrAnalogData0: {Name: "ANALOG_DATA_0", Access: register.ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
	AddrNodeID:      {Name: "NODE_ID", Access: register.ReadOnly},
}

// CommonLayout returns a copy of the common register layout.
func CommonLayout() register.Layout {
	return append(register.Layout(nil), commonLayout...)
}

// CommonFields describes the fields of the common registers.
var CommonFields = []Field{
	{Name: "SW_MAJOR", Addr: AddrSWVersion0, Mask: MaskSWMajor, Kind: KindDecimal},
	{Name: "SW_MINOR", Addr: AddrSWVersion0, Mask: MaskSWMinor, Kind: KindDecimal},
	{Name: "SW_COMMIT_INDEX", Addr: AddrSWVersion0, Mask: MaskSWCommitIndex, Kind: KindDecimal},
	{Name: "SW_DIRTY", Addr: AddrSWVersion0, Mask: MaskSWDirty, Kind: KindBool},
	{Name: "SW_COMMIT_ID", Addr: AddrSWVersion1, Mask: MaskSWCommitID, Kind: KindHex},
	{Name: "HW_MAJOR", Addr: AddrHWVersion, Mask: MaskHWMajor, Kind: KindDecimal},
	{Name: "HW_MINOR", Addr: AddrHWVersion, Mask: MaskHWMinor, Kind: KindDecimal},
	{Name: "RESET_FLAGS", Addr: AddrStatus0, Mask: MaskResetFlags, Kind: KindHex},
	{Name: "BF", Addr: AddrStatus0, Mask: MaskBootFlag, Kind: KindBool},
	{Name: "ESF", Addr: AddrStatus0, Mask: MaskErrorFlag, Kind: KindBool},
	{Name: "RTRG", Addr: AddrControl0, Mask: MaskRTRG, Kind: KindBool},
	{Name: "MTRG", Addr: AddrControl0, Mask: MaskMTRG, Kind: KindBool},
	{Name: "BFCTRG", Addr: AddrControl0, Mask: MaskBFCTRG, Kind: KindBool},
	{Name: "ERROR", Addr: AddrErrorStack, Mask: MaskErrorCode, Kind: KindHex},
	{Name: "VMCU", Addr: AddrAnalogData0, Mask: MaskVMCU, Kind: KindVoltage},
	{Name: "TMCU", Addr: AddrAnalogData0, Mask: MaskTMCU, Kind: KindTemperature},
	{Name: "NODE_ADDR", Addr: AddrNodeID, Mask: MaskNodeAddress, Kind: KindHex},
	{Name: "BOARD_ID", Addr: AddrNodeID, Mask: MaskBoardID, Kind: KindDecimal},
}

// Version is a firmware version.
type Version struct {
	Major       uint8
	Minor       uint8
	CommitIndex uint8
	CommitID    uint32
	Dirty       bool
}

// Hardware is a board revision.
type Hardware struct {
	Major uint8
	Minor uint8
}

func (n *Node) initCommon() {
	sw := n.info.Software
	n.SetField(AddrSWVersion0, MaskSWMajor, uint32(sw.Major))
	n.SetField(AddrSWVersion0, MaskSWMinor, uint32(sw.Minor))
	n.SetField(AddrSWVersion0, MaskSWCommitIndex, uint32(sw.CommitIndex))
	n.SetField(AddrSWVersion0, MaskSWDirty, boolField(sw.Dirty))
	n.SetField(AddrSWVersion1, MaskSWCommitID, sw.CommitID)

	n.SetField(AddrHWVersion, MaskHWMajor, uint32(n.info.Hardware.Major))
	n.SetField(AddrHWVersion, MaskHWMinor, uint32(n.info.Hardware.Minor))

	n.SetField(AddrStatus0, MaskResetFlags, uint32(n.env.System.ResetFlags()))
	n.SetField(AddrStatus0, MaskBootFlag, 1)
	n.SetField(AddrStatus0, MaskErrorFlag, 0)

	n.SetField(AddrControl0, 0xFFFFFFFF, 0)
	n.SetField(AddrErrorStack, 0xFFFFFFFF, 0)

	n.SetField(AddrNodeID, MaskNodeAddress, uint32(n.address))
	n.SetField(AddrNodeID, MaskBoardID, uint32(n.p.Board()))
}

func (n *Node) refreshCommon(addr uint8) error {
	switch addr {
	case AddrStatus0:
		n.SetField(AddrStatus0, MaskErrorFlag, boolField(!n.errs.Empty()))
	case AddrErrorStack:
		n.SetField(AddrErrorStack, MaskErrorCode, uint32(n.errs.Pop()))
	}
	return nil
}

func (n *Node) processCommon(addr uint8, mask uint32) error {
	if addr != AddrControl0 {
		return nil
	}
	reg := n.Get(AddrControl0)
	if mask&reg&MaskBFCTRG != 0 {
		n.SetField(AddrStatus0, MaskBootFlag, 0)
	}
	if mask&reg&MaskRTRG != 0 {
		n.resetPending = true
	}
	if mask&reg&MaskMTRG != 0 {
		return n.Measure()
	}
	return nil
}

func boolField(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
