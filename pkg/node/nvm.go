// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"github.com/Thermoquad/dinfox/pkg/driver"
)

// NVM layout
const (
	NVMAddressOffset  = 0x00 // node address, 1 byte
	NVMEPIDOffset     = 0x01 // Sigfox device ID, 4 bytes
	NVMEPIDSize       = 4
	NVMEPKeyOffset    = 0x05 // Sigfox device key, 16 bytes
	NVMEPKeySize      = 16
	NVMRegisterOffset = 0x40 // 4 bytes per register, little-endian
)

// RegisterSlot returns the NVM offset of the first byte of register addr.
func RegisterSlot(addr uint8) int {
	return NVMRegisterOffset + int(addr)*4
}

// loadRegister reads the NVM slot of addr. ok is false when the slot is
// fully erased.
func (n *Node) loadRegister(addr uint8) (value uint32, ok bool, err error) {
	base := RegisterSlot(addr)
	erased := true
	for i := 0; i < 4; i++ {
		b, err := n.env.NVM.ReadByteAt(base + i)
		if err != nil {
			return 0, false, err
		}
		if b != driver.Erased {
			erased = false
		}
		value |= uint32(b) << (8 * uint(i))
	}
	return value, !erased, nil
}

func (n *Node) storeRegister(addr uint8, value uint32) error {
	base := RegisterSlot(addr)
	for i := 0; i < 4; i++ {
		if err := n.env.NVM.WriteByteAt(base+i, byte(value>>(8*uint(i)))); err != nil {
			return err
		}
	}
	return nil
}

// ReadNVM reads count bytes of NVM starting at offset.
func (n *Node) ReadNVM(offset, count int) ([]byte, error) {
	out := make([]byte, count)
	for i := range out {
		b, err := n.env.NVM.ReadByteAt(offset + i)
		if err != nil {
			return nil, n.report(err)
		}
		out[i] = b
	}
	return out, nil
}

// WriteNVM writes data to NVM starting at offset.
func (n *Node) WriteNVM(offset int, data []byte) error {
	for i, b := range data {
		if err := n.env.NVM.WriteByteAt(offset+i, b); err != nil {
			return n.report(err)
		}
	}
	return nil
}
