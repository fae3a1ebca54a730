// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"fmt"

	"github.com/Thermoquad/dinfox/pkg/register"
)

// BoardID identifies the personality of a node. It is published in the
// NODE_ID register.
type BoardID uint8

// Board identifiers
const (
	BoardLVRM  BoardID = 0
	BoardBPSM  BoardID = 1
	BoardDDRM  BoardID = 2
	BoardUHFM  BoardID = 3
	BoardGPSM  BoardID = 4
	BoardSM    BoardID = 5
	BoardRRM   BoardID = 7
	BoardMPMCM BoardID = 9
	BoardBCM   BoardID = 11
)

var boardNames = map[BoardID]string{
	BoardLVRM:  "LVRM",
	BoardBPSM:  "BPSM",
	BoardDDRM:  "DDRM",
	BoardUHFM:  "UHFM",
	BoardGPSM:  "GPSM",
	BoardSM:    "SM",
	BoardRRM:   "RRM",
	BoardMPMCM: "MPMCM",
	BoardBCM:   "BCM",
}

func (b BoardID) String() string {
	if name, ok := boardNames[b]; ok {
		return name
	}
	return fmt.Sprintf("BOARD_%d", uint8(b))
}

// ParseBoard returns the identifier of a board name.
func ParseBoard(name string) (BoardID, error) {
	for id, n := range boardNames {
		if n == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown board %q", name)
}

// Personality is the board-specific behavior plugged into a node. A node has
// exactly one personality. Hooks receive the node by exclusive reference and
// are only called for specific register addresses (AddrSpecific and above).
type Personality interface {
	Board() BoardID

	// Layout describes the specific registers, starting at AddrSpecific.
	Layout() register.Layout

	// Init seeds the personality state from the current driver state. It is
	// called after every register holds its initial value.
	Init(n *Node) error

	// InitRegister returns the power-on value of a specific register.
	InitRegister(n *Node, addr uint8) (uint32, error)

	// Refresh updates the volatile fields of addr before an external read.
	Refresh(n *Node, addr uint8) error

	// Secure validates and clamps a proposed external write before it is
	// merged. It returns the mask and value to apply.
	Secure(n *Node, addr uint8, mask, value uint32) (uint32, uint32, error)

	// Process runs the side effects of a merged external write.
	Process(n *Node, addr uint8, mask uint32) error

	// Measure fills the specific data registers. They have already been
	// reset to their error values.
	Measure(n *Node) error
}
