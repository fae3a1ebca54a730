// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node implements the node context: the register store of one node,
// its common registers, the dispatch of register hooks to the common
// personality or the board personality, the error stack and the
// non-volatile mirror of persistent registers.
package node

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/dinfox/pkg/driver"
	"github.com/Thermoquad/dinfox/pkg/errstack"
	"github.com/Thermoquad/dinfox/pkg/register"
	"github.com/Thermoquad/dinfox/pkg/status"
)

// Node addresses
const (
	AddressMaster    uint8 = 0x00
	AddressFirst     uint8 = 0x01
	AddressLast      uint8 = 0x7E
	AddressBroadcast uint8 = 0x7F
)

// Env groups the collaborators of a node. NVM, Analog, Power and System are
// required; the others are only needed by the boards that use them.
type Env struct {
	// Address is the configured bus address. Zero means "use the address
	// stored in NVM".
	Address uint8

	NVM     driver.NVM
	Analog  driver.Analog
	Digital driver.Digital
	Power   driver.Power
	System  driver.System
	Loads   map[string]driver.Load
	GPS     driver.GPS
	Sigfox  driver.Sigfox
	Sensor  driver.Sensor
	Meter   driver.Meter

	// Now returns the current time. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Info is the identity published in the version registers.
type Info struct {
	Software Version
	Hardware Hardware
}

// Errors
var (
	ErrNoAddress     = errors.New("no valid node address configured or stored")
	ErrMissingDriver = errors.New("missing driver")

	ErrForcedHardware = status.New(status.BaseNode+0x04, "output forced by hardware")
	ErrForcedSoftware = status.New(status.BaseNode+0x05, "output under automatic control")
	ErrRadioState     = status.New(status.BaseNode+0x06, "radio operation conflicts with radio state")
	ErrNotSupported   = status.New(status.BaseNode+0x07, "operation not supported by board")
)

// Node is the context of a running node. It is not safe for concurrent use:
// every access happens on the single command path.
type Node struct {
	env  Env
	info Info
	p    Personality
	log  *slog.Logger

	store        *register.Store
	errs         *errstack.Stack
	address      uint8
	resetPending bool
}

// New creates and initializes a node. Driver failures during
// initialization are pushed to the error stack; only configuration errors
// are returned.
func New(p Personality, env Env, info Info) (*Node, error) {
	if env.NVM == nil || env.Analog == nil || env.Power == nil || env.System == nil {
		return nil, fmt.Errorf("node requires NVM, analog, power and system drivers: %w", ErrMissingDriver)
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Logger == nil {
		env.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	n := &Node{
		env:  env,
		info: info,
		p:    p,
		log:  env.Logger.With("board", p.Board().String()),
		errs: errstack.New(),
	}
	if err := n.boot(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) boot() error {
	n.errs.Reset()
	address, err := n.loadAddress()
	if err != nil {
		return err
	}
	n.address = address
	n.resetPending = false

	layout := make(register.Layout, 0, len(commonLayout)+len(n.p.Layout()))
	layout = append(layout, commonLayout...)
	layout = append(layout, n.p.Layout()...)
	if len(layout) > 0x100 {
		return fmt.Errorf("%s layout has %d registers", n.p.Board(), len(layout))
	}
	n.store = register.New(layout)
	n.store.SetHooks(hooks{n})

	n.initCommon()
	for addr := int(AddrSpecific); addr < len(layout); addr++ {
		n.initRegister(uint8(addr), layout[addr])
	}
	if err := n.p.Init(n); err != nil {
		if errors.Is(err, ErrMissingDriver) {
			return err
		}
		n.log.Warn("personality init failed", "error", err)
		n.report(err)
	}

	n.log.Info("node initialized",
		"address", fmt.Sprintf("0x%02X", n.address),
		"registers", len(layout),
		"reset_flags", fmt.Sprintf("0x%02X", n.env.System.ResetFlags()),
	)
	return nil
}

func (n *Node) initRegister(addr uint8, spec register.Spec) {
	value, err := n.p.InitRegister(n, addr)
	n.report(err)
	if spec.Persistent && spec.Access == register.ReadWrite {
		stored, ok, err := n.loadRegister(addr)
		n.report(err)
		if ok {
			value = stored
		}
	}
	n.store.Write(register.Internal, addr, 0xFFFFFFFF, value)
}

func (n *Node) loadAddress() (uint8, error) {
	if n.env.Address != 0 {
		if !ValidAddress(n.env.Address) {
			return 0, fmt.Errorf("address 0x%02X: %w", n.env.Address, ErrNoAddress)
		}
		stored, err := n.env.NVM.ReadByteAt(NVMAddressOffset)
		if err == nil && stored == n.env.Address {
			return n.env.Address, nil
		}
		n.report(n.env.NVM.WriteByteAt(NVMAddressOffset, n.env.Address))
		return n.env.Address, nil
	}
	stored, err := n.env.NVM.ReadByteAt(NVMAddressOffset)
	if err != nil {
		return 0, fmt.Errorf("failed to read node address: %w", err)
	}
	if !ValidAddress(stored) {
		return 0, fmt.Errorf("stored address 0x%02X: %w", stored, ErrNoAddress)
	}
	return stored, nil
}

// ValidAddress reports whether a is a valid node address.
func ValidAddress(a uint8) bool {
	return a >= AddressFirst && a <= AddressLast
}

// Address returns the bus address of the node.
func (n *Node) Address() uint8 {
	return n.address
}

// Board returns the board identifier of the personality.
func (n *Node) Board() BoardID {
	return n.p.Board()
}

// Personality returns the board personality.
func (n *Node) Personality() Personality {
	return n.p
}

// Env returns the collaborators of the node.
func (n *Node) Env() *Env {
	return &n.env
}

// Logger returns the node logger.
func (n *Node) Logger() *slog.Logger {
	return n.log
}

// Errors returns the error stack.
func (n *Node) Errors() *errstack.Stack {
	return n.errs
}

// Info returns the published identity.
func (n *Node) Info() Info {
	return n.info
}

// Count returns the number of registers.
func (n *Node) Count() int {
	return n.store.Count()
}

// Spec returns the description of register addr.
func (n *Node) Spec(addr uint8) (register.Spec, error) {
	return n.store.Spec(addr)
}

// Snapshot returns a copy of every register value.
func (n *Node) Snapshot() []uint32 {
	return n.store.Snapshot()
}

// Read reads register addr on behalf of src.
func (n *Node) Read(src register.Source, addr uint8) (uint32, error) {
	value, err := n.store.Read(src, addr)
	return value, n.report(err)
}

// Write writes register addr on behalf of src.
func (n *Node) Write(src register.Source, addr uint8, mask, value uint32) error {
	err := n.report(n.store.Write(src, addr, mask, value))
	if err != nil {
		n.log.Debug("register write failed",
			"addr", fmt.Sprintf("0x%02X", addr),
			"mask", fmt.Sprintf("0x%08X", mask),
			"value", fmt.Sprintf("0x%08X", value),
			"error", err,
		)
	}
	return err
}

// Get returns the current value of addr without running any hook. addr must
// be a valid address.
func (n *Node) Get(addr uint8) uint32 {
	value, _ := n.store.Read(register.Internal, addr)
	return value
}

// Field returns the field of addr selected by mask, shifted down.
func (n *Node) Field(addr uint8, mask uint32) uint32 {
	value, _ := n.store.ReadField(register.Internal, addr, mask)
	return value
}

// SetField writes a field of addr internally.
func (n *Node) SetField(addr uint8, mask, field uint32) {
	n.store.WriteField(register.Internal, addr, mask, field)
}

// Reset loads the error value of addr. addr must be a valid address.
func (n *Node) Reset(addr uint8) {
	n.store.Reset(addr)
}

// WriteBytes stores a byte array over consecutive registers on behalf of src.
func (n *Node) WriteBytes(src register.Source, addr uint8, data []byte) error {
	return n.report(n.store.WriteBytes(src, addr, data))
}

// ReadBytes loads a byte array from consecutive registers on behalf of src.
func (n *Node) ReadBytes(src register.Source, addr uint8, count int) ([]byte, error) {
	data, err := n.store.ReadBytes(src, addr, count)
	return data, n.report(err)
}

// report pushes collaborator errors to the error stack. Protocol and policy
// errors are only returned to the requester.
func (n *Node) report(err error) error {
	if err == nil {
		return nil
	}
	code := status.CodeOf(err, status.BaseNode)
	if code.IsDriver() {
		n.errs.Push(code)
		n.log.Warn("driver error", "code", code.String(), "error", err)
	}
	return err
}

// Measure resets every volatile register to its error value, then fills the
// common analog register and the personality data registers.
func (n *Node) Measure() error {
	n.store.ResetVolatile()

	if err := n.env.Power.Enable(driver.RequesterMeasure, driver.DomainAnalog); err != nil {
		return err
	}
	defer n.env.Power.Disable(driver.RequesterMeasure, driver.DomainAnalog)

	vmcu, err := n.ConvertVoltage(driver.ChannelVMCU)
	if err != nil {
		return err
	}
	n.SetField(AddrAnalogData0, MaskVMCU, vmcu)
	tmcu, err := n.ConvertTemperature(driver.ChannelTMCU)
	if err != nil {
		return err
	}
	n.SetField(AddrAnalogData0, MaskTMCU, tmcu)

	return n.p.Measure(n)
}

// ResetPending reports whether a software reset was requested by the last
// command.
func (n *Node) ResetPending() bool {
	return n.resetPending
}

// Reboot performs a software reset: the reset controller records it and the
// node is initialized again. Volatile personality state is lost; persistent
// registers are reloaded from NVM.
func (n *Node) Reboot() error {
	n.log.Info("software reset")
	n.env.System.Reset()
	return n.boot()
}

// hooks dispatches store callbacks to the common personality or the board
// personality, depending on the address.
type hooks struct {
	n *Node
}

func (h hooks) Refresh(s *register.Store, addr uint8) error {
	if addr < AddrSpecific {
		return h.n.refreshCommon(addr)
	}
	return h.n.p.Refresh(h.n, addr)
}

func (h hooks) Secure(s *register.Store, addr uint8, mask, value uint32) (uint32, uint32, error) {
	if addr == AddrControl0 {
		// Only the trigger bits exist
		return mask & (MaskRTRG | MaskMTRG | MaskBFCTRG), value, nil
	}
	if addr < AddrSpecific {
		return mask, value, nil
	}
	return h.n.p.Secure(h.n, addr, mask, value)
}

func (h hooks) Process(s *register.Store, addr uint8, mask uint32) error {
	if addr < AddrSpecific {
		return h.n.processCommon(addr, mask)
	}
	if err := h.n.p.Process(h.n, addr, mask); err != nil {
		return err
	}
	spec, _ := s.Spec(addr)
	if !spec.Persistent {
		return nil
	}
	return h.n.storeRegister(addr, h.n.Get(addr))
}
