// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package register

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

var testLayout = Layout{
	{Name: "ID", Access: ReadOnly},
	{Name: "CONTROL", Access: ReadWrite, Triggers: 0x03},
	{Name: "CONFIG", Access: ReadWrite, ErrorValue: 0xFFFFFFFF, Persistent: true},
	{Name: "DATA", Access: ReadOnly, ErrorValue: 0xFFFFFFFF, Volatile: true},
	{Name: "PAYLOAD_0", Access: ReadWrite},
	{Name: "PAYLOAD_1", Access: ReadWrite},
}

type hookCall struct {
	kind string
	addr uint8
	mask uint32
}

// recordingHooks records every hook invocation and lets tests inject
// behavior.
type recordingHooks struct {
	calls      []hookCall
	secure     func(addr uint8, mask, value uint32) (uint32, uint32, error)
	processErr error
	refreshErr error
	seen       uint32 // register value observed during Process
}

func (h *recordingHooks) Refresh(s *Store, addr uint8) error {
	h.calls = append(h.calls, hookCall{"refresh", addr, 0})
	return h.refreshErr
}

func (h *recordingHooks) Secure(s *Store, addr uint8, mask, value uint32) (uint32, uint32, error) {
	h.calls = append(h.calls, hookCall{"secure", addr, mask})
	if h.secure != nil {
		return h.secure(addr, mask, value)
	}
	return mask, value, nil
}

func (h *recordingHooks) Process(s *Store, addr uint8, mask uint32) error {
	h.calls = append(h.calls, hookCall{"process", addr, mask})
	h.seen, _ = s.Read(Internal, addr)
	return h.processErr
}

// ============================================================
// Masked access
// ============================================================

func TestStore_InitialValues(t *testing.T) {
	s := New(testLayout)
	if s.Count() != len(testLayout) {
		t.Fatalf("Count() = %d, want %d", s.Count(), len(testLayout))
	}
	v, _ := s.Read(Internal, 2)
	if v != 0xFFFFFFFF {
		t.Errorf("CONFIG initial value = 0x%08X, want error value", v)
	}
}

func TestStore_MaskedWriteProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := New(testLayout)

	for i := 0; i < 1000; i++ {
		addr := uint8(rng.Intn(len(testLayout)))
		mask := rng.Uint32()
		value := rng.Uint32()

		before, _ := s.Read(Internal, addr)
		if err := s.Write(Internal, addr, mask, value); err != nil {
			t.Fatalf("internal write failed: %v", err)
		}
		after, _ := s.Read(Internal, addr)

		want := (before &^ mask) | (value & mask)
		if after != want {
			t.Fatalf("addr %d mask 0x%08X value 0x%08X: got 0x%08X, want 0x%08X",
				addr, mask, value, after, want)
		}
	}
}

func TestStore_UnknownAddress(t *testing.T) {
	s := New(testLayout)
	if _, err := s.Read(Internal, uint8(len(testLayout))); !errors.Is(err, ErrUnknownAddress) {
		t.Errorf("Read() error = %v, want ErrUnknownAddress", err)
	}
	if err := s.Write(External, 0xFF, 0xFFFFFFFF, 0); !errors.Is(err, ErrUnknownAddress) {
		t.Errorf("Write() error = %v, want ErrUnknownAddress", err)
	}
}

func TestStore_ReadField(t *testing.T) {
	s := New(testLayout)
	s.Write(Internal, 0, 0xFFFFFFFF, 0x00000A05)
	v, err := s.ReadField(Internal, 0, 0x0000FF00)
	if err != nil || v != 0x0A {
		t.Errorf("ReadField() = 0x%X, %v; want 0x0A, nil", v, err)
	}
}

// ============================================================
// Access control and hooks
// ============================================================

func TestStore_ReadOnlyViolation(t *testing.T) {
	s := New(testLayout)
	h := &recordingHooks{}
	s.SetHooks(h)
	s.Write(Internal, 0, 0xFFFFFFFF, 0x1234)

	for _, addr := range []uint8{0, 3} {
		before, _ := s.Read(Internal, addr)
		err := s.Write(External, addr, 0xFFFFFFFF, 0)
		if !errors.Is(err, ErrReadOnlyViolation) {
			t.Errorf("addr %d: error = %v, want ErrReadOnlyViolation", addr, err)
		}
		after, _ := s.Read(Internal, addr)
		if after != before {
			t.Errorf("addr %d changed from 0x%08X to 0x%08X", addr, before, after)
		}
	}
	if len(h.calls) != 0 {
		t.Errorf("hooks must not run on a rejected write, got %v", h.calls)
	}
}

func TestStore_InternalBypassesHooks(t *testing.T) {
	s := New(testLayout)
	h := &recordingHooks{}
	s.SetHooks(h)

	if err := s.Write(Internal, 0, 0xFF, 0x42); err != nil {
		t.Fatalf("internal write to read-only register failed: %v", err)
	}
	s.Read(Internal, 0)
	if len(h.calls) != 0 {
		t.Errorf("internal accesses must not run hooks, got %v", h.calls)
	}
}

func TestStore_ExternalReadRefreshes(t *testing.T) {
	s := New(testLayout)
	h := &recordingHooks{refreshErr: errors.New("sensor down")}
	s.SetHooks(h)
	s.Write(Internal, 3, 0xFFFFFFFF, 0x55)

	v, err := s.Read(External, 3)
	if err == nil {
		t.Error("refresh error should be returned")
	}
	if v != 0x55 {
		t.Errorf("value = 0x%X, want 0x55 even when refresh fails", v)
	}
	if len(h.calls) != 1 || h.calls[0].kind != "refresh" {
		t.Errorf("calls = %v, want one refresh", h.calls)
	}
}

func TestStore_SecureBeforeMerge(t *testing.T) {
	s := New(testLayout)
	h := &recordingHooks{
		secure: func(addr uint8, mask, value uint32) (uint32, uint32, error) {
			// Clamp to 0x10 and report the substitution.
			if value&mask > 0x10 {
				return mask, 0x10, ErrRegisterFieldValue
			}
			return mask, value, nil
		},
	}
	s.SetHooks(h)

	err := s.Write(External, 2, 0xFF, 0x80)
	if !errors.Is(err, ErrRegisterFieldValue) {
		t.Errorf("error = %v, want ErrRegisterFieldValue", err)
	}
	if h.seen&0xFF != 0x10 {
		t.Errorf("Process observed 0x%X, want the clamped value 0x10", h.seen&0xFF)
	}
	v, _ := s.Read(Internal, 2)
	if v != 0xFFFFFF10 {
		t.Errorf("stored = 0x%08X, want 0xFFFFFF10", v)
	}

	kinds := []string{}
	for _, c := range h.calls {
		kinds = append(kinds, c.kind)
	}
	if len(kinds) != 2 || kinds[0] != "secure" || kinds[1] != "process" {
		t.Errorf("hook order = %v, want [secure process]", kinds)
	}
}

func TestStore_SecureCanNarrowMask(t *testing.T) {
	s := New(testLayout)
	h := &recordingHooks{
		secure: func(addr uint8, mask, value uint32) (uint32, uint32, error) {
			return mask &^ 0x04, value, errors.New("forced")
		},
	}
	s.SetHooks(h)

	if err := s.Write(External, 4, 0x0F, 0x0F); err == nil {
		t.Fatal("expected the secure error to be returned")
	}
	v, _ := s.Read(Internal, 4)
	if v != 0x0B {
		t.Errorf("stored = 0x%X, want 0x0B (bit 2 rejected)", v)
	}
	if last := h.calls[len(h.calls)-1]; last.mask != 0x0B {
		t.Errorf("Process mask = 0x%X, want 0x0B", last.mask)
	}
}

func TestStore_TriggersSelfClear(t *testing.T) {
	tests := []struct {
		name       string
		processErr error
	}{
		{"handler succeeds", nil},
		{"handler fails", errors.New("driver failure")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testLayout)
			h := &recordingHooks{processErr: tt.processErr}
			s.SetHooks(h)

			err := s.Write(External, 1, 0xFF, 0x07)
			if !errors.Is(err, tt.processErr) {
				t.Errorf("error = %v, want %v", err, tt.processErr)
			}
			if h.seen&0x03 != 0x03 {
				t.Errorf("handler should observe the trigger bits set, saw 0x%X", h.seen)
			}
			v, _ := s.Read(Internal, 1)
			if v != 0x04 {
				t.Errorf("CONTROL = 0x%X, want 0x04 (triggers cleared, level bit kept)", v)
			}
		})
	}
}

func TestStore_ResetVolatile(t *testing.T) {
	s := New(testLayout)
	s.Write(Internal, 3, 0xFFFFFFFF, 0x1234)
	s.Write(Internal, 4, 0xFFFFFFFF, 0x5678)
	s.ResetVolatile()

	if v, _ := s.Read(Internal, 3); v != 0xFFFFFFFF {
		t.Errorf("DATA = 0x%08X, want error value", v)
	}
	if v, _ := s.Read(Internal, 4); v != 0x5678 {
		t.Errorf("PAYLOAD_0 = 0x%08X, non-volatile registers must be kept", v)
	}
}

// ============================================================
// Byte arrays
// ============================================================

func TestStore_Bytes(t *testing.T) {
	s := New(testLayout)
	h := &recordingHooks{}
	s.SetHooks(h)
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	if err := s.WriteBytes(External, 4, data); err != nil {
		t.Fatalf("WriteBytes() error: %v", err)
	}
	if v, _ := s.Read(Internal, 4); v != 0x04030201 {
		t.Errorf("PAYLOAD_0 = 0x%08X, want 0x04030201", v)
	}
	if v, _ := s.Read(Internal, 5); v != 0x00000605 {
		t.Errorf("PAYLOAD_1 = 0x%08X, want 0x00000605", v)
	}

	got, err := s.ReadBytes(External, 4, len(data))
	if err != nil {
		t.Fatalf("ReadBytes() error: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("ReadBytes() = %X, want %X", got, data)
		}
	}

	secures := 0
	for _, c := range h.calls {
		if c.kind == "secure" {
			secures++
		}
	}
	if secures != len(data) {
		t.Errorf("each byte should be one masked external write, got %d secure calls", secures)
	}
}

func TestStore_BytesReadOnly(t *testing.T) {
	s := New(testLayout)
	s.SetHooks(&recordingHooks{})
	if err := s.WriteBytes(External, 3, []byte{1}); !errors.Is(err, ErrReadOnlyViolation) {
		t.Errorf("error = %v, want ErrReadOnlyViolation", err)
	}
}

func TestStore_BytesPastLayout(t *testing.T) {
	s := New(testLayout)
	h := &recordingHooks{}
	s.SetHooks(h)

	// Six bytes from PAYLOAD_1 would need a register after it
	if err := s.WriteBytes(External, 5, []byte{1, 2, 3, 4, 5, 6}); !errors.Is(err, ErrUnknownAddress) {
		t.Fatalf("WriteBytes() error = %v, want ErrUnknownAddress", err)
	}
	if v, _ := s.Read(Internal, 5); v != 0 {
		t.Errorf("PAYLOAD_1 = 0x%08X, nothing may be written", v)
	}
	if len(h.calls) != 0 {
		t.Errorf("hooks called on a rejected span: %+v", h.calls)
	}
	if _, err := s.ReadBytes(External, 5, 5); !errors.Is(err, ErrUnknownAddress) {
		t.Errorf("ReadBytes() error = %v, want ErrUnknownAddress", err)
	}
}

func TestStore_BytesAddressWrap(t *testing.T) {
	layout := make(Layout, 256)
	for i := range layout {
		layout[i] = Spec{Name: fmt.Sprintf("R%02X", i), Access: ReadWrite}
	}
	s := New(layout)

	// A span starting at 0xFF must not wrap around to register 0x00
	if err := s.WriteBytes(External, 0xFF, []byte{1, 2, 3, 4, 5}); !errors.Is(err, ErrUnknownAddress) {
		t.Fatalf("WriteBytes() error = %v, want ErrUnknownAddress", err)
	}
	if v, _ := s.Read(Internal, 0x00); v != 0 {
		t.Errorf("R00 = 0x%08X, span wrapped", v)
	}
	if v, _ := s.Read(Internal, 0xFF); v != 0 {
		t.Errorf("RFF = 0x%08X, partial write", v)
	}

	if err := s.WriteBytes(External, 0xFF, []byte{1, 2, 3, 4}); err != nil {
		t.Errorf("four bytes in the last register: %v", err)
	}
}
