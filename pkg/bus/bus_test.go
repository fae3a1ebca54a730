// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/dinfox/pkg/status"
)

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeFrame_Addressed(t *testing.T) {
	data, err := EncodeFrame(ModeAddressed, 0x21, AddressMaster, "AT$R=07")
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	expected := append([]byte{0xA1, 0x00}, []byte("AT$R=07\r")...)
	if !bytes.Equal(data, expected) {
		t.Errorf("frame = % X, want % X", data, expected)
	}
}

func TestEncodeFrame_Raw(t *testing.T) {
	data, err := EncodeFrame(ModeRaw, 0x21, 0x00, "OK")
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if string(data) != "OK\r" {
		t.Errorf("frame = %q, want %q", data, "OK\r")
	}
}

func TestEncodeFrame_Invalid(t *testing.T) {
	tests := []struct {
		name string
		line string
		err  error
	}{
		{"too long", strings.Repeat("A", LineCapacity+1), ErrLineTooLong},
		{"terminator", "AT\r", ErrInvalidCharacter},
		{"top bit", "AT\x80", ErrInvalidCharacter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(ModeAddressed, 1, 0, tt.line)
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestEncodeFrame_MaxLength(t *testing.T) {
	line := strings.Repeat("A", LineCapacity)
	if _, err := EncodeFrame(ModeAddressed, 1, 0, line); err != nil {
		t.Errorf("line of capacity length rejected: %v", err)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_RoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeAddressed, ModeRaw} {
		t.Run(mode.String(), func(t *testing.T) {
			data, err := EncodeFrame(mode, 0x05, 0x00, "AT$W=08,00000001,00000001")
			if err != nil {
				t.Fatalf("EncodeFrame failed: %v", err)
			}
			frames, errs := NewDecoder(mode).Decode(data)
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			f := frames[0]
			if f.Line != "AT$W=08,00000001,00000001" {
				t.Errorf("line = %q", f.Line)
			}
			if mode == ModeAddressed && (f.Destination != 0x05 || f.Source != 0x00) {
				t.Errorf("addresses = %02X <- %02X", f.Destination, f.Source)
			}
		})
	}
}

func TestDecoder_SourceEqualToTerminator(t *testing.T) {
	// Address 0x0D is the terminator byte value
	data, _ := EncodeFrame(ModeAddressed, AddressMaster, 0x0D, "OK")
	frames, errs := NewDecoder(ModeAddressed).Decode(data)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
	if frames[0].Source != 0x0D || frames[0].Line != "OK" {
		t.Errorf("frame = %+v", frames[0])
	}
}

func TestDecoder_NoiseBetweenFrames(t *testing.T) {
	var data []byte
	data = append(data, 'x', 'y', Terminator)
	f1, _ := EncodeFrame(ModeAddressed, 1, 0, "AT")
	f2, _ := EncodeFrame(ModeAddressed, 2, 0, "AT?")
	data = append(data, f1...)
	data = append(data, 0x00, 0x13)
	data = append(data, f2...)

	frames, errs := NewDecoder(ModeAddressed).Decode(data)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 2 || frames[0].Line != "AT" || frames[1].Line != "AT?" {
		t.Fatalf("frames = %v", frames)
	}
}

func TestDecoder_Interrupted(t *testing.T) {
	d := NewDecoder(ModeAddressed)
	d.Decode([]byte{0x81, 0x00, 'A', 'T'})
	if !d.Pending() {
		t.Fatal("decoder should have a pending frame")
	}

	full, _ := EncodeFrame(ModeAddressed, 2, 0, "AT")
	frames, errs := d.Decode(full)
	if len(errs) != 1 || !errors.Is(errs[0], ErrFrameInterrupted) {
		t.Errorf("errors = %v, want one ErrFrameInterrupted", errs)
	}
	if len(frames) != 1 || frames[0].Destination != 2 {
		t.Errorf("frames = %v", frames)
	}
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder(ModeAddressed)
	long := strings.Repeat("B", LineCapacity+10)
	data := append([]byte{0x81, 0x00}, long...)
	data = append(data, Terminator)

	var truncated *Frame
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if f != nil {
			if !errors.Is(err, ErrLineTruncated) {
				t.Fatalf("error = %v, want ErrLineTruncated", err)
			}
			truncated = f
		}
	}
	if truncated == nil {
		t.Fatal("truncated frame not reported")
	}
	if !truncated.Truncated || len(truncated.Line) != LineCapacity {
		t.Errorf("truncated=%v len=%d", truncated.Truncated, len(truncated.Line))
	}

	// The decoder resynchronizes on the next frame
	next, _ := EncodeFrame(ModeAddressed, 1, 0, "AT")
	frames, errs := d.Decode(next)
	if len(errs) != 0 || len(frames) != 1 || frames[0].Line != "AT" {
		t.Errorf("after overflow: frames=%v errs=%v", frames, errs)
	}
}

func TestDecoder_RawIgnoresLineFeed(t *testing.T) {
	frames, _ := NewDecoder(ModeRaw).Decode([]byte("AT\r\nAT?\r\n"))
	if len(frames) != 2 || frames[0].Line != "AT" || frames[1].Line != "AT?" {
		t.Errorf("frames = %v", frames)
	}
}

// ============================================================
// Reply Tests
// ============================================================

func TestErrorReply(t *testing.T) {
	line := FormatErrorReply(status.BaseNode + 2)
	if line != "ERROR_0102" {
		t.Errorf("FormatErrorReply = %q", line)
	}
	code, ok := ParseErrorReply(line)
	if !ok || code != 0x0102 {
		t.Errorf("ParseErrorReply = %v, %v", code, ok)
	}
	for _, bad := range []string{"OK", "ERROR_", "ERROR_12", "ERROR_XYZW", "ERROR_01020"} {
		if _, ok := ParseErrorReply(bad); ok {
			t.Errorf("ParseErrorReply(%q) accepted", bad)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("raw"); err != nil || m != ModeRaw {
		t.Errorf("ParseMode(raw) = %v, %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeAddressed {
		t.Errorf("ParseMode('') = %v, %v", m, err)
	}
	if _, err := ParseMode("modbus"); err == nil {
		t.Error("ParseMode(modbus) should fail")
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(NewFrame(1, 0, "AT"), nil)
	s.Update(NewFrame(0, 1, "OK"), nil)
	s.Update(NewFrame(AddressBroadcast, 0, "AT$RST"), nil)
	s.Update(&Frame{Truncated: true}, ErrLineTruncated)
	s.Update(nil, ErrFrameInterrupted)
	s.AddForeign()
	s.AddDropped(3)

	c := s.Snapshot()
	if c.TotalFrames != 4 || c.ValidFrames != 3 {
		t.Errorf("total=%d valid=%d", c.TotalFrames, c.ValidFrames)
	}
	if c.Requests != 1 || c.Replies != 1 || c.Broadcasts != 1 {
		t.Errorf("requests=%d replies=%d broadcasts=%d", c.Requests, c.Replies, c.Broadcasts)
	}
	if c.Truncated != 1 || c.Interrupted != 1 || c.Foreign != 1 || c.DroppedBytes != 3 {
		t.Errorf("counters = %+v", c)
	}

	report := s.String()
	for _, want := range []string{"Total Frames:", "Truncated Lines:", "Dropped Bytes:"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	s.Reset()
	if c := s.Snapshot(); c.TotalFrames != 0 || c.DroppedBytes != 0 {
		t.Errorf("counters not reset: %+v", c)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		frame *Frame
		want  string
	}{
		{NewFrame(0x21, 0x00, "AT$R=07"), `REQUEST master -> 0x21 "AT$R=07"`},
		{NewFrame(0x00, 0x21, "OK"), `REPLY 0x21 -> master "OK"`},
		{NewFrame(AddressBroadcast, 0x00, "AT"), `BROADCAST master -> broadcast "AT"`},
	}
	for _, tt := range tests {
		got := FormatFrame(tt.frame)
		if !strings.Contains(got, tt.want) {
			t.Errorf("FormatFrame = %q, want substring %q", got, tt.want)
		}
	}

	f := &Frame{Line: "AAAA", Truncated: true}
	if !strings.Contains(FormatFrame(f), "(truncated)") {
		t.Error("truncated frame not marked")
	}
}
