// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package errstack

import (
	"testing"

	"github.com/Thermoquad/dinfox/pkg/status"
)

func TestStack_PushPop(t *testing.T) {
	s := New()
	s.Push(status.BaseAnalog + 1)
	s.Push(status.Success)
	s.Push(status.BaseGPS + 2)

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (Success must be ignored)", s.Len())
	}
	if got := s.Pop(); got != status.BaseGPS+2 {
		t.Errorf("Pop() = %s, want %s", got, status.BaseGPS+2)
	}
	if got := s.Pop(); got != status.BaseAnalog+1 {
		t.Errorf("Pop() = %s, want %s", got, status.BaseAnalog+1)
	}
	if got := s.Pop(); got != status.Success {
		t.Errorf("Pop() on empty stack = %s, want Success", got)
	}
	if !s.Empty() {
		t.Error("stack should be empty")
	}
}

func TestStack_DropsOldestWhenFull(t *testing.T) {
	s := NewWithDepth(3)
	for i := 1; i <= 5; i++ {
		s.Push(status.BaseNVM + status.Code(i))
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	want := []status.Code{status.BaseNVM + 5, status.BaseNVM + 4, status.BaseNVM + 3}
	for _, w := range want {
		if got := s.Pop(); got != w {
			t.Errorf("Pop() = %s, want %s", got, w)
		}
	}
}

func TestStack_Reset(t *testing.T) {
	s := New()
	s.Push(status.BaseBus + 1)
	s.Reset()
	if !s.Empty() {
		t.Error("Reset() should empty the stack")
	}
}
