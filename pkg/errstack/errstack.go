// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package errstack implements the node error stack: a bounded queue of
// status codes written by every layer and drained through the ERROR_STACK
// register.
package errstack

import (
	"sync"

	"github.com/Thermoquad/dinfox/pkg/status"
)

// DefaultDepth is the capacity used by New.
const DefaultDepth = 32

// Stack is a bounded LIFO of error codes. When full, the oldest code is
// discarded to make room.
type Stack struct {
	mu    sync.Mutex
	codes []status.Code
	depth int
}

// New creates an error stack with DefaultDepth entries.
func New() *Stack {
	return NewWithDepth(DefaultDepth)
}

// NewWithDepth creates an error stack holding at most depth codes.
func NewWithDepth(depth int) *Stack {
	if depth < 1 {
		depth = 1
	}
	return &Stack{codes: make([]status.Code, 0, depth), depth: depth}
}

// Push adds a code. Success is ignored.
func (s *Stack) Push(code status.Code) {
	if code == status.Success {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == s.depth {
		copy(s.codes, s.codes[1:])
		s.codes = s.codes[:len(s.codes)-1]
	}
	s.codes = append(s.codes, code)
}

// Pop removes and returns the most recent code, or Success when empty.
func (s *Stack) Pop() status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return status.Success
	}
	code := s.codes[len(s.codes)-1]
	s.codes = s.codes[:len(s.codes)-1]
	return code
}

// Len returns the number of stored codes.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// Empty reports whether the stack holds no code.
func (s *Stack) Empty() bool {
	return s.Len() == 0
}

// Reset discards every code.
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = s.codes[:0]
}
