// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters holds frame counters and rates
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames    uint64
	ValidFrames    uint64
	Requests       uint64
	Replies        uint64
	Broadcasts     uint64
	Foreign        uint64
	Truncated      uint64
	Interrupted    uint64
	DroppedBytes   uint64
	TransmitErrors uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// Statistics tracks frame statistics and error rates.
// It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// Update updates statistics based on a decoded frame and its decode error
func (s *Statistics) Update(f *Frame, decodeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastUpdateTime = time.Now()

	switch {
	case errors.Is(decodeErr, ErrFrameInterrupted):
		s.Interrupted++
		return
	case errors.Is(decodeErr, ErrLineTruncated):
		s.TotalFrames++
		s.Truncated++
		return
	case f == nil:
		return
	}

	s.TotalFrames++
	s.ValidFrames++
	switch {
	case f.IsBroadcast():
		s.Broadcasts++
	case f.IsReply():
		s.Replies++
	default:
		s.Requests++
	}
}

// AddForeign counts a frame addressed to another node
func (s *Statistics) AddForeign() {
	s.mu.Lock()
	s.Foreign++
	s.mu.Unlock()
}

// AddDropped counts bytes discarded while reception was disabled
func (s *Statistics) AddDropped(n int) {
	s.mu.Lock()
	s.DroppedBytes += uint64(n)
	s.mu.Unlock()
}

// AddTransmitError counts a failed frame transmission
func (s *Statistics) AddTransmitError() {
	s.mu.Lock()
	s.TransmitErrors++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return s.Counters
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Truncated+s.Interrupted+s.TransmitErrors) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	percent := func(n uint64) float64 {
		if snap.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", snap.ValidFrames, percent(snap.ValidFrames))
	result += fmt.Sprintf("  Requests:         %5d\n", snap.Requests)
	result += fmt.Sprintf("  Replies:          %5d\n", snap.Replies)
	result += fmt.Sprintf("  Broadcasts:       %5d\n", snap.Broadcasts)

	if snap.Foreign > 0 {
		result += fmt.Sprintf("Foreign Frames:  %8d\n", snap.Foreign)
	}
	if snap.Truncated > 0 {
		result += fmt.Sprintf("Truncated Lines: %8d (%.1f%%)\n", snap.Truncated, percent(snap.Truncated))
	}
	if snap.Interrupted > 0 {
		result += fmt.Sprintf("Interrupted:     %8d\n", snap.Interrupted)
	}
	if snap.DroppedBytes > 0 {
		result += fmt.Sprintf("Dropped Bytes:   %8d\n", snap.DroppedBytes)
	}
	if snap.TransmitErrors > 0 {
		result += fmt.Sprintf("TX Errors:       %8d\n", snap.TransmitErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Counters = Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
