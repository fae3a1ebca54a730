// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"fmt"
	"time"
)

// Switch turns a physical power domain on or off.
type Switch interface {
	SetDomain(d Domain, on bool) error
}

// PowerManager reference-counts power requests: a domain is switched on by
// its first requester and switched off when its last requester releases it.
type PowerManager struct {
	sw       Switch
	settle   time.Duration
	sleep    func(time.Duration)
	requests [domainCount]map[Requester]struct{}
}

// NewPowerManager creates a power manager driving sw. settle is the delay
// applied after a domain is switched on.
func NewPowerManager(sw Switch, settle time.Duration) *PowerManager {
	pm := &PowerManager{sw: sw, settle: settle, sleep: time.Sleep}
	for d := range pm.requests {
		pm.requests[d] = make(map[Requester]struct{})
	}
	return pm
}

// Enable requests domain d for r.
func (pm *PowerManager) Enable(r Requester, d Domain) error {
	if d >= domainCount {
		return fmt.Errorf("domain %d: %w", d, ErrPowerDomain)
	}
	first := len(pm.requests[d]) == 0
	pm.requests[d][r] = struct{}{}
	if !first {
		return nil
	}
	if err := pm.sw.SetDomain(d, true); err != nil {
		delete(pm.requests[d], r)
		return err
	}
	if pm.settle > 0 {
		pm.sleep(pm.settle)
	}
	return nil
}

// Disable releases domain d for r.
func (pm *PowerManager) Disable(r Requester, d Domain) error {
	if d >= domainCount {
		return fmt.Errorf("domain %d: %w", d, ErrPowerDomain)
	}
	if _, ok := pm.requests[d][r]; !ok {
		return nil
	}
	delete(pm.requests[d], r)
	if len(pm.requests[d]) > 0 {
		return nil
	}
	return pm.sw.SetDomain(d, false)
}

// Enabled reports whether domain d is currently requested by anyone.
func (pm *PowerManager) Enabled(d Domain) bool {
	if d >= domainCount {
		return false
	}
	return len(pm.requests[d]) > 0
}
