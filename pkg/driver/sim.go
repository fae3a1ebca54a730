// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"fmt"
	"time"
)

// Simulated hardware. The values are plain fields so that a configuration
// file or a test can set them directly. None of the simulators are safe for
// concurrent use, matching the single command path of a node.

// SimLoad is a switched output.
type SimLoad struct {
	On    bool
	Fault bool // next SetOutputState fails
	Calls int
}

// SetOutputState drives the output.
func (l *SimLoad) SetOutputState(on bool) error {
	l.Calls++
	if l.Fault {
		return fmt.Errorf("set output %t: %w", on, ErrLoadFault)
	}
	l.On = on
	return nil
}

// OutputState returns the output feedback.
func (l *SimLoad) OutputState() bool {
	return l.On
}

// SimAnalog returns fixed channel values.
type SimAnalog struct {
	Values map[Channel]int32
	Calls  int
}

// Convert returns the configured value of ch.
func (a *SimAnalog) Convert(ch Channel) (int32, error) {
	a.Calls++
	v, ok := a.Values[ch]
	if !ok {
		return 0, fmt.Errorf("channel %s: %w", ch, ErrAnalogChannel)
	}
	return v, nil
}

// SimDigital returns fixed channel states.
type SimDigital struct {
	Values map[Channel]bool
}

// Read returns the configured state of ch.
func (d *SimDigital) Read(ch Channel) (bool, error) {
	v, ok := d.Values[ch]
	if !ok {
		return false, fmt.Errorf("channel %s: %w", ch, ErrDigitalChannel)
	}
	return v, nil
}

// SimSwitch records the state of every power domain.
type SimSwitch struct {
	On      [domainCount]bool
	Toggles int
}

// SetDomain switches domain d.
func (s *SimSwitch) SetDomain(d Domain, on bool) error {
	if d >= domainCount {
		return ErrPowerDomain
	}
	s.On[d] = on
	s.Toggles++
	return nil
}

// SimGPS produces fixes after a configured acquisition time. The wait is
// simulated: a fix slower than the timeout fails immediately.
type SimGPS struct {
	Now       GPSTime
	Fix       Position
	FixTime   time.Duration
	Timepulse Timepulse

	// Clock, when set, supplies the time fix instead of Now.
	Clock func() time.Time

	// TimepulseLimit, when set, is the highest timepulse frequency the
	// receiver accepts.
	TimepulseLimit uint32
}

// Time returns the configured time fix.
func (g *SimGPS) Time(timeout time.Duration) (GPSTime, time.Duration, error) {
	if g.FixTime > timeout {
		return GPSTime{}, timeout, fmt.Errorf("time fix after %s: %w", timeout, ErrGPSTimeout)
	}
	if g.Clock != nil {
		t := g.Clock().UTC()
		return GPSTime{
			Year:   uint16(t.Year()),
			Month:  uint8(t.Month()),
			Date:   uint8(t.Day()),
			Hours:  uint8(t.Hour()),
			Minute: uint8(t.Minute()),
			Second: uint8(t.Second()),
		}, g.FixTime, nil
	}
	return g.Now, g.FixTime, nil
}

// Position returns the configured position fix.
func (g *SimGPS) Position(timeout time.Duration) (Position, time.Duration, error) {
	if g.FixTime > timeout {
		return Position{}, timeout, fmt.Errorf("position fix after %s: %w", timeout, ErrGPSTimeout)
	}
	return g.Fix, g.FixTime, nil
}

// SetTimepulse stores the timepulse configuration.
func (g *SimGPS) SetTimepulse(tp Timepulse) error {
	if tp.Enabled && (tp.FrequencyHz == 0 || tp.DutyPercent > 100 ||
		(g.TimepulseLimit != 0 && tp.FrequencyHz > g.TimepulseLimit)) {
		return fmt.Errorf("frequency %d duty %d: %w", tp.FrequencyHz, tp.DutyPercent, ErrGPSTimepulse)
	}
	g.Timepulse = tp
	return nil
}

// SimSigfox records every radio operation.
type SimSigfox struct {
	Sent       []Uplink
	Downlink   []byte // answer to bidirectional uplinks, nil for none
	RSSIValue  int16
	CW         bool
	CWFreqHz   uint32
	TestModeRC uint8
}

// Send records ul and returns the configured downlink if requested.
func (s *SimSigfox) Send(ul Uplink) (*Downlink, error) {
	if s.CW {
		return nil, fmt.Errorf("send during continuous wave: %w", ErrRadioState)
	}
	s.Sent = append(s.Sent, ul)
	if !ul.Bidirectional {
		return nil, nil
	}
	if s.Downlink == nil {
		return nil, ErrRadioDownlink
	}
	return &Downlink{Payload: append([]byte(nil), s.Downlink...), RSSI: s.RSSIValue}, nil
}

// ContinuousWave starts or stops a continuous wave.
func (s *SimSigfox) ContinuousWave(enable bool, frequencyHz uint32, powerDBM int16) error {
	s.CW = enable
	s.CWFreqHz = frequencyHz
	return nil
}

// TestMode runs a test mode to completion.
func (s *SimSigfox) TestMode(rc uint8, mode uint8) error {
	if s.CW {
		return fmt.Errorf("test mode during continuous wave: %w", ErrRadioState)
	}
	s.TestModeRC = rc
	return nil
}

// RSSI returns the configured RSSI.
func (s *SimSigfox) RSSI(frequencyHz uint32) (int16, error) {
	return s.RSSIValue, nil
}

// SimSensor returns fixed ambient values.
type SimSensor struct {
	Temperature int32 // tenths of degree
	Humidity    uint8
	Fail        bool
}

// Read returns the configured values.
func (s *SimSensor) Read() (int32, uint8, error) {
	if s.Fail {
		return 0, 0, ErrSensorTimeout
	}
	return s.Temperature, s.Humidity, nil
}

// SimMeter returns fixed per-channel measurements.
type SimMeter struct {
	Channels []MeterData
}

// Measure returns the configured data of channel.
func (m *SimMeter) Measure(channel int) (MeterData, error) {
	if channel < 0 || channel >= len(m.Channels) {
		return MeterData{}, fmt.Errorf("channel %d: %w", channel, ErrMeterChannel)
	}
	return m.Channels[channel], nil
}

// SimSystem reports reset flags and counts software resets.
type SimSystem struct {
	Flags  uint8
	Resets int
}

// ResetFlags returns the flags of the last reset.
func (s *SimSystem) ResetFlags() uint8 {
	return s.Flags
}

// Reset records a software reset.
func (s *SimSystem) Reset() {
	s.Resets++
	s.Flags = ResetSoftware
}
