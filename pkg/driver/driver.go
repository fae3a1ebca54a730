// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package driver declares the narrow synchronous interfaces through which a
// node personality reaches its hardware: outputs, analog and digital inputs,
// power domains, GPS, radio, sensors and non-volatile memory.
//
// Every blocking call is bounded: it either completes or fails with a
// timeout error, it never hangs.
package driver

import (
	"time"

	"github.com/Thermoquad/dinfox/pkg/status"
)

// Channel names an analog or digital input.
type Channel string

// Analog channels
const (
	ChannelVMCU Channel = "vmcu" // mV
	ChannelTMCU Channel = "tmcu" // tenths of degree

	ChannelVCOM Channel = "vcom"
	ChannelVIN  Channel = "vin"
	ChannelVOUT Channel = "vout"
	ChannelIOUT Channel = "iout" // uA
	ChannelVSRC Channel = "vsrc"
	ChannelISRC Channel = "isrc"
	ChannelVSTR Channel = "vstr"
	ChannelISTR Channel = "istr"
	ChannelVBKP Channel = "vbkp"
	ChannelVGPS Channel = "vgps"
	ChannelVANT Channel = "vant"
	ChannelVRF  Channel = "vrf"
	ChannelAIN0 Channel = "ain0"
	ChannelAIN1 Channel = "ain1"
	ChannelAIN2 Channel = "ain2"
	ChannelAIN3 Channel = "ain3"
)

// Digital channels
const (
	ChannelCHST0 Channel = "chst0"
	ChannelCHST1 Channel = "chst1"
	ChannelDIO0  Channel = "dio0"
	ChannelDIO1  Channel = "dio1"
	ChannelDIO2  Channel = "dio2"
	ChannelDIO3  Channel = "dio3"
)

// AnalogChannels lists every analog channel.
var AnalogChannels = []Channel{
	ChannelVMCU, ChannelTMCU, ChannelVCOM, ChannelVIN, ChannelVOUT, ChannelIOUT,
	ChannelVSRC, ChannelISRC, ChannelVSTR, ChannelISTR, ChannelVBKP, ChannelVGPS,
	ChannelVANT, ChannelVRF, ChannelAIN0, ChannelAIN1, ChannelAIN2, ChannelAIN3,
}

// DigitalChannels lists every digital channel.
var DigitalChannels = []Channel{
	ChannelCHST0, ChannelCHST1, ChannelDIO0, ChannelDIO1, ChannelDIO2, ChannelDIO3,
}

// Load drives one switched output.
type Load interface {
	SetOutputState(on bool) error
	OutputState() bool
}

// Analog converts one analog channel. Voltages are returned in mV, currents
// in uA and temperatures in tenths of degree.
type Analog interface {
	Convert(ch Channel) (int32, error)
}

// Digital reads one digital input.
type Digital interface {
	Read(ch Channel) (bool, error)
}

// Domain is a power domain of the board.
type Domain uint8

// Power domains
const (
	DomainAnalog Domain = iota
	DomainSensors
	DomainGPS
	DomainRadio
	domainCount
)

// Requester identifies who asked for a power domain.
type Requester uint8

// Power requesters
const (
	RequesterMeasure Requester = iota
	RequesterGPS
	RequesterRadio
	RequesterCommand
)

// Power enables and disables power domains on behalf of requesters.
type Power interface {
	Enable(r Requester, d Domain) error
	Disable(r Requester, d Domain) error
}

// GPSTime is a UTC date and time from a GPS fix.
type GPSTime struct {
	Year   uint16
	Month  uint8
	Date   uint8
	Hours  uint8
	Minute uint8
	Second uint8
}

// Position is a GPS position in degrees, minutes and thousandths of second.
type Position struct {
	LatDegrees    uint8
	LatMinutes    uint8
	LatSeconds    uint32 // thousandths
	North         bool
	LongDegrees   uint8
	LongMinutes   uint8
	LongSeconds   uint32 // thousandths
	East          bool
	AltitudeMeter uint32
}

// Timepulse configures the GPS timepulse output.
type Timepulse struct {
	Enabled     bool
	FrequencyHz uint32
	DutyPercent uint8
}

// GPS acquires time and position fixes within a timeout. The returned
// duration is the time the fix took.
type GPS interface {
	Time(timeout time.Duration) (GPSTime, time.Duration, error)
	Position(timeout time.Duration) (Position, time.Duration, error)
	SetTimepulse(tp Timepulse) error
}

// Uplink is one Sigfox uplink request.
type Uplink struct {
	RC            uint8 // radio configuration zone, 1..7
	PowerDBM      int16
	Payload       []byte
	Bidirectional bool
	Control       bool // out-of-band keep-alive message
}

// Downlink is the answer to a bidirectional uplink.
type Downlink struct {
	Payload []byte
	RSSI    int16
}

// Sigfox is the radio stack.
type Sigfox interface {
	Send(ul Uplink) (*Downlink, error)
	ContinuousWave(enable bool, frequencyHz uint32, powerDBM int16) error
	TestMode(rc uint8, mode uint8) error
	RSSI(frequencyHz uint32) (int16, error)
}

// Sensor reads ambient temperature (tenths of degree) and humidity (percent).
type Sensor interface {
	Read() (int32, uint8, error)
}

// MeterData is one mains power measurement of one channel.
type MeterData struct {
	VoltageMV   int32
	CurrentUA   int32
	PowerFactor uint8 // hundredths
	FrequencyMH uint32
	Detected    bool
}

// Meter measures mains voltage and channel currents.
type Meter interface {
	Measure(channel int) (MeterData, error)
}

// NVM is the flat non-volatile byte array.
type NVM interface {
	ReadByteAt(offset int) (byte, error)
	WriteByteAt(offset int, value byte) error
	Size() int
}

// Reset flags reported by System
const (
	ResetPowerOn  uint8 = 1 << 0
	ResetPin      uint8 = 1 << 1
	ResetSoftware uint8 = 1 << 2
	ResetWatchdog uint8 = 1 << 3
)

// System exposes the MCU reset controller.
type System interface {
	ResetFlags() uint8
	Reset()
}

// Errors
var (
	ErrAnalogChannel  = status.New(status.BaseAnalog+0x01, "unknown analog channel")
	ErrAnalogTimeout  = status.New(status.BaseAnalog+0x02, "analog conversion timeout")
	ErrDigitalChannel = status.New(status.BaseDigital+0x01, "unknown digital channel")
	ErrLoadFault      = status.New(status.BaseLoad+0x01, "load output fault")
	ErrGPSTimeout     = status.New(status.BaseGPS+0x01, "GPS fix timeout")
	ErrGPSTimepulse   = status.New(status.BaseGPS+0x02, "GPS timepulse configuration")
	ErrRadioState     = status.New(status.BaseRadio+0x01, "radio busy")
	ErrRadioTimeout   = status.New(status.BaseRadio+0x02, "radio state transition timeout")
	ErrRadioDownlink  = status.New(status.BaseRadio+0x03, "no downlink received")
	ErrNVMAddress     = status.New(status.BaseNVM+0x01, "NVM address out of range")
	ErrNVMWrite       = status.New(status.BaseNVM+0x02, "NVM write failure")
	ErrPowerDomain    = status.New(status.BasePower+0x01, "unknown power domain")
	ErrSensorTimeout  = status.New(status.BaseSensor+0x01, "sensor transaction timeout")
	ErrMeterChannel   = status.New(status.BaseMeter+0x01, "unknown meter channel")
)
