// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package codec converts engineering quantities to and from the compact
// bit-packed fields stored in node registers.
//
// Every quantity reserves its all-ones pattern as the error sentinel. Encoders
// saturate instead of overflowing and always pick the finest unit that can
// hold the value. Decoders report ok == false for the sentinel.
package codec

func ceilDiv(value, scale int64) int64 {
	return (value + scale - 1) / scale
}

// Field widths and sentinels
const (
	VoltageError     uint32 = 0xFFFF
	CurrentError     uint32 = 0xFFFF
	TemperatureError uint32 = 0xFFFF
	TimeError        uint32 = 0xFF
	RFPowerError     uint32 = 0xFF
	HumidityError    uint32 = 0xFF
	ByteError        uint32 = 0xFF
)

// Voltage: value[14:0] unit[15]
const (
	voltageValueBits = 15
	voltageValueMask = (1 << voltageValueBits) - 1
	voltageUnitMV    = 0
	voltageUnitDV    = 1
)

// EncodeVoltage packs a voltage given in millivolts.
func EncodeVoltage(mv int32) uint32 {
	if mv < 0 {
		mv = 0
	}
	if mv <= voltageValueMask {
		return uint32(mv) | voltageUnitMV<<voltageValueBits
	}
	// Coarser units round up so that encoding stays monotonic across the
	// unit boundary. All ones is reserved for the sentinel.
	dv := ceilDiv(int64(mv), 100)
	if dv > voltageValueMask-1 {
		dv = voltageValueMask - 1
	}
	return uint32(dv) | voltageUnitDV<<voltageValueBits
}

// DecodeVoltage unpacks a voltage field into millivolts.
func DecodeVoltage(field uint32) (int32, bool) {
	field &= 0xFFFF
	if field == VoltageError {
		return 0, false
	}
	value := int32(field & voltageValueMask)
	if (field >> voltageValueBits) == voltageUnitDV {
		return value * 100, true
	}
	return value, true
}

// Current: value[13:0] unit[15:14]
const (
	currentValueBits = 14
	currentValueMask = (1 << currentValueBits) - 1
)

var currentUnitUA = [4]int64{1, 10, 100, 1000}

// EncodeCurrent packs a current given in microamps.
func EncodeCurrent(ua int32) uint32 {
	if ua < 0 {
		ua = 0
	}
	for unit, scale := range currentUnitUA {
		limit := int64(currentValueMask)
		if unit == len(currentUnitUA)-1 {
			limit--
		}
		value := ceilDiv(int64(ua), scale)
		if value <= limit {
			return uint32(value) | uint32(unit)<<currentValueBits
		}
	}
	return uint32(currentValueMask-1) | uint32(len(currentUnitUA)-1)<<currentValueBits
}

// DecodeCurrent unpacks a current field into microamps.
func DecodeCurrent(field uint32) (int32, bool) {
	field &= 0xFFFF
	if field == CurrentError {
		return 0, false
	}
	unit := field >> currentValueBits
	return int32(int64(field&currentValueMask) * currentUnitUA[unit]), true
}

// Temperature: magnitude[14:0] in tenths of degree, sign[15]
const (
	temperatureValueBits = 15
	temperatureValueMask = (1 << temperatureValueBits) - 1
)

// EncodeTemperature packs a temperature given in tenths of degree Celsius.
func EncodeTemperature(tenths int32) uint32 {
	var sign uint32
	magnitude := int64(tenths)
	if magnitude < 0 {
		sign = 1
		magnitude = -magnitude
	}
	limit := int64(temperatureValueMask)
	if sign == 1 {
		limit--
	}
	if magnitude > limit {
		magnitude = limit
	}
	return uint32(magnitude) | sign<<temperatureValueBits
}

// DecodeTemperature unpacks a temperature field into tenths of degree.
func DecodeTemperature(field uint32) (int32, bool) {
	field &= 0xFFFF
	if field == TemperatureError {
		return 0, false
	}
	value := int32(field & temperatureValueMask)
	if field>>temperatureValueBits != 0 {
		value = -value
	}
	return value, true
}

// Time: value[5:0] unit[7:6]
const (
	timeValueBits = 6
	timeValueMask = (1 << timeValueBits) - 1
)

var timeUnitSeconds = [4]uint32{1, 60, 3600, 86400}

// EncodeTime packs a duration given in seconds.
func EncodeTime(seconds uint32) uint32 {
	for unit, scale := range timeUnitSeconds {
		limit := uint32(timeValueMask)
		if unit == len(timeUnitSeconds)-1 {
			limit--
		}
		value := ceilDiv(int64(seconds), int64(scale))
		if value <= int64(limit) {
			return uint32(value) | uint32(unit)<<timeValueBits
		}
	}
	return uint32(timeValueMask-1) | uint32(len(timeUnitSeconds)-1)<<timeValueBits
}

// DecodeTime unpacks a time field into seconds.
func DecodeTime(field uint32) (uint32, bool) {
	field &= 0xFF
	if field == TimeError {
		return 0, false
	}
	return (field & timeValueMask) * timeUnitSeconds[field>>timeValueBits], true
}

// RF power: dBm + 174
const rfPowerOffset = 174

// EncodeRFPower packs an RF power given in dBm.
func EncodeRFPower(dbm int16) uint32 {
	value := int32(dbm) + rfPowerOffset
	if value < 0 {
		value = 0
	}
	if value > int32(RFPowerError)-1 {
		value = int32(RFPowerError) - 1
	}
	return uint32(value)
}

// DecodeRFPower unpacks an RF power field into dBm.
func DecodeRFPower(field uint32) (int16, bool) {
	field &= 0xFF
	if field == RFPowerError {
		return 0, false
	}
	return int16(int32(field) - rfPowerOffset), true
}

// EncodeHumidity packs a relative humidity in percent.
func EncodeHumidity(percent uint8) uint32 {
	if percent > 100 {
		percent = 100
	}
	return uint32(percent)
}

// DecodeHumidity unpacks a relative humidity field.
func DecodeHumidity(field uint32) (uint8, bool) {
	field &= 0xFF
	if field == HumidityError {
		return 0, false
	}
	return uint8(field), true
}
