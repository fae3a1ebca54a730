// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package codec

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// ============================================================
// Voltage
// ============================================================

func TestVoltage_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		mv    int32
		field uint32
		want  int32
	}{
		{"zero", 0, 0x0000, 0},
		{"millivolt scale", 3300, 3300, 3300},
		{"largest millivolt", 32767, 0x7FFF, 32767},
		{"first decivolt", 32768, 0x8000 | 328, 32800},
		{"decivolt scale", 48000, 0x8000 | 480, 48000},
		{"negative clamps to zero", -12, 0x0000, 0},
		{"saturates below sentinel", 10000000, 0xFFFE, 0x7FFE * 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := EncodeVoltage(tt.mv)
			if field != tt.field {
				t.Errorf("EncodeVoltage(%d) = 0x%04X, want 0x%04X", tt.mv, field, tt.field)
			}
			got, ok := DecodeVoltage(field)
			if !ok {
				t.Fatalf("DecodeVoltage(0x%04X) reported unavailable", field)
			}
			if got != tt.want {
				t.Errorf("DecodeVoltage(0x%04X) = %d, want %d", field, got, tt.want)
			}
		})
	}
}

func TestVoltage_Sentinel(t *testing.T) {
	if _, ok := DecodeVoltage(VoltageError); ok {
		t.Error("DecodeVoltage(sentinel) should report unavailable")
	}
}

// ============================================================
// Current
// ============================================================

func TestCurrent_Units(t *testing.T) {
	tests := []struct {
		name string
		ua   int32
		unit uint32
	}{
		{"microamps", 1500, 0},
		{"tens of microamps", 20000, 1},
		{"hundreds of microamps", 1000000, 2},
		{"milliamps", 5000000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := EncodeCurrent(tt.ua)
			if unit := field >> 14; unit != tt.unit {
				t.Errorf("EncodeCurrent(%d) unit = %d, want %d", tt.ua, unit, tt.unit)
			}
			got, ok := DecodeCurrent(field)
			if !ok || got != tt.ua {
				t.Errorf("DecodeCurrent(0x%04X) = %d, %v; want %d, true", field, got, ok, tt.ua)
			}
		})
	}
}

func TestCurrent_Saturates(t *testing.T) {
	field := EncodeCurrent(2000000000)
	if field == CurrentError {
		t.Fatal("saturated current must not collide with the sentinel")
	}
	got, ok := DecodeCurrent(field)
	if !ok || got != 16382*1000 {
		t.Errorf("DecodeCurrent(0x%04X) = %d, %v; want %d, true", field, got, ok, 16382*1000)
	}
}

// ============================================================
// Temperature
// ============================================================

func TestTemperature_Sign(t *testing.T) {
	for _, tenths := range []int32{0, 1, -1, 253, -400, 1250, -3276} {
		got, ok := DecodeTemperature(EncodeTemperature(tenths))
		if !ok || got != tenths {
			t.Errorf("temperature %d round trip = %d, %v", tenths, got, ok)
		}
	}
	if EncodeTemperature(-100000) == TemperatureError {
		t.Error("saturated negative temperature must not collide with the sentinel")
	}
	if _, ok := DecodeTemperature(TemperatureError); ok {
		t.Error("DecodeTemperature(sentinel) should report unavailable")
	}
}

// ============================================================
// Time
// ============================================================

func TestTime_Units(t *testing.T) {
	tests := []struct {
		seconds uint32
		want    uint32
	}{
		{0, 0},
		{63, 63},
		{64, 120},
		{3600, 3600},
		{7200, 7200},
		{86400 * 2, 86400 * 2},
	}

	for _, tt := range tests {
		got, ok := DecodeTime(EncodeTime(tt.seconds))
		if !ok || got != tt.want {
			t.Errorf("time %d s round trip = %d, %v; want %d", tt.seconds, got, ok, tt.want)
		}
	}

	if EncodeTime(0xFFFFFFFF) == TimeError {
		t.Error("saturated time must not collide with the sentinel")
	}
}

// ============================================================
// RF power and humidity
// ============================================================

func TestRFPower(t *testing.T) {
	for _, dbm := range []int16{-174, -120, 0, 14, 22} {
		got, ok := DecodeRFPower(EncodeRFPower(dbm))
		if !ok || got != dbm {
			t.Errorf("RF power %d dBm round trip = %d, %v", dbm, got, ok)
		}
	}
	if EncodeRFPower(200) == RFPowerError {
		t.Error("saturated RF power must not collide with the sentinel")
	}
	if EncodeRFPower(-300) != 0 {
		t.Error("RF power below range should saturate at 0")
	}
	if _, ok := DecodeRFPower(RFPowerError); ok {
		t.Error("DecodeRFPower(sentinel) should report unavailable")
	}
}

func TestHumidity(t *testing.T) {
	if EncodeHumidity(150) != 100 {
		t.Error("humidity above 100% should saturate")
	}
	if _, ok := DecodeHumidity(HumidityError); ok {
		t.Error("DecodeHumidity(sentinel) should report unavailable")
	}
}

// ============================================================
// Field helpers
// ============================================================

func TestFieldHelpers(t *testing.T) {
	reg := uint32(0x12345678)
	if got := Get(reg, 0x0000FF00); got != 0x56 {
		t.Errorf("Get = 0x%X, want 0x56", got)
	}
	if got := Set(reg, 0x0000FF00, 0xAB); got != 0x1234AB78 {
		t.Errorf("Set = 0x%08X, want 0x1234AB78", got)
	}
	if got := Put(0x0000000C, 0b10); got != 0x8 {
		t.Errorf("Put = 0x%X, want 0x8", got)
	}
	if got := Set(reg, 0x0000000C, 0xFF); got&^0xC != reg&^0xC {
		t.Error("Set must not touch bits outside the mask")
	}
	if Shift(0) != 0 {
		t.Error("Shift(0) should be 0")
	}
}

// ============================================================
// Randomized properties
// ============================================================

func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func TestFuzz_VoltageQuantization(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		mv := rng.Int31n(0x7FFE * 100)
		got, ok := DecodeVoltage(EncodeVoltage(mv))
		if !ok {
			t.Fatalf("voltage %d decoded as unavailable", mv)
		}
		step := int32(1)
		if mv > 0x7FFF {
			step = 100
		}
		if diff := got - mv; diff < 0 || diff >= step {
			t.Fatalf("voltage %d decoded as %d (step %d)", mv, got, step)
		}
	}
}

func TestFuzz_CurrentMonotonic(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		a := rng.Int31n(16000000)
		b := a + rng.Int31n(1000)
		da, _ := DecodeCurrent(EncodeCurrent(a))
		db, _ := DecodeCurrent(EncodeCurrent(b))
		if db < da {
			t.Fatalf("current encoding not monotonic: %d -> %d, %d -> %d", a, da, b, db)
		}
	}
}
