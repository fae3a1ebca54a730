// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator seeded from FUZZ_SEED or the clock
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

func randomLine(rng *rand.Rand, max int) string {
	b := make([]byte, rng.Intn(max+1))
	for i := range b {
		b[i] = byte(0x20 + rng.Intn(0x5F))
	}
	return string(b)
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder and checks
// that no decoded line ever exceeds the buffer capacity
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		mode := Mode(rng.Intn(2))
		d := NewDecoder(mode)
		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)

		for _, b := range data {
			f, _ := d.DecodeByte(b)
			if f != nil && len(f.Line) > LineCapacity {
				t.Fatalf("round %d: line of %d bytes", i, len(f.Line))
			}
		}
	}
}

// TestFuzzDecoder_RandomFrames encodes random frames with random noise in
// between and checks every frame is decoded intact
func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder(ModeAddressed)
		count := rng.Intn(5) + 1

		var data []byte
		var lines []string
		var sources []uint8
		for j := 0; j < count; j++ {
			// Noise without the destination flag is ignored between frames
			for k := rng.Intn(4); k > 0; k-- {
				data = append(data, byte(rng.Intn(0x80)))
			}
			line := randomLine(rng, LineCapacity)
			src := uint8(rng.Intn(0x80))
			frame, err := EncodeFrame(ModeAddressed, uint8(rng.Intn(0x80)), src, line)
			if err != nil {
				t.Fatalf("round %d: EncodeFrame failed: %v", i, err)
			}
			data = append(data, frame...)
			lines = append(lines, line)
			sources = append(sources, src)
		}

		frames, errs := d.Decode(data)
		if len(errs) != 0 {
			t.Fatalf("round %d: errors %v", i, errs)
		}
		if len(frames) != count {
			t.Fatalf("round %d: got %d frames, want %d", i, len(frames), count)
		}
		for j, f := range frames {
			if f.Line != lines[j] || f.Source != sources[j] {
				t.Fatalf("round %d frame %d: got %q from %02X, want %q from %02X",
					i, j, f.Line, f.Source, lines[j], sources[j])
			}
		}
	}
}
