// Package random provides the two shuffle modes used by the test flow:
// a seeded, reproducible shuffle for content that must survive re-renders
// unchanged, and an unpredictable shuffle for answer-option and remediation
// ordering, where positional patterns must not be learnable.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mathrand "math/rand"
)

// lcg is a 32-bit linear congruential generator (Numerical Recipes
// constants). It is deliberately simple: the only requirement is that the
// same seed always yields the same sequence.
type lcg struct {
	state uint32
}

func (g *lcg) next() uint32 {
	g.state = g.state*1664525 + 1013904223
	return g.state
}

// intn returns a value in [0, n) derived from the generator. n must be > 0.
func (g *lcg) intn(n int) int {
	return int(g.next() % uint32(n))
}

// Seeded shuffles a copy of items in place using a Fisher-Yates permutation
// driven by a deterministic generator. The same seed and input always
// produce the same order.
func Seeded[T any](seed uint32, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	g := &lcg{state: seed}
	for i := len(out) - 1; i >= 1; i-- {
		j := g.intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Unpredictable shuffles a copy of items using a cryptographically strong
// source with rejection sampling to avoid modulo bias. If the secure source
// is unavailable it falls back to math/rand rather than failing.
func Unpredictable[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i >= 1; i-- {
		j := secureIntn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// secureIntn returns a uniform value in [0, n) from crypto/rand.
func secureIntn(n int) int {
	if n <= 1 {
		return 0
	}
	// Rejection sampling: discard the low 2^32 mod n draws so the
	// remaining range is an exact multiple of n and every residue is
	// equally likely.
	min := uint32((1 << 32) % uint64(n))
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			slog.Warn("secure random source unavailable, falling back to math/rand", "error", err)
			return mathrand.Intn(n)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if v >= min {
			return int(v % uint32(n))
		}
	}
}
