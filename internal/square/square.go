// Package square decides whether integers are perfect squares and applies that
// test to the eight combinations of a search triple.
package square

import (
	"math"
	"math/bits"
)

// goodMask has bit 63-r set for every quadratic residue r modulo 64.
// Shifting left by n&63 moves the bit for n's residue into the sign position.
const goodMask uint64 = 0xC840C04048404040

// residues24 marks the quadratic residues modulo 24.
var residues24 = [24]bool{0: true, 1: true, 4: true, 9: true, 12: true, 16: true}

// IsSquare reports whether n is a perfect square. Negative numbers never are.
//
// Cheap residue checks reject most non-squares before the integer square root is
// taken, since the search calls this up to eight times per candidate.
func IsSquare(n int64) bool {
	if n < 0 {
		return false
	}
	if n == 0 {
		return true
	}
	u := uint64(n)
	if !residues24[u%24] {
		return false
	}
	if int64(goodMask<<(u&63)) >= 0 {
		return false
	}

	// A square has an even 2-adic valuation and an odd part that is 1 mod 8.
	zeros := bits.TrailingZeros64(u)
	if zeros&1 != 0 {
		return false
	}
	odd := u >> uint(zeros)
	if odd&7 != 1 {
		return false
	}

	r := Isqrt(odd)
	return r*r == odd
}

// maxRoot is the largest value whose square fits in a uint64.
const maxRoot = 1<<32 - 1

// Isqrt returns floor(sqrt(n)).
func Isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	r := uint64(math.Sqrt(float64(n)))
	if r > maxRoot {
		r = maxRoot
	}
	// float64 rounding can be off by one either way above 2^53
	for r*r > n {
		r--
	}
	for r < maxRoot && (r+1)*(r+1) <= n {
		r++
	}
	return r
}
