package search

import (
	"errors"
	"math"

	"github.com/HyphaGroup/parker/internal/square"
)

// MaxCeiling keeps x+y+z below 3·ceiling within int64 for the square test.
const MaxCeiling = math.MaxInt64 / 3

// stepsPerNext bounds each Step call made by Next.
const stepsPerNext = 1 << 16

var (
	ErrInvalidStart    = errors.New("start cursor exceeds ceiling")
	ErrCeilingTooLarge = errors.New("ceiling exceeds maximum")
)

// Enumerator walks every triple (n², y, z) with n² < ceiling, 0 ≤ y < n² and
// 0 ≤ z < n²-y in lexicographic order, yielding the admissible ones.
//
// Residues that can never be admissible are skipped in strides: x must be 1 mod
// 24 and y, z must be 0 mod 24. The yielded sequence is identical to a plain
// triple loop filtered by IsAdmissible.
//
// An Enumerator is not safe for concurrent use.
type Enumerator struct {
	ceiling uint64
	maxN    uint64 // largest n with n² < ceiling
	n, y, z uint64
	done    bool
}

// NewEnumerator returns an enumerator that resumes at start.
func NewEnumerator(ceiling uint64, start Cursor) (*Enumerator, error) {
	if ceiling > MaxCeiling {
		return nil, ErrCeilingTooLarge
	}
	if start.N > ceiling || start.Y > ceiling || start.Z > ceiling {
		return nil, ErrInvalidStart
	}
	e := &Enumerator{
		ceiling: ceiling,
		n:       start.N,
		y:       start.Y,
		z:       start.Z,
	}
	if ceiling == 0 {
		e.done = true
	} else {
		e.maxN = square.Isqrt(ceiling - 1)
		e.done = e.n > e.maxN
	}
	return e, nil
}

// Step inspects at most budget raw candidates. It returns as soon as it finds
// an admissible triple (found) or runs past the ceiling (done).
func (e *Enumerator) Step(budget int) (t Triple, found, done bool) {
	for i := 0; i < budget && !e.done; i++ {
		x := e.n * e.n
		if x%modulus != 1 || e.y >= x {
			e.advanceN()
			continue
		}
		if r := e.y % modulus; r != 0 {
			e.y += modulus - r
			e.z = 0
			continue
		}
		if e.z >= x-e.y {
			e.y++
			e.z = 0
			continue
		}
		if r := e.z % modulus; r != 0 {
			e.z += modulus - r
			continue
		}

		y, z := e.y, e.z
		e.z++
		if IsAdmissible(x, y, z) {
			return Triple{X: x, Y: y, Z: z}, true, false
		}
	}
	return Triple{}, false, e.done
}

// Next returns the next admissible triple, or false once the ceiling is reached.
func (e *Enumerator) Next() (Triple, bool) {
	for {
		t, found, done := e.Step(stepsPerNext)
		if found {
			return t, true
		}
		if done {
			return Triple{}, false
		}
	}
}

// Cursor returns the point the enumeration would resume from.
func (e *Enumerator) Cursor() Cursor {
	return Cursor{N: e.n, Y: e.y, Z: e.z}
}

// Done reports whether the ceiling has been reached.
func (e *Enumerator) Done() bool {
	return e.done
}

// Ceiling returns the exclusive upper bound on x.
func (e *Enumerator) Ceiling() uint64 {
	return e.ceiling
}

func (e *Enumerator) advanceN() {
	e.n++
	e.y = 0
	e.z = 0
	if e.n > e.maxN {
		e.done = true
	}
}
