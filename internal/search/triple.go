// Package search enumerates candidate triples (x, y, z) for a magic square of
// squares: x is a perfect square and the eight combinations of x, y and z are
// the other entries of the square.
package search

import (
	"fmt"

	"github.com/HyphaGroup/parker/internal/square"
)

// Triple is a candidate centre x = n² with offsets y and z.
type Triple struct {
	X uint64 `json:"x"`
	Y uint64 `json:"y"`
	Z uint64 `json:"z"`
}

// Next returns the cursor just after t, i.e. (n, y, z+1) where x = n².
// This is the At-marker recorded when t is the last delivered triple.
func (t Triple) Next() Cursor {
	return Cursor{N: square.Isqrt(t.X), Y: t.Y, Z: t.Z + 1}
}

// PassesSquareTest reports whether all eight combinations of t are squares.
func (t Triple) PassesSquareTest() bool {
	return square.PassesSquareTest(t.X, t.Y, t.Z)
}

func (t Triple) String() string {
	return fmt.Sprintf("(%d, %d, %d)", t.X, t.Y, t.Z)
}

// Cursor is a resumption point in the enumeration: x = N², next y to try is Y,
// next z to try is Z.
type Cursor struct {
	N uint64 `json:"n"`
	Y uint64 `json:"y"`
	Z uint64 `json:"z"`
}

// Less orders cursors lexicographically by (N, Y, Z).
func (c Cursor) Less(o Cursor) bool {
	if c.N != o.N {
		return c.N < o.N
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

func (c Cursor) String() string {
	return fmt.Sprintf("n=%d y=%d z=%d", c.N, c.Y, c.Z)
}
