package square

// Combinations returns the eight values that must all be squares for (x, y, z)
// to be the centre and offsets of a magic square of squares, in the order
// x+y, x-y-z, x+z, x-y+z, x+y-z, x-z, x+y+z, x-y.
//
// Callers keep 3*x within int64; the search ceiling is validated for that.
func Combinations(x, y, z uint64) [8]int64 {
	sx, sy, sz := int64(x), int64(y), int64(z)
	return [8]int64{
		sx + sy,
		sx - sy - sz,
		sx + sz,
		sx - sy + sz,
		sx + sy - sz,
		sx - sz,
		sx + sy + sz,
		sx - sy,
	}
}

// PassesSquareTest reports whether all eight combinations of (x, y, z) are
// perfect squares. It is pure and safe for concurrent use.
func PassesSquareTest(x, y, z uint64) bool {
	for _, v := range Combinations(x, y, z) {
		if !IsSquare(v) {
			return false
		}
	}
	return true
}
