package search

// modulus for the necessary condition: every odd square coprime to 6 is 1 mod 24.
const modulus = 24

// IsAdmissible reports whether (x, y, z) is worth handing to the square test.
//
// It requires positive, distinct offsets, y+z < x so that every difference is
// positive, and x together with its eight combinations all congruent to 1 mod 24.
// The condition is necessary, not sufficient.
func IsAdmissible(x, y, z uint64) bool {
	if x == 0 || y == 0 || z == 0 || y == z {
		return false
	}
	if y >= x || z >= x-y {
		return false
	}
	return x%modulus == 1 &&
		(x+y)%modulus == 1 &&
		(x-y-z)%modulus == 1 &&
		(x+z)%modulus == 1 &&
		(x-y+z)%modulus == 1 &&
		(x+y-z)%modulus == 1 &&
		(x-z)%modulus == 1 &&
		(x+y+z)%modulus == 1 &&
		(x-y)%modulus == 1
}
