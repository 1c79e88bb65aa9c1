/*package eq is a simple package for telling whether two arrays are equal to
one another.*/
package eq

import (
	"math"

	"github.com/phil-mansfield/halox/lib/geom"
)

// Strings returns true if two []string arrays are the same and false otherwise.
func Strings(x, y []string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Ints returns true if two []int arrays are the same and false otherwise.
func Ints(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Uint64s returns true if two []uint64 arrays are the same and false otherwise.
func Uint64s(x, y []uint64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Float64sEps returns true if two []float64 arrays are within eps of one
// another at every index and false otherwise.
func Float64sEps(x, y []float64, eps float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if math.Abs(x[i]-y[i]) > eps {
			return false
		}
	}
	return true
}

// VecEps returns true if two vectors are within eps of one another along
// every axis.
func VecEps(x, y geom.Vec, eps float64) bool {
	for d := 0; d < 3; d++ {
		if math.Abs(x[d]-y[d]) > eps {
			return false
		}
	}
	return true
}

// VecsEps returns true if two []geom.Vec arrays are within eps of one another
// at every index and false otherwise.
func VecsEps(x, y []geom.Vec, eps float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !VecEps(x[i], y[i], eps) {
			return false
		}
	}
	return true
}
