package topology

/* direction.go contains the fixed table of the 26 neighbor directions. */

// NumDirections is the number of neighbors a process can have: 6 faces,
// 12 edges and 8 vertices.
const NumDirections = 26

// Direction is one of the 26 offsets in {-1, 0, 1}^3, excluding the zero
// vector.
type Direction struct {
	Index  int
	Offset [3]int
	// Kind is 1 for faces, 2 for edges and 3 for vertices: the number of
	// non-zero components of Offset.
	Kind int
}

// Directions is the canonical ordering of the 26 directions: the faces
// -x, +x, -y, +y, -z, +z, then the 12 edges, then the 8 vertices. Halo
// lists are merged in this order, so it must never change.
var Directions [NumDirections]Direction

var opposite [NumDirections]int

func init() {
	i := 0
	// Faces are listed by hand so that the axis order is explicit.
	faces := [6][3]int{
		{-1, 0, 0}, {+1, 0, 0},
		{0, -1, 0}, {0, +1, 0},
		{0, 0, -1}, {0, 0, +1},
	}
	for _, off := range faces {
		Directions[i] = Direction{i, off, 1}
		i++
	}

	for kind := 2; kind <= 3; kind++ {
		for dz := -1; dz <= 1; dz++ {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					off := [3]int{dx, dy, dz}
					if nonZero(off) != kind {
						continue
					}
					Directions[i] = Direction{i, off, kind}
					i++
				}
			}
		}
	}

	for i := range Directions {
		opposite[i] = lookup(negate(Directions[i].Offset))
	}
}

// Opposite returns the index of the direction pointing the other way. If a
// process sends in direction d, its neighbor receives from direction
// Opposite(d).
func (d Direction) Opposite() int { return opposite[d.Index] }

// Lookup returns the index of the direction with the given offset, or -1 for
// the zero vector or an offset outside {-1, 0, 1}^3.
func Lookup(off [3]int) int { return lookup(off) }

func lookup(off [3]int) int {
	for i := range Directions {
		if Directions[i].Offset == off {
			return i
		}
	}
	return -1
}

func negate(off [3]int) [3]int {
	return [3]int{-off[0], -off[1], -off[2]}
}

func nonZero(off [3]int) int {
	n := 0
	for d := 0; d < 3; d++ {
		if off[d] != 0 {
			n++
		}
	}
	return n
}
