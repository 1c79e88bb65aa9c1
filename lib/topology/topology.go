/*package topology splits a global bounding box into an equal grid of
sub-domains, one per process, and works out which process sits in each of
the 26 directions around a given process.*/
package topology

import (
	"errors"
	"fmt"

	"github.com/phil-mansfield/halox/lib/geom"
)

// None is the neighbor rank reported for directions which point out of the
// global box.
const None = -1

// ErrTopology is wrapped by every error caused by an impossible process grid.
var ErrTopology = errors.New("invalid process topology")

// Topology describes one process's place in the process grid. It is a plain
// value so that tests can build the topologies of many processes at once.
type Topology struct {
	Rank   int
	Coords [3]int
	Shape  [3]int
	// Global is the padded global box tiled by the sub-domains.
	Global geom.Rect
	// Local is this process's sub-domain.
	Local geom.Rect
	// Neighbors[d] is the rank in Directions[d], or None.
	Neighbors [NumDirections]int
}

// Build computes the Topology of the process at coords within a grid with
// the given shape which tiles the box global.
func Build(global geom.Rect, shape, coords [3]int) (*Topology, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	}
	if err := global.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTopology, err.Error())
	}
	for d := 0; d < 3; d++ {
		if coords[d] < 0 || coords[d] >= shape[d] {
			return nil, fmt.Errorf("%w: coordinates %d are outside the "+
				"process grid %d.", ErrTopology, coords, shape)
		}
	}

	t := &Topology{
		Rank: Rank(shape, coords), Coords: coords, Shape: shape,
		Global: global,
	}
	t.Local = cellRect(global, shape, coords)

	for i, dir := range Directions {
		nb := [3]int{}
		inside := true
		for d := 0; d < 3; d++ {
			nb[d] = coords[d] + dir.Offset[d]
			if nb[d] < 0 || nb[d] >= shape[d] {
				inside = false
			}
		}

		if inside {
			t.Neighbors[i] = Rank(shape, nb)
		} else {
			t.Neighbors[i] = None
		}
	}

	return t, nil
}

// ForRank is Build for the process with the given rank.
func ForRank(global geom.Rect, shape [3]int, rank int) (*Topology, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	}
	if n := NumProcs(shape); rank < 0 || rank >= n {
		return nil, fmt.Errorf("%w: rank %d is outside the range [0, %d) "+
			"of the process grid %d.", ErrTopology, rank, n, shape)
	}
	return Build(global, shape, Coords(shape, rank))
}

// Validate returns an error if a grid with the given shape cannot be run on
// nProcs processes.
func Validate(shape [3]int, nProcs int) error {
	if err := checkShape(shape); err != nil {
		return err
	}
	if n := NumProcs(shape); n != nProcs {
		return fmt.Errorf("%w: the process grid %d x %d x %d needs %d "+
			"processes, but %d were configured.", ErrTopology,
			shape[0], shape[1], shape[2], n, nProcs)
	}
	return nil
}

// NumProcs returns the number of processes in a grid.
func NumProcs(shape [3]int) int { return shape[0] * shape[1] * shape[2] }

// Rank converts grid coordinates to a rank. x varies fastest.
func Rank(shape, coords [3]int) int {
	return coords[0] + shape[0]*(coords[1]+shape[1]*coords[2])
}

// Coords converts a rank to grid coordinates. It is the inverse of Rank.
func Coords(shape [3]int, rank int) [3]int {
	return [3]int{
		rank % shape[0],
		(rank / shape[0]) % shape[1],
		rank / (shape[0] * shape[1]),
	}
}

// RectOf returns the sub-domain of any rank in t's grid.
func (t *Topology) RectOf(rank int) geom.Rect {
	return cellRect(t.Global, t.Shape, Coords(t.Shape, rank))
}

// Size returns the number of processes in t's grid.
func (t *Topology) Size() int { return NumProcs(t.Shape) }

// Tiles returns the sub-domains of every rank, indexed by rank.
func (t *Topology) Tiles() []geom.Rect {
	out := make([]geom.Rect, t.Size())
	for i := range out {
		out[i] = t.RectOf(i)
	}
	return out
}

// PaddedBox grows the physical box by layers interaction radii on every
// side so that particles sitting on the physical boundary are never lost.
func PaddedBox(box geom.Rect, layers int, radius float64) geom.Rect {
	return geom.Pad(box, float64(layers)*radius)
}

// cellRect returns the rectangle of the cell at coords. The upper edge of a
// cell is computed with the same expression as the lower edge of the next
// cell so that neighboring rectangles share faces exactly.
func cellRect(global geom.Rect, shape, coords [3]int) geom.Rect {
	r := geom.Rect{}
	for d := 0; d < 3; d++ {
		r.Min[d] = edge(global.Min[d], global.Max[d], shape[d], coords[d])
		r.Max[d] = edge(global.Min[d], global.Max[d], shape[d], coords[d]+1)
	}
	return r
}

func edge(lo, hi float64, n, i int) float64 {
	if i == n {
		return hi
	}
	return lo + (hi-lo)*float64(i)/float64(n)
}

func checkShape(shape [3]int) error {
	for d := 0; d < 3; d++ {
		if shape[d] < 1 {
			return fmt.Errorf("%w: the process grid %d must have at least "+
				"one process along each axis.", ErrTopology, shape)
		}
	}
	return nil
}
