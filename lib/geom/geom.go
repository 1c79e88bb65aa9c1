/*package geom contains the axis-aligned rectangle type used to describe
sub-domains and the single membership test used to decide which rectangle a
particle belongs to.*/
package geom

import (
	"fmt"
)

// Epsilon is the tolerance used by Contains. Every classification in halox
// (scatter, halo slabs, migration regions, pruning) goes through Contains, so
// every boundary decision uses this same value.
const Epsilon = 1e-10

// Vec is a 3-vector.
type Vec [3]float64

// Rect is an axis-aligned box. Its lower faces are included and its upper
// faces are excluded, up to Epsilon.
type Rect struct {
	Min, Max Vec
}

// Contains returns true if x is inside r and false otherwise. Along each
// axis this is x - min >= -Epsilon and x - max < -Epsilon, so a point lying
// on a face shared by two rectangles belongs to the upper one only.
func Contains(r Rect, x Vec) bool {
	for d := 0; d < 3; d++ {
		if !(x[d]-r.Min[d] >= -Epsilon && x[d]-r.Max[d] < -Epsilon) {
			return false
		}
	}
	return true
}

// Width returns the side lengths of r.
func (r Rect) Width() Vec {
	return Vec{r.Max[0] - r.Min[0], r.Max[1] - r.Min[1], r.Max[2] - r.Min[2]}
}

// Volume returns the volume of r. Inverted rectangles have zero volume.
func (r Rect) Volume() float64 {
	v := 1.0
	for d := 0; d < 3; d++ {
		w := r.Max[d] - r.Min[d]
		if w <= 0 {
			return 0
		}
		v *= w
	}
	return v
}

// Valid returns an error if r has a non-positive width along any axis.
func (r Rect) Valid() error {
	for d := 0; d < 3; d++ {
		if !(r.Max[d] > r.Min[d]) {
			return fmt.Errorf("Rectangle %v has width %g along axis %d, "+
				"but widths must be positive.", r, r.Max[d]-r.Min[d], d)
		}
	}
	return nil
}

// Intersection returns the overlap of r1 and r2. If they do not overlap,
// the result has zero Volume().
func Intersection(r1, r2 Rect) Rect {
	out := Rect{}
	for d := 0; d < 3; d++ {
		out.Min[d] = max64(r1.Min[d], r2.Min[d])
		out.Max[d] = min64(r1.Max[d], r2.Max[d])
	}
	return out
}

// Pad grows r by pad on every side.
func Pad(r Rect, pad float64) Rect {
	for d := 0; d < 3; d++ {
		r.Min[d] -= pad
		r.Max[d] += pad
	}
	return r
}

// Slab returns the part of r which lies within thickness of the side (or
// edge, or corner) picked out by offset. offset[d] = -1 selects the lower
// face along d, +1 the upper face and 0 the full extent of r. The thickness
// is clamped to the width of r.
func Slab(r Rect, offset [3]int, thickness float64) Rect {
	out := r
	for d := 0; d < 3; d++ {
		t := min64(thickness, r.Max[d]-r.Min[d])
		switch offset[d] {
		case -1:
			out.Max[d] = r.Min[d] + t
		case +1:
			out.Min[d] = r.Max[d] - t
		}
	}
	return out
}

// Extend grows r outward by dist along every axis where offset is non-zero,
// in the direction of offset.
func Extend(r Rect, offset [3]int, dist Vec) Rect {
	for d := 0; d < 3; d++ {
		switch offset[d] {
		case -1:
			r.Min[d] -= dist[d]
		case +1:
			r.Max[d] += dist[d]
		}
	}
	return r
}

// Add returns x + y.
func Add(x, y Vec) Vec {
	return Vec{x[0] + y[0], x[1] + y[1], x[2] + y[2]}
}

// Scale returns a*x.
func Scale(a float64, x Vec) Vec {
	return Vec{a * x[0], a * x[1], a * x[2]}
}

func min64(x, y float64) float64 {
	if x < y {
		return x
	}
	return y
}

func max64(x, y float64) float64 {
	if x > y {
		return x
	}
	return y
}
