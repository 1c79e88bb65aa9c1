/*package sim contains the stand-in physics which drives the exchange
protocols: initial conditions, a potential kernel evaluated over the
merged working set, a drift integrator, and the step loop.*/
package sim

import (
	"math"

	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
)

// LatticeParams describes the initial conditions.
type LatticeParams struct {
	// Box is the physical box the lattice fills.
	Box geom.Rect
	// N is the number of primaries along each side.
	N int
	// Secondaries is the number of secondaries per primary and
	// SecondaryRadius is their distance from the primary's center.
	Secondaries     int
	SecondaryRadius float64
	// Radius and Mass are the primary radius and mass.
	Radius, Mass float64
	// Density is the initial density of every secondary.
	Density float64
	// Speed bounds each velocity component.
	Speed float64
	Seed  uint64
}

// Lattice creates N^3 primaries at the centers of an even lattice in the
// box with random velocities and spins. Only the coordinator calls it.
func Lattice(lp LatticeParams) []*particles.Primary {
	gen := NewRNG(lp.Seed)
	offsets := FibonacciSphere(lp.Secondaries, lp.SecondaryRadius)
	w := lp.Box.Width()

	ps := make([]*particles.Primary, 0, lp.N*lp.N*lp.N)
	for k := 0; k < lp.N; k++ {
		for j := 0; j < lp.N; j++ {
			for i := 0; i < lp.N; i++ {
				idx := [3]int{i, j, k}
				x := geom.Vec{}
				for d := 0; d < 3; d++ {
					x[d] = lp.Box.Min[d] +
						w[d]*(float64(idx[d])+0.5)/float64(lp.N)
				}
				v := geom.Vec(gen.Vec(lp.Speed))

				secs := make([]particles.Secondary, len(offsets))
				for s := range secs {
					secs[s] = particles.Secondary{
						Offset:  offsets[s],
						Mass:    lp.Mass / float64(len(offsets)),
						Density: lp.Density,
					}
				}

				id := uint64(i + lp.N*(j+lp.N*k))
				p := particles.NewPrimary(id, x, v, lp.Radius, lp.Mass, secs)
				if lp.Radius > 0 {
					p.W = geom.Vec(gen.Vec(lp.Speed / lp.Radius))
				}
				SetSecondaryVelocities(p)
				ps = append(ps, p)
			}
		}
	}

	return ps
}

// FibonacciSphere returns n nearly evenly spaced points on a sphere of
// radius r.
func FibonacciSphere(n int, r float64) []geom.Vec {
	golden := math.Pi * (3 - math.Sqrt(5))
	out := make([]geom.Vec, n)
	for i := range out {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		ring := math.Sqrt(1 - y*y)
		phi := golden * float64(i)
		out[i] = geom.Vec{r * ring * math.Cos(phi), r * y, r * ring * math.Sin(phi)}
	}
	return out
}
