package sim

import (
	"github.com/phil-mansfield/halox/lib/exchange"
	"github.com/phil-mansfield/halox/lib/particles"
	"github.com/phil-mansfield/halox/lib/topology"
)

// Drift moves every particle in ps along its velocity for dt and spins it
// by its angular velocity. Particles which cross a wall boundary of the
// physical box are reflected back in with their normal velocity scaled by
// the boundary's Value. Open boundaries do nothing: those particles are
// pruned once they leave the padded box. Secondary velocities follow the
// new rigid-body motion.
func Drift(ps []*particles.Primary, dt float64, c *exchange.Constants) {
	for _, p := range ps {
		for d := 0; d < 3; d++ {
			p.X[d] += p.V[d] * dt
		}
		p.Q = Spin(p.Q, p.W, dt)
		reflect(p, c)
		SetSecondaryVelocities(p)
	}
}

func reflect(p *particles.Primary, c *exchange.Constants) {
	if c == nil {
		return
	}

	for _, b := range c.Boundaries {
		if b.Kind != "wall" {
			continue
		}
		dir := exchange.FaceDirection(b.Face)
		if dir < 0 {
			continue
		}
		off := topology.Directions[dir].Offset

		for d := 0; d < 3; d++ {
			switch {
			case off[d] < 0 && p.X[d] < c.Box.Min[d]:
				p.X[d] = 2*c.Box.Min[d] - p.X[d]
				p.V[d] = -p.V[d] * b.Value
			case off[d] > 0 && p.X[d] > c.Box.Max[d]:
				p.X[d] = 2*c.Box.Max[d] - p.X[d]
				p.V[d] = -p.V[d] * b.Value
			}
		}
	}
}
