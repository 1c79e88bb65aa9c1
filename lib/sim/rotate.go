package sim

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
)

// RotationMatrix returns the rotation matrix of the unit quaternion
// q = (w, x, y, z).
func RotationMatrix(q [4]float64) *mat.Dense {
	w, x, y, z := q[0], q[1], q[2], q[3]
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// WorldPositions returns the position of every secondary of p in the
// simulation frame.
func WorldPositions(p *particles.Primary) []geom.Vec {
	r := RotationMatrix(p.Q)
	out := make([]geom.Vec, len(p.Secondaries))
	rot := mat.NewVecDense(3, nil)
	for i := range p.Secondaries {
		off := p.Secondaries[i].Offset
		rot.MulVec(r, mat.NewVecDense(3, off[:]))
		for d := 0; d < 3; d++ {
			out[i][d] = p.X[d] + rot.AtVec(d)
		}
	}
	return out
}

// SetSecondaryVelocities sets the velocity of every secondary of p to that
// of its point on the rigid body: V + W x (R * Offset).
func SetSecondaryVelocities(p *particles.Primary) {
	if len(p.Secondaries) == 0 {
		return
	}
	r := RotationMatrix(p.Q)
	rot := mat.NewVecDense(3, nil)
	for i := range p.Secondaries {
		s := &p.Secondaries[i]
		rot.MulVec(r, mat.NewVecDense(3, s.Offset[:]))
		arm := geom.Vec{rot.AtVec(0), rot.AtVec(1), rot.AtVec(2)}
		s.V = geom.Add(p.V, cross(p.W, arm))
	}
}

func cross(a, b geom.Vec) geom.Vec {
	return geom.Vec{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Spin advances the orientation q by angular velocity w over dt and
// renormalizes it.
func Spin(q [4]float64, w geom.Vec, dt float64) [4]float64 {
	// dq/dt = (0, w) * q / 2
	dq := [4]float64{
		-(w[0]*q[1] + w[1]*q[2] + w[2]*q[3]),
		w[0]*q[0] + w[1]*q[3] - w[2]*q[2],
		w[1]*q[0] + w[2]*q[1] - w[0]*q[3],
		w[2]*q[0] + w[0]*q[2] - w[1]*q[1],
	}

	norm := 0.0
	for i := range q {
		q[i] += 0.5 * dt * dq[i]
		norm += q[i] * q[i]
	}
	norm = math.Sqrt(norm)
	for i := range q {
		q[i] /= norm
	}
	return q
}
