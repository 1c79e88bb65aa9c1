package sim

import (
	"github.com/phil-mansfield/gravitree"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/halox/lib/particles"
)

// PotentialKernel returns the gravitational potential energy of every
// particle in ps due to every other particle in ps, with G = 1 and
// Plummer softening eps. The particles are assumed to share a single
// mass. Halo copies contribute to the potential of owned particles, which
// is why the kernel is run on the merged working set.
func PotentialKernel(ps []*particles.Primary, eps float64) []float64 {
	pe := make([]float64, len(ps))
	if len(ps) < 2 {
		return pe
	}

	x := make([][3]float64, len(ps))
	for i := range ps {
		x[i] = ps[i].X
	}

	tree := newTree(x)
	tree.Potential(eps, pe)
	for i := range pe {
		pe[i] *= ps[i].Mass * ps[i].Mass
	}

	return pe
}

// newTree builds a gravitree over x. gravitree v1.0.0 leaves a block of
// empty nodes ahead of the root, while Potential walks every leaf from node
// 0, so the block is cut off and the child indices are shifted down.
func newTree(x [][3]float64) *gravitree.Tree {
	tree := gravitree.NewTree(x)

	root := 0
	for root < len(tree.Nodes) && tree.Nodes[root].End == 0 {
		root++
	}
	if root == 0 || root == len(tree.Nodes) {
		return tree
	}

	nodes := tree.Nodes[root:]
	for i := range nodes {
		if nodes[i].Left != -1 {
			nodes[i].Left -= root
			nodes[i].Right -= root
		}
	}
	tree.Nodes = nodes
	tree.Root = &tree.Nodes[0]
	return tree
}

// Totals returns the total mass and kinetic energy of ps.
func Totals(ps []*particles.Primary) (mass, kinetic float64) {
	m := make([]float64, len(ps))
	ke := make([]float64, len(ps))
	for i, p := range ps {
		m[i] = p.Mass
		ke[i] = 0.5 * p.Mass * (p.V[0]*p.V[0] + p.V[1]*p.V[1] + p.V[2]*p.V[2])
	}
	return floats.Sum(m), floats.Sum(ke)
}
