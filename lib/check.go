package lib

/* check.go contains the core functions of halox's "check" mode. */

import (
	"fmt"

	"github.com/phil-mansfield/halox/lib/exchange"
	"github.com/phil-mansfield/halox/lib/topology"
)

// Check runs the halox "check" command on the provided Args for a run with
// size processes, as seen from the given rank. It returns an error wrapping
// topology.ErrTopology if the process grid can't be run that way, and a
// plain error for any other problem. It doesn't touch the network.
func Check(args *Args, size, rank int) error {
	if err := topology.Validate(args.Shape, size); err != nil {
		return err
	}
	topo, err := topology.ForRank(args.Global, args.Shape, rank)
	if err != nil {
		return err
	}

	// Halo slabs are two radii thick and are only sent to nearest
	// neighbors, so no sub-domain can be thinner than a slab.
	w := topo.Local.Width()
	for d := 0; d < 3; d++ {
		if args.Shape[d] > 1 && w[d] < 2*args.Radius {
			return fmt.Errorf("%w: sub-domains are %g wide along axis %d, "+
				"but the halo is %g wide. Use fewer processes or a smaller "+
				"Radius.", topology.ErrTopology, w[d], d, 2*args.Radius)
		}
	}

	if args.Transport == SocketTransport {
		if len(args.Peers) != size {
			return fmt.Errorf("%w: %d Peer addresses were given, but the "+
				"process grid has %d processes.", topology.ErrTopology,
				len(args.Peers), size)
		}
		for i, peer := range args.Peers {
			if peer == "" {
				return fmt.Errorf("Peer %d has an empty address.", i)
			}
		}
	}

	for _, b := range args.Constants.Boundaries {
		if exchange.FaceDirection(b.Face) < 0 {
			return fmt.Errorf("Boundary '%s' is on the unknown face '%s'.",
				b.Name, b.Face)
		}
	}

	spacing := args.Box.Width()
	for d := 0; d < 3; d++ {
		spacing[d] /= float64(args.Lattice.N)
		if 2*args.Lattice.Radius > spacing[d] {
			return fmt.Errorf("The lattice spacing along axis %d is %g, so "+
				"particles with radius %g would overlap.", d, spacing[d],
				args.Lattice.Radius)
		}
	}

	return nil
}
