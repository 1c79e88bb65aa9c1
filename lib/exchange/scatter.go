package exchange

import (
	"fmt"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
)

// Scatter distributes the initial particles from the coordinator. On the
// coordinator, all is split by sub-domain and each share is sent to its
// owner; the coordinator keeps copies of its own share without a message,
// so the caller's particles are never changed by later steps. On every
// other rank, all is ignored and the rank's share is received. Particles
// outside the padded global box are dropped and counted.
//
// Scatter replaces Owned on every rank.
func (p *Process) Scatter(all []*particles.Primary) error {
	if !p.IsCoordinator() {
		data, err := p.Comm.Irecv(Coordinator, scatterTag).Wait()
		if err != nil {
			return fmt.Errorf("Receiving scattered particles failed: %w", err)
		}
		owned, err := p.unpack(data)
		if err != nil {
			return fmt.Errorf("Unpacking scattered particles failed: %w", err)
		}
		p.Store.Owned = owned
		p.Log.Printf("Received %d particles from the coordinator.", len(owned))
		return nil
	}

	p.Store.Staging.Reset()
	defer p.Store.Staging.Reset()

	reqs := []comm.Request{}
	assigned := 0
	for rank := 1; rank < p.Comm.Size(); rank++ {
		share := particles.Classify(p.Topo.RectOf(rank), all)
		staged, data, err := p.pack(share)
		if err != nil {
			return fmt.Errorf("Packing particles for rank %d failed: %w",
				rank, err)
		}
		// Direction staging is unused during scatter, so ranks are staged
		// as one list.
		p.Store.Staging.Out[0] = append(p.Store.Staging.Out[0], staged...)
		reqs = append(reqs, p.Comm.Isend(data, rank, scatterTag))
		assigned += len(share)
	}

	own := particles.CloneAll(particles.Classify(p.Topo.Local, all))
	particles.ReattachAll(own)
	p.Store.Owned = own
	assigned += len(own)

	if err := waitSends(reqs); err != nil {
		return fmt.Errorf("Scattering particles failed: %w", err)
	}

	dropped := 0
	for _, q := range all {
		if !geom.Contains(p.Topo.Global, q.X) {
			dropped++
		}
	}
	if assigned+dropped != len(all) {
		return fmt.Errorf("%w: %d particles were scattered, %d were outside "+
			"the global box, but %d were given.", ErrPartitionViolation,
			assigned, dropped, len(all))
	}

	p.Log.Printf("Scattered %d particles to %d ranks; %d were outside the "+
		"global box.", assigned, p.Comm.Size(), dropped)
	return nil
}
