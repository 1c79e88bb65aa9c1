package exchange

import (
	"fmt"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/particles"
)

// Gather collects a copy of every owned particle on the coordinator.
// Workers send their particles and return a nil Snapshot. The coordinator
// returns the particles of ranks 1, 2, ... in rank order, followed by
// copies of its own.
func (p *Process) Gather(step int) (*Snapshot, error) {
	if err := p.checkInit(); err != nil {
		return nil, err
	}

	if !p.IsCoordinator() {
		_, data, err := p.pack(p.Store.Owned)
		if err != nil {
			return nil, fmt.Errorf("Packing particles for gather failed: %w",
				err)
		}
		_, err = p.Comm.Isend(data, Coordinator, gatherTag).Wait()
		if err != nil {
			return nil, fmt.Errorf("Sending particles for gather failed: %w",
				err)
		}
		return nil, nil
	}

	recvs := make([]comm.Request, p.Comm.Size())
	for rank := range recvs {
		if rank != Coordinator {
			recvs[rank] = p.Comm.Irecv(rank, gatherTag)
		}
	}

	out := []*particles.Primary{}
	for rank := range recvs {
		if recvs[rank] == nil {
			continue
		}
		data, err := recvs[rank].Wait()
		if err != nil {
			return nil, fmt.Errorf("Gathering from rank %d failed: %w",
				rank, err)
		}
		ps, err := p.unpack(data)
		if err != nil {
			return nil, fmt.Errorf("Unpacking particles from rank %d "+
				"failed: %w", rank, err)
		}
		out = append(out, ps...)
	}

	own := particles.CloneAll(p.Store.Owned)
	particles.ReattachAll(own)
	out = append(out, own...)

	snap := &Snapshot{Step: step, Particles: out}
	p.Log.Printf("Gathered %d particles with total mass %.6g at step %d.",
		len(out), snap.Mass(), step)
	return snap, nil
}
