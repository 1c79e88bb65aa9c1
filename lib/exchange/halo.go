package exchange

import (
	"fmt"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
	"github.com/phil-mansfield/halox/lib/topology"
)

// HaloExchange sends copies of every owned particle within 2*Radius of a
// neighbor's sub-domain to that neighbor and fills the halo with the copies
// sent by the neighbors. Owned is not changed. The old halo is dropped
// first, so repeated calls give the same halo.
func (p *Process) HaloExchange() error {
	if err := p.checkInit(); err != nil {
		return err
	}
	st := &p.Store.Staging
	p.Store.ClearHalo()
	st.Reset()

	thickness := 2 * p.Constants.Radius
	sends := make([]comm.Request, topology.NumDirections)
	recvs := make([]comm.Request, topology.NumDirections)

	for d, dir := range topology.Directions {
		nb := p.Topo.Neighbors[d]
		if nb == topology.None {
			continue
		}

		slab := geom.Slab(p.Topo.Local, dir.Offset, thickness)
		staged, data, err := p.pack(particles.Classify(slab, p.Store.Owned))
		if err != nil {
			return fmt.Errorf("Packing halo for direction %d failed: %w",
				dir.Offset, err)
		}
		st.Out[d] = staged

		sends[d] = p.Comm.Isend(data, nb, haloTag+d)
		recvs[d] = p.Comm.Irecv(nb, haloTag+dir.Opposite())
	}

	for d := range recvs {
		if recvs[d] == nil {
			continue
		}
		data, err := recvs[d].Wait()
		if err != nil {
			return fmt.Errorf("Receiving halo from rank %d failed: %w",
				p.Topo.Neighbors[d], err)
		}
		halo, err := p.unpack(data)
		if err != nil {
			return fmt.Errorf("Unpacking halo from rank %d failed: %w",
				p.Topo.Neighbors[d], err)
		}
		st.In[d] = halo
		p.Store.SetHalo(d, halo)
	}

	if err := waitSends(sends); err != nil {
		return fmt.Errorf("Sending halo failed: %w", err)
	}
	return nil
}

// EndStep drops the halo and every staged copy. It must be called once
// force evaluation is done, before the owned particles move.
func (p *Process) EndStep() {
	p.Store.ClearHalo()
	p.Store.Staging.Reset()
}
