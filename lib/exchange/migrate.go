package exchange

import (
	"fmt"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
	"github.com/phil-mansfield/halox/lib/topology"
)

// Migrate moves every owned particle which has left the local sub-domain
// to the neighbor whose sub-domain it has entered and takes ownership of
// the particles neighbors send here. A particle may move at most one
// sub-domain width per step along each axis.
//
// Arrivals which overshot this sub-domain are kept, counted and logged.
// Particles which left the padded global box are pruned. A particle which
// left the sub-domain, is still inside the global box, and wasn't sent
// anywhere returns an error wrapping ErrPartitionViolation.
func (p *Process) Migrate() (MigrationStats, error) {
	stats := MigrationStats{}
	if err := p.checkInit(); err != nil {
		return stats, err
	}
	st := &p.Store.Staging
	st.Reset()
	defer st.Reset()

	width := p.Topo.Local.Width()
	sent := map[uint64]bool{}
	left := []uint64{}
	sends := make([]comm.Request, topology.NumDirections)
	recvs := make([]comm.Request, topology.NumDirections)

	for d, dir := range topology.Directions {
		nb := p.Topo.Neighbors[d]
		if nb == topology.None {
			continue
		}

		// Anything which overshot the neighbor still goes to it; the next
		// migration moves it on. Nothing outside the global box is sent.
		region := geom.Intersection(
			geom.Extend(p.Topo.RectOf(nb), dir.Offset, width), p.Topo.Global,
		)
		leaving := particles.Classify(region, p.Store.Owned)
		for _, q := range leaving {
			sent[q.ID] = true
			left = append(left, q.ID)
		}

		staged, data, err := p.pack(leaving)
		if err != nil {
			return stats, fmt.Errorf("Packing migrants for direction %d "+
				"failed: %w", dir.Offset, err)
		}
		st.Out[d] = staged
		stats.Sent += len(staged)

		sends[d] = p.Comm.Isend(data, nb, migrateTag+d)
		recvs[d] = p.Comm.Irecv(nb, migrateTag+dir.Opposite())
	}

	// Arrivals stay detached until Owned has been compacted.
	for d := range recvs {
		if recvs[d] == nil {
			continue
		}
		data, err := recvs[d].Wait()
		if err != nil {
			return stats, fmt.Errorf("Receiving migrants from rank %d "+
				"failed: %w", p.Topo.Neighbors[d], err)
		}
		st.In[d], err = p.buf.Decode(data)
		if err != nil {
			return stats, fmt.Errorf("Decoding migrants from rank %d "+
				"failed: %w", p.Topo.Neighbors[d], err)
		}
		stats.Received += len(st.In[d])
	}

	if err := waitSends(sends); err != nil {
		return stats, fmt.Errorf("Sending migrants failed: %w", err)
	}

	removed := p.Store.Compact(func(q *particles.Primary) bool {
		return geom.Contains(p.Topo.Local, q.X)
	})
	for _, q := range removed {
		if sent[q.ID] {
			continue
		}
		if geom.Contains(p.Topo.Global, q.X) {
			return stats, fmt.Errorf("%w: particle %d at %.6g left rank %d's "+
				"sub-domain %v but was not sent to any neighbor.",
				ErrPartitionViolation, q.ID, q.X, p.Topo.Rank, p.Topo.Local)
		}
		stats.Pruned++
		p.Log.Printf("Pruned particle %d at %.6g: it left the global box.",
			q.ID, q.X)
	}
	particles.Release(removed)

	arrived := []uint64{}
	for d := range st.In {
		particles.ReattachAll(st.In[d])
		if err := particles.CheckAllAttached(st.In[d]); err != nil {
			return stats, err
		}
		for _, q := range st.In[d] {
			if !geom.Contains(p.Topo.Local, q.X) {
				stats.Misplaced++
				p.Log.Printf("Particle %d at %.6g arrived from rank %d "+
					"outside sub-domain %v; it moves on next migration.",
					q.ID, q.X, p.Topo.Neighbors[d], p.Topo.Local)
			}
		}
		p.Store.Owned = append(p.Store.Owned, st.In[d]...)
		arrived = append(arrived, particles.IDs(st.In[d])...)
	}
	stats.Kept = len(p.Store.Owned)

	if stats.Pruned > 0 || stats.Misplaced > 0 {
		p.Log.Printf("Migration sent %d, received %d, pruned %d and "+
			"misplaced %d particles.", stats.Sent, stats.Received,
			stats.Pruned, stats.Misplaced)
	}
	if p.OnMigrate != nil {
		p.OnMigrate(left, arrived)
	}

	return stats, nil
}
