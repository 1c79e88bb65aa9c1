package particles

/* store.go contains the Store which holds a process's particles. */

import (
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/topology"
)

// Store holds every particle a process knows about. Owned is the
// authoritative set. The halo holds read-only copies received from
// neighbors and lives for a single step. Staging holds the per-direction
// buffers used during one exchange phase.
type Store struct {
	Owned   []*Primary
	halo    [topology.NumDirections][]*Primary
	Staging Staging
}

// Staging is the set of outgoing and incoming buffers for one exchange
// phase. Everything in it is a copy owned by the phase and is dropped by
// Reset when the phase ends.
type Staging struct {
	Out, In [topology.NumDirections][]*Primary
}

// NewStore creates a Store owning the given particles.
func NewStore(owned []*Primary) *Store {
	return &Store{Owned: owned}
}

// Reset drops every staged particle.
func (st *Staging) Reset() {
	for i := range st.Out {
		st.Out[i] = nil
		st.In[i] = nil
	}
}

// Classify returns the particles in src whose positions are inside r, in
// the order they appear in src.
func Classify(r geom.Rect, src []*Primary) []*Primary {
	out := []*Primary{}
	for _, p := range src {
		if geom.Contains(r, p.X) {
			out = append(out, p)
		}
	}
	return out
}

// Merge returns the working set for force evaluation: the owned particles
// followed by the halo lists in direction order (faces, then edges, then
// vertices). The order is fixed so that kernels which accumulate by index
// see the same sequence in identical runs.
func (s *Store) Merge() []*Primary {
	n := len(s.Owned)
	for i := range s.halo {
		n += len(s.halo[i])
	}

	out := make([]*Primary, 0, n)
	out = append(out, s.Owned...)
	for i := range s.halo {
		out = append(out, s.halo[i]...)
	}
	return out
}

// Halo returns the halo particles in direction order.
func (s *Store) Halo() []*Primary {
	out := []*Primary{}
	for i := range s.halo {
		out = append(out, s.halo[i]...)
	}
	return out
}

// HaloFrom returns the halo particles received from direction dir.
func (s *Store) HaloFrom(dir int) []*Primary { return s.halo[dir] }

// SetHalo replaces the halo particles received from direction dir.
func (s *Store) SetHalo(dir int, ps []*Primary) { s.halo[dir] = ps }

// ClearHalo drops every halo particle.
func (s *Store) ClearHalo() {
	for i := range s.halo {
		s.halo[i] = nil
	}
}

// Compact removes every owned particle for which keep returns false and
// returns the removed particles. The relative order of the kept particles
// does not change. This is a single O(n) pass.
func (s *Store) Compact(keep func(*Primary) bool) (removed []*Primary) {
	j := 0
	for _, p := range s.Owned {
		if keep(p) {
			s.Owned[j] = p
			j++
		} else {
			removed = append(removed, p)
		}
	}

	// Clear the tail so the backing array doesn't keep removed particles
	// alive.
	for i := j; i < len(s.Owned); i++ {
		s.Owned[i] = nil
	}
	s.Owned = s.Owned[:j]

	return removed
}

// Release drops the secondaries of particles which have left the process.
func Release(ps []*Primary) {
	for _, p := range ps {
		p.Secondaries = nil
	}
}
