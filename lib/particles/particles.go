/*package particles contains the primary and secondary particle types, the
functions which manage the link between a secondary particle and its
primary, and the Store which holds the particles known to one process.*/
package particles

/* This file contains the particle types and the attachment functions. */

import (
	"errors"
	"fmt"

	"github.com/phil-mansfield/halox/lib/geom"
)

// ErrAttachment is wrapped by errors reporting a secondary particle whose
// back-reference is missing or points at the wrong primary outside of a
// transfer.
var ErrAttachment = errors.New("secondary particle attachment violated")

// Ref is a weak reference from a secondary particle to its primary. It
// stores the primary's ID rather than a pointer, so it can be explicitly
// invalidated before a particle leaves the process and resolved again once
// it arrives.
type Ref struct {
	id uint64
	ok bool
}

// RefTo returns a valid reference to the primary with the given ID.
func RefTo(id uint64) Ref { return Ref{id, true} }

// ID returns the referenced primary's ID and whether the reference is valid.
func (r Ref) ID() (id uint64, ok bool) { return r.id, r.ok }

// Valid returns true if the reference currently resolves to a primary.
func (r Ref) Valid() bool { return r.ok }

// Secondary is a sample point rigidly attached to a primary particle.
type Secondary struct {
	// Offset is the position relative to the primary in the primary's
	// body frame.
	Offset   geom.Vec
	V        geom.Vec
	Mass     float64
	Density  float64
	Pressure float64
	Owner    Ref
}

// Primary is a discrete-element particle. The process that owns a Primary
// is the only one allowed to change it.
type Primary struct {
	ID uint64
	// X, V and W are the position, velocity and angular velocity.
	X, V, W geom.Vec
	// Q is the orientation quaternion (w, x, y, z).
	Q            [4]float64
	Radius, Mass float64
	Secondaries  []Secondary
}

// NewPrimary creates an unrotated primary particle and attaches secs to it.
// secs is not copied.
func NewPrimary(
	id uint64, x, v geom.Vec, radius, mass float64, secs []Secondary,
) *Primary {
	p := &Primary{
		ID: id, X: x, V: v, Q: [4]float64{1, 0, 0, 0},
		Radius: radius, Mass: mass, Secondaries: secs,
	}
	Reattach(p)
	return p
}

// Clone returns a deep copy of p. The secondaries are copied rather than
// shared, so changing or detaching the copy never affects p.
func (p *Primary) Clone() *Primary {
	out := *p
	if p.Secondaries != nil {
		out.Secondaries = make([]Secondary, len(p.Secondaries))
		copy(out.Secondaries, p.Secondaries)
	}
	return &out
}

// Detach invalidates the back-reference of every secondary of p. It must be
// called before p, or a copy of p, is handed to the wire codec.
func Detach(p *Primary) {
	for i := range p.Secondaries {
		p.Secondaries[i].Owner = Ref{}
	}
}

// Reattach points the back-reference of every secondary of p at p. It must
// be called as soon as p has been received or duplicated. Calling it on an
// attached particle does nothing.
func Reattach(p *Primary) {
	for i := range p.Secondaries {
		p.Secondaries[i].Owner = RefTo(p.ID)
	}
}

// DetachAll calls Detach on every particle in ps.
func DetachAll(ps []*Primary) {
	for _, p := range ps {
		Detach(p)
	}
}

// ReattachAll calls Reattach on every particle in ps.
func ReattachAll(ps []*Primary) {
	for _, p := range ps {
		Reattach(p)
	}
}

// IsDetached returns true if every secondary of p is detached. Particles
// without secondaries count as both attached and detached.
func IsDetached(p *Primary) bool {
	for i := range p.Secondaries {
		if p.Secondaries[i].Owner.Valid() {
			return false
		}
	}
	return true
}

// CheckAttached returns an error wrapping ErrAttachment if any secondary of
// p does not refer back to p.
func CheckAttached(p *Primary) error {
	for i := range p.Secondaries {
		id, ok := p.Secondaries[i].Owner.ID()
		if !ok {
			return fmt.Errorf("%w: secondary %d of particle %d has no owner.",
				ErrAttachment, i, p.ID)
		} else if id != p.ID {
			return fmt.Errorf("%w: secondary %d of particle %d refers to "+
				"particle %d.", ErrAttachment, i, p.ID, id)
		}
	}
	return nil
}

// CheckAllAttached calls CheckAttached on every particle in ps and returns
// the first error.
func CheckAllAttached(ps []*Primary) error {
	for _, p := range ps {
		if err := CheckAttached(p); err != nil {
			return err
		}
	}
	return nil
}

// CloneAll deep copies every particle in ps.
func CloneAll(ps []*Primary) []*Primary {
	out := make([]*Primary, len(ps))
	for i := range ps {
		out[i] = ps[i].Clone()
	}
	return out
}

// IDs returns the IDs of ps in order.
func IDs(ps []*Primary) []uint64 {
	out := make([]uint64, len(ps))
	for i := range ps {
		out[i] = ps[i].ID
	}
	return out
}
