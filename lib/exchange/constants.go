package exchange

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/topology"
)

// Material is one entry in the material gradation table.
type Material struct {
	ID   int
	Name string
	// Density is in kg/m^3; Young's modulus is in Pa.
	Density, Young, Poisson, Friction float64
}

// Boundary describes the condition applied at one face of the physical
// box.
type Boundary struct {
	Name string
	// Face is one of -x, +x, -y, +y, -z, +z.
	Face string
	// Kind is "wall" (particles are reflected) or "open" (particles leave
	// and are pruned).
	Kind  string
	Value float64
}

// Constants is the simulation-wide state which every process needs but
// which never changes after startup.
type Constants struct {
	Materials  []Material
	Boundaries []Boundary
	// Box is the physical box and Global is the padded box tiled by the
	// process grid.
	Box, Global geom.Rect
	Shape       [3]int
	// Radius is the maximum interaction radius. Halo slabs are 2*Radius
	// thick.
	Radius float64
}

// Material returns the material with the given ID.
func (c *Constants) Material(id int) (Material, bool) {
	for _, m := range c.Materials {
		if m.ID == id {
			return m, true
		}
	}
	return Material{}, false
}

// FaceDirection returns the direction index of a boundary face, or -1 if
// the face name is not recognized.
func FaceDirection(face string) int {
	offsets := map[string][3]int{
		"-x": {-1, 0, 0}, "+x": {+1, 0, 0},
		"-y": {0, -1, 0}, "+y": {0, +1, 0},
		"-z": {0, 0, -1}, "+z": {0, 0, +1},
	}
	off, ok := offsets[face]
	if !ok {
		return -1
	}
	return topology.Lookup(off)
}

func (c *Constants) check(topo *topology.Topology) error {
	if c.Radius <= 0 {
		return fmt.Errorf("Interaction radius is %g, but must be positive.",
			c.Radius)
	} else if c.Shape != topo.Shape {
		return fmt.Errorf("%w: constants describe the process grid %d, but "+
			"this process is in the grid %d.", topology.ErrTopology,
			c.Shape, topo.Shape)
	} else if c.Global != topo.Global {
		return fmt.Errorf("%w: constants describe the global box %v, but "+
			"this process is in the box %v.", topology.ErrTopology,
			c.Global, topo.Global)
	}
	return nil
}

// BroadcastConstants sends c from the coordinator to every other rank
// exactly once and records it on every process. The argument is ignored on
// workers.
func (p *Process) BroadcastConstants(c *Constants) error {
	if p.IsCoordinator() {
		if c == nil {
			return errors.New("The coordinator was given nil constants.")
		}
		if err := c.check(p.Topo); err != nil {
			return err
		}

		buf := &bytes.Buffer{}
		if err := gob.NewEncoder(buf).Encode(c); err != nil {
			return err
		}
		data := buf.Bytes()

		reqs := []comm.Request{}
		for rank := 0; rank < p.Comm.Size(); rank++ {
			if rank == Coordinator {
				continue
			}
			reqs = append(reqs, p.Comm.Isend(data, rank, constantsTag))
		}
		if err := waitSends(reqs); err != nil {
			return fmt.Errorf("Broadcasting constants failed: %w", err)
		}
		p.Constants = c
		return nil
	}

	data, err := p.Comm.Irecv(Coordinator, constantsTag).Wait()
	if err != nil {
		return fmt.Errorf("Receiving constants failed: %w", err)
	}
	recv := &Constants{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(recv); err != nil {
		return fmt.Errorf("Decoding constants failed: %w", err)
	}
	if err := recv.check(p.Topo); err != nil {
		return err
	}
	p.Constants = recv
	return nil
}
