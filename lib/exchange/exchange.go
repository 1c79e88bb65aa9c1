/*package exchange implements the protocols which move particles between
processes: the initial scatter from the coordinator, the broadcast of
simulation-wide constants, the per-step halo exchange, migration of
ownership, and the periodic gather back to the coordinator.

Every protocol is run by all ranks at the same point in the program. A
Process is driven by a single goroutine and contains no locks.*/
package exchange

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
	"github.com/phil-mansfield/halox/lib/topology"
	"github.com/phil-mansfield/halox/lib/wire"
)

// Coordinator is the rank which scatters the initial particles and gathers
// snapshots.
const Coordinator = 0

// Tags for each phase. Phases which send one message per direction add the
// direction index to their base tag.
const (
	scatterTag   = 100
	constantsTag = 200
	haloTag      = 300
	migrateTag   = 400
	gatherTag    = 500
)

var (
	// ErrNotInitialized is returned by the per-step protocols when they are
	// called before BroadcastConstants.
	ErrNotInitialized = errors.New("constants have not been broadcast")
	// ErrPartitionViolation is wrapped by errors reporting a particle which
	// left its owner's sub-domain inside the global box without being sent
	// to any neighbor.
	ErrPartitionViolation = errors.New("partition violation")
)

// Process is one rank's view of the decomposition: its topology, its
// communicator and its particles.
type Process struct {
	Topo      *topology.Topology
	Comm      comm.Comm
	Store     *particles.Store
	Constants *Constants
	Log       *log.Logger
	// OnMigrate, if non-nil, is called at the end of every migration with
	// the IDs of the particles which left this process and the IDs of the
	// particles which arrived.
	OnMigrate func(left, arrived []uint64)

	buf *wire.Buffer
}

// New creates the Process for the rank of c. If logger is nil, a logger
// which writes to stderr with the rank as a prefix is used.
func New(
	topo *topology.Topology, c comm.Comm, logger *log.Logger,
) (*Process, error) {
	if c.Size() != topo.Size() {
		return nil, fmt.Errorf("%w: the communicator has %d ranks, but the "+
			"process grid has %d.", topology.ErrTopology, c.Size(), topo.Size())
	} else if c.Rank() != topo.Rank {
		return nil, fmt.Errorf("%w: the communicator has rank %d, but the "+
			"topology was built for rank %d.",
			topology.ErrTopology, c.Rank(), topo.Rank)
	}

	if logger == nil {
		logger = RankLogger(topo.Rank)
	}

	return &Process{
		Topo: topo, Comm: c, Store: particles.NewStore(nil), Log: logger,
		buf: wire.NewBuffer(),
	}, nil
}

// RankLogger returns a stderr logger prefixed with the rank.
func RankLogger(rank int) *log.Logger {
	return log.New(os.Stderr, fmt.Sprintf("rank %d: ", rank), log.LstdFlags)
}

// IsCoordinator returns true for rank 0.
func (p *Process) IsCoordinator() bool { return p.Topo.Rank == Coordinator }

func (p *Process) checkInit() error {
	if p.Constants == nil {
		return ErrNotInitialized
	}
	return nil
}

// pack makes detached copies of ps and encodes them. The copies are
// returned so that they can be held in a staging buffer for the rest of
// the phase. ps is not changed.
func (p *Process) pack(
	ps []*particles.Primary,
) ([]*particles.Primary, []byte, error) {
	staged := particles.CloneAll(ps)
	particles.DetachAll(staged)
	data, err := p.buf.Encode(staged)
	if err != nil {
		return nil, nil, err
	}
	return staged, data, nil
}

// unpack decodes a message and reattaches every particle in it.
func (p *Process) unpack(data []byte) ([]*particles.Primary, error) {
	ps, err := p.buf.Decode(data)
	if err != nil {
		return nil, err
	}
	particles.ReattachAll(ps)
	if err := particles.CheckAllAttached(ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Snapshot is the full particle set collected on the coordinator by
// Gather. It never shares memory with any process's live particles.
type Snapshot struct {
	Step      int
	Particles []*particles.Primary
}

// Mass returns the total primary mass in the snapshot.
func (s *Snapshot) Mass() float64 {
	sum := 0.0
	for _, p := range s.Particles {
		sum += p.Mass
	}
	return sum
}

// Lookup returns the snapshot's particles indexed by ID.
func (s *Snapshot) Lookup() map[uint64]*particles.Primary {
	out := make(map[uint64]*particles.Primary, len(s.Particles))
	for _, p := range s.Particles {
		out[p.ID] = p
	}
	return out
}

// MigrationStats counts what happened during one migration.
type MigrationStats struct {
	// Sent and Received count particles, not messages.
	Sent, Received int
	// Pruned counts particles which left the padded global box.
	Pruned int
	// Misplaced counts arrivals which overshot the local sub-domain. They
	// are owned here until the next migration moves them on.
	Misplaced int
	// Kept is the number of owned particles after migration.
	Kept int
}

// Contains is true if the rank's sub-domain contains x.
func (p *Process) Contains(x geom.Vec) bool {
	return geom.Contains(p.Topo.Local, x)
}

// waitSends waits on every send and returns the first error.
func waitSends(reqs []comm.Request) error {
	_, err := comm.WaitAll(reqs)
	return err
}
