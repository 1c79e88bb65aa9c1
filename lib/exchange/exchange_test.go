package exchange

import (
	"bytes"
	"errors"
	"io"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
	"github.com/phil-mansfield/halox/lib/topology"
)

func newWorld(t *testing.T, global geom.Rect, shape [3]int) []*Process {
	n := topology.NumProcs(shape)
	w := comm.NewLocalWorld(n)
	procs := make([]*Process, n)
	for rank := range procs {
		topo, err := topology.ForRank(global, shape, rank)
		require.NoError(t, err)
		procs[rank], err = New(topo, w.Comm(rank), log.New(io.Discard, "", 0))
		require.NoError(t, err)
	}
	return procs
}

// runAll runs f on every rank at once and returns each rank's error.
func runAll(procs []*Process, f func(p *Process) error) []error {
	errs := make([]error, len(procs))
	wg := sync.WaitGroup{}
	for i := range procs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f(procs[i])
		}(i)
	}
	wg.Wait()
	return errs
}

func requireAll(t *testing.T, procs []*Process, f func(p *Process) error) {
	for rank, err := range runAll(procs, f) {
		require.NoError(t, err, "rank %d", rank)
	}
}

func testConstants(procs []*Process, radius float64) *Constants {
	topo := procs[0].Topo
	return &Constants{
		Materials: []Material{{ID: 0, Name: "basalt", Density: 3000,
			Young: 7e10, Poisson: 0.25, Friction: 0.6}},
		Boundaries: []Boundary{{Name: "floor", Face: "-z", Kind: "wall"}},
		Box:        topo.Global, Global: topo.Global, Shape: topo.Shape,
		Radius: radius,
	}
}

// setup scatters all and broadcasts constants.
func setup(
	t *testing.T, procs []*Process, all []*particles.Primary, radius float64,
) {
	c := testConstants(procs, radius)
	requireAll(t, procs, func(p *Process) error {
		if err := p.Scatter(all); err != nil {
			return err
		}
		return p.BroadcastConstants(c)
	})
}

func randomParticles(
	gen *rand.Rand, global geom.Rect, n int, speed float64,
) []*particles.Primary {
	w := global.Width()
	ps := make([]*particles.Primary, n)
	for i := range ps {
		x, v := geom.Vec{}, geom.Vec{}
		for d := 0; d < 3; d++ {
			x[d] = global.Min[d] + gen.Float64()*w[d]
			v[d] = (2*gen.Float64() - 1) * speed
		}
		secs := make([]particles.Secondary, 1+i%4)
		for j := range secs {
			secs[j].Offset = geom.Vec{0.01 * float64(j), 0, 0}
			secs[j].Mass = 0.25
		}
		ps[i] = particles.NewPrimary(uint64(i), x, v, 0.01, 1, secs)
	}
	return ps
}

func drift(procs []*Process, dt float64) {
	for _, p := range procs {
		for _, q := range p.Store.Owned {
			q.X = geom.Add(q.X, geom.Scale(dt, q.V))
		}
	}
}

// checkOwnership verifies that every particle is owned exactly once, by the
// rank whose sub-domain contains it, with attached secondaries. It returns
// the number of owned particles.
func checkOwnership(t *testing.T, procs []*Process) int {
	owners := map[uint64]int{}
	n := 0
	for rank, p := range procs {
		for _, q := range p.Store.Owned {
			if prev, ok := owners[q.ID]; ok {
				t.Errorf("Particle %d owned by ranks %d and %d.",
					q.ID, prev, rank)
			}
			owners[q.ID] = rank
			if !p.Contains(q.X) {
				t.Errorf("Particle %d at %v owned by rank %d with domain %v.",
					q.ID, q.X, rank, p.Topo.Local)
			}
			if err := particles.CheckAttached(q); err != nil {
				t.Errorf("Rank %d) %s", rank, err.Error())
			}
			n++
		}
	}
	return n
}

func sortedIDs(ps []*particles.Primary) []uint64 {
	ids := particles.IDs(ps)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestMigrateAcrossFace(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{2, 1, 1}}
	procs := newWorld(t, global, [3]int{2, 1, 1})

	secs := []particles.Secondary{{Mass: 1}, {Mass: 2}, {Mass: 3}}
	p := particles.NewPrimary(42, geom.Vec{0.999, 0.5, 0.5},
		geom.Vec{1, 0, 0}, 0.01, 1, secs)
	setup(t, procs, []*particles.Primary{p}, 0.01)

	require.Len(t, procs[0].Store.Owned, 1)
	require.Len(t, procs[1].Store.Owned, 0)
	assert.False(t, p == procs[0].Store.Owned[0])

	drift(procs, 0.1)
	assert.InDelta(t, 1.099, procs[0].Store.Owned[0].X[0], 1e-12)

	stats := make([]MigrationStats, 2)
	requireAll(t, procs, func(p *Process) error {
		var err error
		stats[p.Topo.Rank], err = p.Migrate()
		return err
	})

	assert.Equal(t, MigrationStats{Sent: 1, Kept: 0}, stats[0])
	assert.Equal(t, MigrationStats{Received: 1, Kept: 1}, stats[1])
	assert.Len(t, procs[0].Store.Owned, 0)
	require.Len(t, procs[1].Store.Owned, 1)

	q := procs[1].Store.Owned[0]
	assert.Equal(t, uint64(42), q.ID)
	assert.Len(t, q.Secondaries, 3)
	assert.Equal(t, 3.0, q.Secondaries[2].Mass)
	assert.Equal(t, 1, checkOwnership(t, procs))

	// The particle handed to Scatter is untouched by drift and migration.
	assert.Equal(t, geom.Vec{0.999, 0.5, 0.5}, p.X)
	require.Len(t, p.Secondaries, 3)
	assert.NoError(t, particles.CheckAttached(p))
}

func TestMigrateOvershoot(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{3, 1, 1}}
	procs := newWorld(t, global, [3]int{3, 1, 1})
	out := &bytes.Buffer{}
	procs[1].Log = log.New(out, "", 0)

	p := particles.NewPrimary(7, geom.Vec{0.5, 0.5, 0.5},
		geom.Vec{20, 0, 0}, 0.01, 1, []particles.Secondary{{Mass: 1}})
	setup(t, procs, []*particles.Primary{p}, 0.01)
	drift(procs, 0.1)

	migrate := func() []MigrationStats {
		stats := make([]MigrationStats, len(procs))
		requireAll(t, procs, func(p *Process) error {
			var err error
			stats[p.Topo.Rank], err = p.Migrate()
			return err
		})
		return stats
	}

	stats := migrate()
	assert.Equal(t, MigrationStats{Sent: 1}, stats[0])
	assert.Equal(t, MigrationStats{Received: 1, Misplaced: 1, Kept: 1},
		stats[1])
	require.Len(t, procs[1].Store.Owned, 1)
	assert.False(t, procs[1].Contains(procs[1].Store.Owned[0].X))
	assert.Contains(t, out.String(), "Particle 7")

	stats = migrate()
	assert.Equal(t, MigrationStats{Sent: 1}, stats[1])
	assert.Equal(t, MigrationStats{Received: 1, Kept: 1}, stats[2])
	assert.Equal(t, []uint64{7}, particles.IDs(procs[2].Store.Owned))
	assert.Equal(t, 1, checkOwnership(t, procs))
}

func TestFaceOwnership(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{2, 1, 1}}
	procs := newWorld(t, global, [3]int{2, 1, 1})

	all := []*particles.Primary{
		particles.NewPrimary(0, geom.Vec{1.0, 0.5, 0.5}, geom.Vec{}, 0.01, 1,
			[]particles.Secondary{{}}),
		particles.NewPrimary(1, geom.Vec{0.0, 0.0, 0.0}, geom.Vec{}, 0.01, 1,
			nil),
		particles.NewPrimary(2, geom.Vec{2.0, 0.5, 0.5}, geom.Vec{}, 0.01, 1,
			nil),
	}
	setup(t, procs, all, 0.01)

	assert.Equal(t, []uint64{1}, particles.IDs(procs[0].Store.Owned))
	assert.Equal(t, []uint64{0}, particles.IDs(procs[1].Store.Owned))
	assert.Equal(t, 2, checkOwnership(t, procs))
}

func TestScatterGather(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{-1, -1, -1}, Max: geom.Vec{1, 1, 1}}
	procs := newWorld(t, global, [3]int{2, 2, 2})
	gen := rand.New(rand.NewSource(3))
	all := randomParticles(gen, global, 500, 0)
	ids := sortedIDs(all)

	setup(t, procs, all, 0.05)
	assert.Equal(t, 500, checkOwnership(t, procs))

	snaps := make([]*Snapshot, len(procs))
	requireAll(t, procs, func(p *Process) error {
		var err error
		snaps[p.Topo.Rank], err = p.Gather(7)
		return err
	})

	for rank := 1; rank < len(procs); rank++ {
		assert.Nil(t, snaps[rank])
	}
	snap := snaps[0]
	require.NotNil(t, snap)
	assert.Equal(t, 7, snap.Step)
	assert.Equal(t, ids, sortedIDs(snap.Particles))
	assert.NoError(t, particles.CheckAllAttached(snap.Particles))
	assert.InDelta(t, 500.0, snap.Mass(), 1e-9)

	// Workers come first in rank order, then the coordinator.
	order := []int{}
	for _, q := range snap.Particles {
		for rank, p := range procs {
			if geom.Contains(p.Topo.Local, q.X) {
				order = append(order, (rank+len(procs)-1)%len(procs))
			}
		}
	}
	assert.True(t, sort.IntsAreSorted(order))

	// The snapshot doesn't alias live particles.
	lookup := snap.Lookup()
	for _, p := range procs {
		for _, q := range p.Store.Owned {
			g := lookup[q.ID]
			if g == q {
				t.Errorf("Snapshot shares particle %d with rank %d.",
					q.ID, p.Topo.Rank)
			}
			if len(g.Secondaries) > 0 && &g.Secondaries[0] == &q.Secondaries[0] {
				t.Errorf("Snapshot shares the secondaries of particle %d.",
					q.ID)
			}
		}
	}
	before := procs[0].Store.Owned[0].X
	for _, q := range snap.Particles {
		q.X = geom.Vec{99, 99, 99}
		particles.Detach(q)
	}
	assert.Equal(t, before, procs[0].Store.Owned[0].X)
	assert.Equal(t, 500, checkOwnership(t, procs))
}

func TestHaloExchange(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{3, 3, 3}}
	procs := newWorld(t, global, [3]int{3, 3, 3})
	gen := rand.New(rand.NewSource(5))
	radius := 0.1
	all := randomParticles(gen, global, 3000, 1)
	for _, q := range all {
		q.W = geom.Vec{gen.NormFloat64(), gen.NormFloat64(), gen.NormFloat64()}
		norm := 0.0
		for k := range q.Q {
			q.Q[k] = gen.NormFloat64()
			norm += q.Q[k] * q.Q[k]
		}
		for k := range q.Q {
			q.Q[k] /= math.Sqrt(norm)
		}
		for j := range q.Secondaries {
			s := &q.Secondaries[j]
			s.V = geom.Vec{gen.Float64(), gen.Float64(), gen.Float64()}
			s.Density = 1000 * gen.Float64()
			s.Pressure = gen.NormFloat64()
		}
	}
	setup(t, procs, all, radius)

	owned := make([][]uint64, len(procs))
	for rank, p := range procs {
		owned[rank] = particles.IDs(p.Store.Owned)
	}

	requireAll(t, procs, func(p *Process) error { return p.HaloExchange() })
	first := make([][]*particles.Primary, len(procs))
	for rank, p := range procs {
		first[rank] = p.Store.Merge()
	}

	requireAll(t, procs, func(p *Process) error { return p.HaloExchange() })

	for rank, p := range procs {
		assert.Equal(t, owned[rank], particles.IDs(p.Store.Owned))
		// A repeated exchange gives new halo copies with the same contents.
		second := p.Store.Merge()
		require.Equal(t, len(first[rank]), len(second), "rank %d", rank)
		for i := len(p.Store.Owned); i < len(second); i++ {
			if first[rank][i] == second[i] {
				t.Errorf("Rank %d) Halo particle %d was not replaced.",
					rank, second[i].ID)
			}
		}
		assert.Equal(t, first[rank], second, "rank %d", rank)
		assert.NoError(t, particles.CheckAllAttached(p.Store.Halo()))

		for d, dir := range topology.Directions {
			nb := p.Topo.Neighbors[d]
			if nb == topology.None {
				assert.Empty(t, p.Store.HaloFrom(d))
				continue
			}
			// The neighbor sends the slab of its domain facing this rank.
			back := topology.Directions[dir.Opposite()]
			slab := geom.Slab(procs[nb].Topo.Local, back.Offset, 2*radius)
			exp := sortedIDs(particles.Classify(slab, procs[nb].Store.Owned))
			got := sortedIDs(p.Store.HaloFrom(d))
			if !assert.Equal(t, exp, got) {
				t.Errorf("Rank %d) Wrong halo from direction %d.",
					rank, dir.Offset)
			}
			for _, q := range p.Store.HaloFrom(d) {
				for _, o := range procs[nb].Store.Owned {
					if o == q {
						t.Errorf("Halo particle %d aliases rank %d.", q.ID, nb)
					}
				}
			}
		}
	}

	for _, p := range procs {
		p.EndStep()
		assert.Empty(t, p.Store.Halo())
		assert.Equal(t, len(p.Store.Owned), len(p.Store.Merge()))
	}
}

func TestMigrationConservation(t *testing.T) {
	box := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{3, 3, 2}}
	global := topology.PaddedBox(box, 2, 0.05)
	procs := newWorld(t, global, [3]int{3, 3, 2})
	gen := rand.New(rand.NewSource(7))
	all := randomParticles(gen, global, 2000, 2)
	setup(t, procs, all, 0.05)

	n := checkOwnership(t, procs)
	require.Equal(t, 2000, n)

	left := map[uint64]int{}
	arrived := map[uint64]int{}
	mu := sync.Mutex{}
	for _, p := range procs {
		p.OnMigrate = func(l, a []uint64) {
			mu.Lock()
			defer mu.Unlock()
			for _, id := range l {
				left[id]++
			}
			for _, id := range a {
				arrived[id]++
			}
		}
	}

	pruned := 0
	for step := 0; step < 10; step++ {
		requireAll(t, procs, func(p *Process) error {
			if err := p.HaloExchange(); err != nil {
				return err
			}
			p.EndStep()
			return nil
		})
		drift(procs, 0.1)

		stats := make([]MigrationStats, len(procs))
		requireAll(t, procs, func(p *Process) error {
			var err error
			stats[p.Topo.Rank], err = p.Migrate()
			return err
		})

		sent, received := 0, 0
		for rank := range stats {
			sent += stats[rank].Sent
			received += stats[rank].Received
			pruned += stats[rank].Pruned
			assert.Equal(t, len(procs[rank].Store.Owned), stats[rank].Kept)
		}
		assert.Equal(t, sent, received)
		assert.Equal(t, 2000-pruned, checkOwnership(t, procs), "step %d", step)
	}

	assert.True(t, pruned > 0, "expected some particles to leave the box")
	assert.Equal(t, left, arrived)
}

func TestPartitionViolation(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{4, 1, 1}}
	procs := newWorld(t, global, [3]int{4, 1, 1})
	p := particles.NewPrimary(1, geom.Vec{0.5, 0.5, 0.5}, geom.Vec{}, 0.01, 1,
		nil)
	setup(t, procs, []*particles.Primary{p}, 0.01)

	// Three domains in one step is further than migration can carry it.
	procs[0].Store.Owned[0].X[0] = 3.5
	errs := runAll(procs, func(p *Process) error {
		_, err := p.Migrate()
		return err
	})

	if !errors.Is(errs[0], ErrPartitionViolation) {
		t.Errorf("Expected ErrPartitionViolation on rank 0, got %v.", errs[0])
	}
	for rank := 1; rank < len(errs); rank++ {
		assert.NoError(t, errs[rank])
	}
}

func TestNotInitialized(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{1, 1, 1}}
	procs := newWorld(t, global, [3]int{1, 1, 1})
	p := procs[0]

	require.NoError(t, p.Scatter(nil))
	if err := p.HaloExchange(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized from HaloExchange, got %v.", err)
	}
	if _, err := p.Migrate(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized from Migrate, got %v.", err)
	}
	if _, err := p.Gather(0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized from Gather, got %v.", err)
	}

	c := testConstants(procs, 0.1)
	c.Shape = [3]int{2, 1, 1}
	if err := p.BroadcastConstants(c); !errors.Is(err, topology.ErrTopology) {
		t.Errorf("Expected ErrTopology from mismatched constants, got %v.", err)
	}
	c = testConstants(procs, 0)
	assert.Error(t, p.BroadcastConstants(c))
	assert.Nil(t, p.Constants)
}

func TestConstantsBroadcast(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{2, 2, 1}}
	procs := newWorld(t, global, [3]int{2, 2, 1})
	c := testConstants(procs, 0.2)

	requireAll(t, procs, func(p *Process) error {
		if p.IsCoordinator() {
			return p.BroadcastConstants(c)
		}
		return p.BroadcastConstants(nil)
	})

	for _, p := range procs {
		assert.Equal(t, c, p.Constants)
		m, ok := p.Constants.Material(0)
		assert.True(t, ok)
		assert.Equal(t, 3000.0, m.Density)
	}
	assert.True(t, procs[1].Constants != c)

	assert.Equal(t, 4, FaceDirection("-z"))
	assert.Equal(t, 1, FaceDirection("+x"))
	assert.Equal(t, -1, FaceDirection("up"))
}

func TestNewMismatch(t *testing.T) {
	global := geom.Rect{Min: geom.Vec{0, 0, 0}, Max: geom.Vec{2, 1, 1}}
	topo, err := topology.ForRank(global, [3]int{2, 1, 1}, 1)
	require.NoError(t, err)

	w := comm.NewLocalWorld(3)
	if _, err := New(topo, w.Comm(1), nil); !errors.Is(err, topology.ErrTopology) {
		t.Errorf("Expected ErrTopology for size mismatch, got %v.", err)
	}
	w = comm.NewLocalWorld(2)
	if _, err := New(topo, w.Comm(0), nil); !errors.Is(err, topology.ErrTopology) {
		t.Errorf("Expected ErrTopology for rank mismatch, got %v.", err)
	}
	p, err := New(topo, w.Comm(1), nil)
	require.NoError(t, err)
	assert.NotNil(t, p.Log)
}
