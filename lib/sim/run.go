package sim

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/halox/lib/comm"
	"github.com/phil-mansfield/halox/lib/exchange"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/particles"
	"github.com/phil-mansfield/halox/lib/topology"
)

// Params controls the step loop.
type Params struct {
	Steps int
	Dt    float64
	// GatherSteps lists the steps after which a snapshot is gathered. Step
	// 0 is the state right after the scatter.
	GatherSteps []int
	// Softening is the potential kernel's softening length.
	Softening float64
	// Constants is only read on the coordinator.
	Constants *exchange.Constants
}

// Summary describes one gathered snapshot.
type Summary struct {
	Step, Particles int
	Mass, Kinetic   float64
}

// Result is what one rank reports at the end of a run.
type Result struct {
	Rank int
	// Summaries is only filled in on the coordinator.
	Summaries []Summary
	// Final is the last gathered snapshot on the coordinator.
	Final      *exchange.Snapshot
	Migrations []exchange.MigrationStats
	// Potential is the total potential energy of the owned particles during
	// the last step.
	Potential float64
}

// Pruned returns the number of particles this rank pruned.
func (r *Result) Pruned() int {
	n := 0
	for _, m := range r.Migrations {
		n += m.Pruned
	}
	return n
}

// Run runs the whole simulation on one rank: the scatter, the constants
// broadcast, and then for every step a halo exchange, a kernel evaluation
// over the merged particles, a drift, a migration and, on the requested
// steps, a gather. initial is only read on the coordinator.
func Run(
	p *exchange.Process, params Params, initial []*particles.Primary,
) (*Result, error) {
	res := &Result{Rank: p.Topo.Rank}

	if err := p.Scatter(initial); err != nil {
		return nil, err
	}
	if err := p.BroadcastConstants(params.Constants); err != nil {
		return nil, err
	}

	gather := map[int]bool{}
	for _, step := range params.GatherSteps {
		gather[step] = true
	}

	if gather[0] {
		if err := gatherStep(p, res, 0); err != nil {
			return nil, err
		}
	}

	for step := 1; step <= params.Steps; step++ {
		if err := p.HaloExchange(); err != nil {
			return nil, fmt.Errorf("Step %d: %w", step, err)
		}

		work := p.Store.Merge()
		pe := PotentialKernel(work, params.Softening)
		res.Potential = floats.Sum(pe[:len(p.Store.Owned)])
		p.EndStep()

		Drift(p.Store.Owned, params.Dt, p.Constants)

		stats, err := p.Migrate()
		if err != nil {
			return nil, fmt.Errorf("Step %d: %w", step, err)
		}
		res.Migrations = append(res.Migrations, stats)

		if gather[step] {
			if err := gatherStep(p, res, step); err != nil {
				return nil, err
			}
		}
	}

	return res, nil
}

func gatherStep(p *exchange.Process, res *Result, step int) error {
	snap, err := p.Gather(step)
	if err != nil {
		return fmt.Errorf("Step %d: %w", step, err)
	}
	if snap == nil {
		return nil
	}

	mass, kinetic := Totals(snap.Particles)
	res.Summaries = append(res.Summaries, Summary{
		Step: step, Particles: len(snap.Particles),
		Mass: mass, Kinetic: kinetic,
	})
	res.Final = snap
	p.Log.Printf("Step %d: %d particles, mass %.6g, kinetic energy %.6g, "+
		"owned potential %.6g.", step, len(snap.Particles), mass, kinetic,
		res.Potential)
	return nil
}

// RunLocal runs every rank of a process grid as a goroutine in this
// process. Results are indexed by rank. If any rank fails, the others are
// woken up and the first error is returned.
func RunLocal(
	global geom.Rect, shape [3]int, params Params,
	initial []*particles.Primary, logger func(rank int) *log.Logger,
) ([]*Result, error) {
	n := topology.NumProcs(shape)
	world := comm.NewLocalWorld(n)
	defer world.Close()

	procs := make([]*exchange.Process, n)
	for rank := range procs {
		topo, err := topology.ForRank(global, shape, rank)
		if err != nil {
			return nil, err
		}
		var lg *log.Logger
		if logger != nil {
			lg = logger(rank)
		}
		procs[rank], err = exchange.New(topo, world.Comm(rank), lg)
		if err != nil {
			return nil, err
		}
	}

	results := make([]*Result, n)
	errs := make([]error, n)
	wg := sync.WaitGroup{}
	for rank := range procs {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			results[rank], errs[rank] = Run(procs[rank], params, initial)
			if errs[rank] != nil {
				world.Close()
			}
		}(rank)
	}
	wg.Wait()

	// A rank which fails first can make its peers fail with ErrClosed, so
	// report the root cause.
	var first error
	for rank, err := range errs {
		if err == nil {
			continue
		}
		err = fmt.Errorf("Rank %d: %w", rank, err)
		if !errors.Is(err, comm.ErrClosed) {
			return results, err
		} else if first == nil {
			first = err
		}
	}
	return results, first
}
