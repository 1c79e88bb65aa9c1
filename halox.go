package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phil-mansfield/halox/lib"
	"github.com/phil-mansfield/halox/lib/comm"
	h_error "github.com/phil-mansfield/halox/lib/error"
	"github.com/phil-mansfield/halox/lib/exchange"
	"github.com/phil-mansfield/halox/lib/particles"
	"github.com/phil-mansfield/halox/lib/sim"
	"github.com/phil-mansfield/halox/lib/topology"
	"github.com/phil-mansfield/halox/lib/wire"
)

const helpText = `halox runs a particle simulation split across a grid of processes.

Usage:
    $ halox <mode> [<config file>] [--<Var1> <Value1>] [--<Var2> <Value2>]

Modes:
    help     Print this message.
    example  Print an example config file which documents every variable.
    check    Read a config file and check it for errors without running.
    run      Run the simulation described by a config file.

Any variable in the [Domain], [Grid], [Run], or [Particles] sections of the
config file can be overwritten on the command line, e.g.
    $ halox run sim.config --Rank 3 --Steps 100
`

func main() {
	// Parse arguements.
	mode, configFile, cmdArgs, err := lib.ParseCommandLine(os.Args[1:])
	if err != nil {
		h_error.External("%s", err.Error())
		return
	}

	switch mode {
	case "help":
		fmt.Printf("halox version %d\n\n%s", lib.Version, helpText)
		return
	case "example":
		fmt.Print(lib.ExampleConfig)
		return
	case "check", "run":
	default:
		h_error.External(
			"You attempted to run halox in the mode '%s', but the only "+
				"valid modes are 'help', 'example', 'check', and 'run'.", mode,
		)
		return
	}

	if configFile == "" {
		h_error.External("The '%s' mode needs a config file. Run "+
			"'halox example' to see one.", mode)
		return
	}
	rawArgs, err := lib.ParseConfigFile(configFile)
	if err != nil {
		h_error.External("Could not read %s: %s", configFile, err.Error())
		return
	}
	if err = rawArgs.Overwrite(cmdArgs); err != nil {
		h_error.External("%s", err.Error())
		return
	}

	// Do processing that doesn't need external validation.
	args, err := rawArgs.Process()
	if err != nil {
		h_error.External("%s", err.Error())
		return
	}

	switch mode {
	case "check":
		Check(args)
	case "run":
		Run(args)
	}
}

// Check runs halox's "check" mode which tests for errors in the configuration
// arguments.
func Check(args *lib.Args) {
	size, rank := topology.NumProcs(args.Shape), 0
	if args.Transport == lib.SocketTransport {
		size, rank = len(args.Peers), args.Rank
	}

	if err := lib.Check(args, size, rank); err != nil {
		h_error.External("%s", err.Error())
		return
	}
	fmt.Println("No errors detected.")
}

// Run runs halox's "run" mode, which runs the simulation with the chosen
// transport.
func Run(args *lib.Args) {
	threads, err := lib.SetThreads(args.Threads)
	if err != nil {
		h_error.External("%s", err.Error())
		return
	}
	log.Printf("halox version %d: %d x %d x %d process grid over the %s "+
		"transport, %d steps, %d threads.", lib.Version, args.Shape[0],
		args.Shape[1], args.Shape[2], args.Transport, args.Steps, threads)

	var res *sim.Result
	switch args.Transport {
	case lib.LocalTransport:
		res, err = runLocal(args)
	case lib.SocketTransport:
		res, err = runSocket(args)
	case lib.MPITransport:
		res, err = runMPI(args)
	}

	if err != nil {
		fail(err)
		return
	}
	if res != nil {
		report(res)
	}
}

func runLocal(args *lib.Args) (*sim.Result, error) {
	if err := lib.Check(args, topology.NumProcs(args.Shape), 0); err != nil {
		return nil, err
	}
	initial := sim.Lattice(args.Lattice)
	results, err := sim.RunLocal(args.Global, args.Shape, args.SimParams(),
		initial, exchange.RankLogger)
	if err != nil {
		return nil, err
	}

	pruned := 0
	for _, r := range results {
		pruned += r.Pruned()
	}
	res := results[exchange.Coordinator]
	log.Printf("%d particles were pruned across all ranks.", pruned)
	return res, nil
}

func runSocket(args *lib.Args) (*sim.Result, error) {
	if err := lib.Check(args, len(args.Peers), args.Rank); err != nil {
		return nil, err
	}
	c, err := comm.NewSocket(comm.SocketConfig{
		Rank: args.Rank, Peers: args.Peers, DialTimeout: args.DialTimeout,
		Logger: exchange.RankLogger(args.Rank),
	})
	if err != nil {
		return nil, err
	}
	return runRank(args, c)
}

func runMPI(args *lib.Args) (*sim.Result, error) {
	m, err := comm.NewMPI()
	if err != nil {
		return nil, err
	}
	if err := lib.Check(args, m.Size(), m.Rank()); err != nil {
		m.Close()
		return nil, err
	}
	return runRank(args, m)
}

// runRank runs the single rank c belongs to. Only the coordinator returns a
// result.
func runRank(args *lib.Args, c comm.Comm) (*sim.Result, error) {
	defer c.Close()

	topo, err := topology.ForRank(args.Global, args.Shape, c.Rank())
	if err != nil {
		return nil, err
	}
	p, err := exchange.New(topo, c, exchange.RankLogger(c.Rank()))
	if err != nil {
		return nil, err
	}

	var initial []*particles.Primary
	if p.IsCoordinator() {
		initial = sim.Lattice(args.Lattice)
	}

	res, err := sim.Run(p, args.SimParams(), initial)
	if err != nil {
		return nil, err
	}
	p.Log.Printf("Finished: %d particles pruned.", res.Pruned())

	if !p.IsCoordinator() {
		return nil, nil
	}
	return res, nil
}

// report prints the coordinator's gathered snapshots.
func report(res *sim.Result) {
	if len(res.Summaries) == 0 {
		fmt.Println("No snapshots were gathered. Set Gather to collect some.")
		return
	}
	fmt.Printf("%6s %10s %14s %14s\n", "# Step", "Particles", "Mass",
		"Kinetic")
	for _, s := range res.Summaries {
		fmt.Printf("%6d %10d %14.6g %14.6g\n", s.Step, s.Particles, s.Mass,
			s.Kinetic)
	}
}

// isInternal returns true if err means that halox itself is broken rather
// than that it was configured or launched incorrectly.
func isInternal(err error) bool {
	return errors.Is(err, exchange.ErrPartitionViolation) ||
		errors.Is(err, particles.ErrAttachment) ||
		errors.Is(err, wire.ErrAttached) ||
		errors.Is(err, wire.ErrFormat)
}

func fail(err error) {
	if isInternal(err) {
		h_error.Internal("%s", err.Error())
	} else {
		h_error.External("%s", err.Error())
	}
}
