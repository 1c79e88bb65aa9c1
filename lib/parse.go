package lib

/* parse.go reads config files and command line arguments into RawArgs and
turns them into Args. */

import (
	"flag"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/halox/lib/exchange"
	"github.com/phil-mansfield/halox/lib/format"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/sim"
	"github.com/phil-mansfield/halox/lib/topology"
)

// DomainSection is the [Domain] section of a config file.
type DomainSection struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
	PadLayers        int
	Radius           float64
}

// GridSection is the [Grid] section of a config file.
type GridSection struct {
	ProcsX, ProcsY, ProcsZ int
}

// RunSection is the [Run] section of a config file.
type RunSection struct {
	Transport   string
	Steps       int
	Dt          float64
	Softening   float64
	Gather      string
	Threads     int
	Seed        int64
	Rank        int
	Peer        []string
	DialTimeout string
}

// ParticlesSection is the [Particles] section of a config file.
type ParticlesSection struct {
	Lattice         int
	Secondaries     int
	SecondaryRadius float64
	ParticleRadius  float64
	Mass            float64
	Speed           float64
	Material        string
}

// MaterialSection is one [Material "name"] section of a config file.
type MaterialSection struct {
	Density, Young, Poisson, Friction float64
}

// BoundarySection is one [Boundary "name"] section of a config file.
type BoundarySection struct {
	Face, Kind string
	Value      float64
}

// RawArgs stores the unprocessed values which the user assigned to each config
// variable.
type RawArgs struct {
	Domain    DomainSection
	Grid      GridSection
	Run       RunSection
	Particles ParticlesSection
	Material  map[string]*MaterialSection
	Boundary  map[string]*BoundarySection
}

// Args stores configuration information. It is a post-processed version of
// RawArgs.
type Args struct {
	// Box is the physical box and Global is the padded box tiled by the
	// process grid.
	Box, Global geom.Rect
	Shape       [3]int
	Radius      float64

	Transport   Transport
	Steps       int
	Dt          float64
	Softening   float64
	GatherSteps []int
	Threads     int
	Rank        int
	Peers       []string
	DialTimeout time.Duration

	Lattice   sim.LatticeParams
	Constants *exchange.Constants
}

// DefaultRawArgs returns the values used for every variable which isn't set
// in the config file or on the command line.
func DefaultRawArgs() *RawArgs {
	return &RawArgs{
		Domain: DomainSection{
			MinX: 0, MinY: 0, MinZ: 0, MaxX: 1, MaxY: 1, MaxZ: 1,
			PadLayers: 2, Radius: 0.05,
		},
		Grid: GridSection{ProcsX: 1, ProcsY: 1, ProcsZ: 1},
		Run: RunSection{
			Transport: "local", Steps: 10, Dt: 1e-3, Softening: 0.01,
			Gather: "", Threads: -1, Seed: 1, Rank: 0, DialTimeout: "30s",
		},
		Particles: ParticlesSection{
			Lattice: 8, Secondaries: 4, SecondaryRadius: 0.01,
			ParticleRadius: 0.02, Mass: 1, Speed: 0.1,
		},
	}
}

// ParseCommandLine parses the command line arguments and returns the mode
// halox is being run in, the name of the config file, and any variables which
// were set. argv should not contain the program name. Expects that the
// arguments are presented in the order:
// $ halox <mode> <config file> [--<Var1> <Value1>] [--<Var2> <Value2>]
// The "help" and "example" modes don't need a config file.
func ParseCommandLine(argv []string) (
	mode, configFile string, overrides map[string]string, err error,
) {
	overrides = map[string]string{}
	if len(argv) == 0 {
		return "", "", nil, fmt.Errorf("No mode was given. Run 'halox help' " +
			"for a list of modes.")
	}
	mode = argv[0]
	if len(argv) == 1 {
		return mode, "", overrides, nil
	}
	configFile = argv[1]

	fs := flag.NewFlagSet("halox", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	values := map[string]*string{}
	for name := range flagSections() {
		values[name] = fs.String(name, "", "")
	}

	if err := fs.Parse(argv[2:]); err != nil {
		return "", "", nil, fmt.Errorf("Could not parse command line "+
			"variables: %s", err.Error())
	}
	if fs.NArg() > 0 {
		return "", "", nil, fmt.Errorf("Unexpected command line argument "+
			"'%s'. Variables must be given as --<Var> <Value>.", fs.Arg(0))
	}

	fs.Visit(func(f *flag.Flag) { overrides[f.Name] = *values[f.Name] })
	return mode, configFile, overrides, nil
}

// ParseConfigFile parses arguements from a config file. Variables which
// aren't in the file keep their default values.
func ParseConfigFile(fileName string) (*RawArgs, error) {
	raw := DefaultRawArgs()
	if err := gcfg.ReadFileInto(raw, fileName); err != nil {
		return nil, err
	}
	return raw, nil
}

// ParseConfigString is ParseConfigFile for the text of a config file.
func ParseConfigString(text string) (*RawArgs, error) {
	raw := DefaultRawArgs()
	if err := gcfg.ReadStringInto(raw, text); err != nil {
		return nil, err
	}
	return raw, nil
}

// Overwrite sets the variables named in overrides, which are usually the
// ones given on the command line. Multi-valued variables are replaced
// rather than appended to, and take comma-separated lists.
func (raw *RawArgs) Overwrite(overrides map[string]string) error {
	sections := flagSections()

	names := []string{}
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	sb := &strings.Builder{}
	for _, name := range names {
		section, ok := sections[name]
		if !ok {
			return fmt.Errorf("'%s' is not a config variable which can be "+
				"set from the command line.", name)
		}

		fmt.Fprintf(sb, "[%s]\n", section)
		field := reflect.ValueOf(raw).Elem().
			FieldByName(section).FieldByName(name)
		if field.Kind() == reflect.Slice {
			field.Set(reflect.Zero(field.Type()))
			for _, val := range strings.Split(overrides[name], ",") {
				val = strings.TrimSpace(val)
				fmt.Fprintf(sb, "%s = %s\n", name, quote(val))
			}
		} else {
			fmt.Fprintf(sb, "%s = %s\n", name, quote(overrides[name]))
		}
	}

	if sb.Len() == 0 {
		return nil
	}
	return gcfg.ReadStringInto(raw, sb.String())
}

// Process converts the raw user input to a format which is more useful for
// internal functions. Very simple validation will be done here, but nothing
// which requires knowing how many processes are running.
func (raw *RawArgs) Process() (*Args, error) {
	args := &Args{}
	dom, run := &raw.Domain, &raw.Run

	args.Box = geom.Rect{
		Min: geom.Vec{dom.MinX, dom.MinY, dom.MinZ},
		Max: geom.Vec{dom.MaxX, dom.MaxY, dom.MaxZ},
	}
	if err := args.Box.Valid(); err != nil {
		return nil, fmt.Errorf("The [Domain] box is invalid: %s", err.Error())
	}
	if dom.Radius <= 0 {
		return nil, fmt.Errorf("Radius is set to %g, but it must be "+
			"positive.", dom.Radius)
	} else if dom.PadLayers < 0 {
		return nil, fmt.Errorf("PadLayers is set to %d, but it can't be "+
			"negative.", dom.PadLayers)
	}
	args.Radius = dom.Radius
	args.Global = topology.PaddedBox(args.Box, dom.PadLayers, dom.Radius)

	args.Shape = [3]int{raw.Grid.ProcsX, raw.Grid.ProcsY, raw.Grid.ProcsZ}
	nProcs := topology.NumProcs(args.Shape)
	if err := topology.Validate(args.Shape, nProcs); err != nil {
		return nil, err
	}

	var err error
	if args.Transport, err = ParseTransport(run.Transport); err != nil {
		return nil, err
	}
	if run.Steps < 0 {
		return nil, fmt.Errorf("Steps is set to %d, but it can't be "+
			"negative.", run.Steps)
	} else if run.Dt <= 0 {
		return nil, fmt.Errorf("Dt is set to %g, but it must be positive.",
			run.Dt)
	} else if run.Softening < 0 {
		return nil, fmt.Errorf("Softening is set to %g, but it can't be "+
			"negative.", run.Softening)
	}
	args.Steps, args.Dt, args.Softening = run.Steps, run.Dt, run.Softening

	args.GatherSteps, err = format.ExpandStepFormat(run.Gather, run.Steps)
	if err != nil {
		return nil, fmt.Errorf("Could not parse Gather = '%s': %s",
			run.Gather, err.Error())
	}

	if run.Threads == 0 || run.Threads < -1 {
		return nil, fmt.Errorf("Threads is set to %d, but it must be "+
			"positive or -1.", run.Threads)
	}
	args.Threads, args.Rank = run.Threads, run.Rank
	args.Peers = append([]string{}, run.Peer...)
	if args.DialTimeout, err = time.ParseDuration(run.DialTimeout); err != nil {
		return nil, fmt.Errorf("Could not parse DialTimeout = '%s': %s",
			run.DialTimeout, err.Error())
	}

	materials, err := raw.materials()
	if err != nil {
		return nil, err
	}
	boundaries, err := raw.boundaries()
	if err != nil {
		return nil, err
	}
	args.Constants = &exchange.Constants{
		Materials: materials, Boundaries: boundaries,
		Box: args.Box, Global: args.Global, Shape: args.Shape,
		Radius: args.Radius,
	}

	if args.Lattice, err = raw.lattice(args.Box, materials); err != nil {
		return nil, err
	}
	args.Lattice.Seed = uint64(run.Seed)

	return args, nil
}

// SimParams returns the parameters of the step loop.
func (args *Args) SimParams() sim.Params {
	return sim.Params{
		Steps: args.Steps, Dt: args.Dt, GatherSteps: args.GatherSteps,
		Softening: args.Softening, Constants: args.Constants,
	}
}

func (raw *RawArgs) materials() ([]exchange.Material, error) {
	names := []string{}
	for name := range raw.Material {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []exchange.Material{}
	for i, name := range names {
		m := raw.Material[name]
		if m.Density <= 0 {
			return nil, fmt.Errorf("Material '%s' has Density = %g, but it "+
				"must be positive.", name, m.Density)
		} else if m.Poisson < -1 || m.Poisson >= 0.5 {
			return nil, fmt.Errorf("Material '%s' has Poisson = %g, but it "+
				"must be in the range [-1, 0.5).", name, m.Poisson)
		}
		out = append(out, exchange.Material{
			ID: i, Name: name, Density: m.Density, Young: m.Young,
			Poisson: m.Poisson, Friction: m.Friction,
		})
	}
	return out, nil
}

func (raw *RawArgs) boundaries() ([]exchange.Boundary, error) {
	names := []string{}
	for name := range raw.Boundary {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []exchange.Boundary{}
	faces := map[string]string{}
	for _, name := range names {
		b := raw.Boundary[name]
		face, kind := strings.ToLower(b.Face), strings.ToLower(b.Kind)

		if exchange.FaceDirection(face) < 0 {
			return nil, fmt.Errorf("Boundary '%s' has Face = '%s', but it "+
				"must be one of -x, +x, -y, +y, -z, +z.", name, b.Face)
		} else if other, ok := faces[face]; ok {
			return nil, fmt.Errorf("Boundaries '%s' and '%s' are both on "+
				"the face %s.", other, name, face)
		}
		faces[face] = name

		switch kind {
		case "wall":
			if b.Value < 0 || b.Value > 1 {
				return nil, fmt.Errorf("Wall boundary '%s' has Value = %g, "+
					"but its restitution must be in the range [0, 1].",
					name, b.Value)
			}
		case "open":
		default:
			return nil, fmt.Errorf("Boundary '%s' has Kind = '%s', but it "+
				"must be wall or open.", name, b.Kind)
		}

		out = append(out, exchange.Boundary{
			Name: name, Face: face, Kind: kind, Value: b.Value,
		})
	}
	return out, nil
}

func (raw *RawArgs) lattice(
	box geom.Rect, materials []exchange.Material,
) (sim.LatticeParams, error) {
	par := &raw.Particles
	lp := sim.LatticeParams{
		Box: box, N: par.Lattice, Secondaries: par.Secondaries,
		SecondaryRadius: par.SecondaryRadius, Radius: par.ParticleRadius,
		Mass: par.Mass, Density: 1, Speed: par.Speed,
	}

	switch {
	case par.Lattice < 1:
		return lp, fmt.Errorf("Lattice is set to %d, but it must be "+
			"positive.", par.Lattice)
	case par.Secondaries < 0:
		return lp, fmt.Errorf("Secondaries is set to %d, but it can't be "+
			"negative.", par.Secondaries)
	case par.SecondaryRadius < 0:
		return lp, fmt.Errorf("SecondaryRadius is set to %g, but it can't "+
			"be negative.", par.SecondaryRadius)
	case par.ParticleRadius <= 0:
		return lp, fmt.Errorf("ParticleRadius is set to %g, but it must be "+
			"positive.", par.ParticleRadius)
	case par.Mass <= 0:
		return lp, fmt.Errorf("Mass is set to %g, but it must be positive.",
			par.Mass)
	case par.Speed < 0:
		return lp, fmt.Errorf("Speed is set to %g, but it can't be "+
			"negative.", par.Speed)
	}

	if par.Material == "" {
		if len(materials) > 0 {
			lp.Density = materials[0].Density
		}
		return lp, nil
	}
	for _, m := range materials {
		if m.Name == par.Material {
			lp.Density = m.Density
			return lp, nil
		}
	}
	return lp, fmt.Errorf("Particles use the material '%s', but there is "+
		"no [Material \"%s\"] section.", par.Material, par.Material)
}

// flagSections maps every variable which can be set from the command line to
// the name of its section. Variable names are unique across sections.
func flagSections() map[string]string {
	out := map[string]string{}
	t := reflect.TypeOf(RawArgs{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		if section.Type.Kind() != reflect.Struct {
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			out[section.Type.Field(j).Name] = section.Name
		}
	}
	return out
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
