package lib

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/halox/lib/eq"
	"github.com/phil-mansfield/halox/lib/geom"
	"github.com/phil-mansfield/halox/lib/topology"
)

func TestExampleConfig(t *testing.T) {
	raw, err := ParseConfigString(ExampleConfig)
	require.NoError(t, err)
	args, err := raw.Process()
	require.NoError(t, err)

	assert.Equal(t, [3]int{2, 2, 1}, args.Shape)
	assert.Equal(t, LocalTransport, args.Transport)
	assert.Equal(t, []int{0, 10, 20}, args.GatherSteps)
	assert.Equal(t, 30*time.Second, args.DialTimeout)

	global := geom.Rect{
		Min: geom.Vec{-0.1, -0.1, -0.1}, Max: geom.Vec{1.1, 1.1, 1.1},
	}
	if !eq.VecEps(args.Global.Min, global.Min, 1e-12) ||
		!eq.VecEps(args.Global.Max, global.Max, 1e-12) {
		t.Errorf("Expected padded box %v, got %v.", global, args.Global)
	}

	c := args.Constants
	require.Len(t, c.Materials, 2)
	assert.Equal(t, "sand", c.Materials[0].Name)
	assert.Equal(t, 1, c.Materials[1].ID)
	assert.Equal(t, 1600.0, args.Lattice.Density)
	require.Len(t, c.Boundaries, 2)
	assert.Equal(t, "ceiling", c.Boundaries[0].Name)
	assert.Equal(t, "open", c.Boundaries[0].Kind)
	assert.Equal(t, "-z", c.Boundaries[1].Face)
	assert.Equal(t, args.Global, c.Global)
	assert.Equal(t, args.Shape, c.Shape)

	assert.NoError(t, Check(args, 4, 3))
}

func TestParseConfigFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "halox.config")
	text := "[Grid]\nProcsX = 3\n[Run]\nPeer = a:1\nPeer = b:2\nPeer = c:3\n"
	require.NoError(t, os.WriteFile(fname, []byte(text), 0644))

	raw, err := ParseConfigFile(fname)
	require.NoError(t, err)
	assert.Equal(t, 3, raw.Grid.ProcsX)
	assert.Equal(t, 1, raw.Grid.ProcsY)
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, raw.Run.Peer)
	assert.Equal(t, DefaultRawArgs().Domain, raw.Domain)

	_, err = ParseConfigFile(filepath.Join(t.TempDir(), "missing.config"))
	assert.Error(t, err)
	_, err = ParseConfigString("[Run]\nNotAVariable = 1\n")
	assert.Error(t, err)
}

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		argv       []string
		mode, file string
		overrides  map[string]string
		valid      bool
	}{
		{[]string{}, "", "", nil, false},
		{[]string{"help"}, "help", "", map[string]string{}, true},
		{[]string{"run", "a.config"}, "run", "a.config",
			map[string]string{}, true},
		{[]string{"run", "a.config", "--Rank", "3", "--Steps=20"}, "run",
			"a.config", map[string]string{"Rank": "3", "Steps": "20"}, true},
		{[]string{"run", "a.config", "--NotAVariable", "3"}, "", "", nil,
			false},
		{[]string{"run", "a.config", "b.config"}, "", "", nil, false},
	}

	for i := range tests {
		mode, file, overrides, err := ParseCommandLine(tests[i].argv)
		if tests[i].valid && err != nil {
			t.Errorf("%d) Expected valid command line, got error '%s'.",
				i, err.Error())
		} else if !tests[i].valid && err == nil {
			t.Errorf("%d) Expected invalid command line, got no error.", i)
		} else if tests[i].valid {
			if mode != tests[i].mode || file != tests[i].file {
				t.Errorf("%d) Expected mode '%s' and file '%s', got '%s' "+
					"and '%s'.", i, tests[i].mode, tests[i].file, mode, file)
			}
			assert.Equal(t, tests[i].overrides, overrides)
		}
	}
}

func TestOverwrite(t *testing.T) {
	raw := DefaultRawArgs()
	raw.Run.Peer = []string{"old:1"}

	err := raw.Overwrite(map[string]string{
		"Rank": "2", "Gather": "0..4 - 2", "Peer": "a:1, b:2,c:3",
		"Transport": "socket", "MaxX": "2.5",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, raw.Run.Rank)
	assert.Equal(t, "0..4 - 2", raw.Run.Gather)
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, raw.Run.Peer)
	assert.Equal(t, "socket", raw.Run.Transport)
	assert.Equal(t, 2.5, raw.Domain.MaxX)

	assert.Error(t, raw.Overwrite(map[string]string{"Density": "1"}))
	assert.Error(t, raw.Overwrite(map[string]string{"Steps": "many"}))
	assert.NoError(t, raw.Overwrite(map[string]string{}))
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		text     string
		topology bool
	}{
		{"[Domain]\nMaxX = 0\n", false},
		{"[Domain]\nRadius = 0\n", false},
		{"[Domain]\nPadLayers = -1\n", false},
		{"[Grid]\nProcsY = 0\n", true},
		{"[Run]\nTransport = carrier-pigeon\n", false},
		{"[Run]\nDt = 0\n", false},
		{"[Run]\nSteps = 5\nGather = 0..6\n", false},
		{"[Run]\nThreads = 0\n", false},
		{"[Run]\nDialTimeout = soon\n", false},
		{"[Particles]\nLattice = 0\n", false},
		{"[Particles]\nMaterial = clay\n", false},
		{"[Material \"clay\"]\nDensity = -1\n", false},
		{"[Material \"clay\"]\nDensity = 1\nPoisson = 0.5\n", false},
		{"[Boundary \"b\"]\nFace = +w\nKind = wall\n", false},
		{"[Boundary \"b\"]\nFace = +x\nKind = sticky\n", false},
		{"[Boundary \"b\"]\nFace = +x\nKind = wall\nValue = 2\n", false},
		{"[Boundary \"a\"]\nFace = +x\nKind = open\n" +
			"[Boundary \"b\"]\nFace = +X\nKind = wall\n", false},
	}

	for i := range tests {
		raw, err := ParseConfigString(tests[i].text)
		if err != nil {
			t.Errorf("%d) Could not parse config: '%s'.", i, err.Error())
			continue
		}
		_, err = raw.Process()
		if err == nil {
			t.Errorf("%d) Expected an error, got none.", i)
		} else if errors.Is(err, topology.ErrTopology) != tests[i].topology {
			t.Errorf("%d) Expected topology error = %v, got '%s'.",
				i, tests[i].topology, err.Error())
		}
	}

	raw := DefaultRawArgs()
	args, err := raw.Process()
	require.NoError(t, err)
	assert.Empty(t, args.GatherSteps)
	assert.Equal(t, 1.0, args.Lattice.Density)
	assert.Equal(t, uint64(1), args.Lattice.Seed)

	p := args.SimParams()
	assert.Equal(t, args.Steps, p.Steps)
	assert.Equal(t, args.Constants, p.Constants)
}

func TestCheck(t *testing.T) {
	process := func(text string) *Args {
		raw, err := ParseConfigString(text)
		require.NoError(t, err)
		args, err := raw.Process()
		require.NoError(t, err)
		return args
	}

	tests := []struct {
		text       string
		size, rank int
		valid      bool
		topology   bool
	}{
		{"[Grid]\nProcsX = 2\n", 2, 1, true, false},
		{"[Grid]\nProcsX = 2\n", 3, 0, false, true},
		{"[Grid]\nProcsX = 2\n", 2, 2, false, true},
		{"[Grid]\nProcsX = 20\n", 20, 0, false, true},
		{"[Grid]\nProcsX = 2\n[Run]\nTransport = socket\nPeer = a:1\n",
			2, 0, false, true},
		{"[Grid]\nProcsX = 2\n[Run]\nTransport = socket\nPeer = a:1\n" +
			"Peer = b:1\n", 2, 0, true, false},
		{"[Particles]\nLattice = 40\nParticleRadius = 0.02\n", 1, 0,
			false, false},
	}

	for i := range tests {
		err := Check(process(tests[i].text), tests[i].size, tests[i].rank)
		if tests[i].valid && err != nil {
			t.Errorf("%d) Expected valid run, got error '%s'.", i, err.Error())
		} else if !tests[i].valid && err == nil {
			t.Errorf("%d) Expected invalid run, got no error.", i)
		} else if err != nil &&
			errors.Is(err, topology.ErrTopology) != tests[i].topology {
			t.Errorf("%d) Expected topology error = %v, got '%s'.",
				i, tests[i].topology, err.Error())
		}
	}
}

func TestTransport(t *testing.T) {
	tests := []struct {
		s     string
		t     Transport
		valid bool
	}{
		{"local", LocalTransport, true},
		{"Socket", SocketTransport, true},
		{" MPI ", MPITransport, true},
		{"tcp", 0, false},
	}

	for i := range tests {
		tr, err := ParseTransport(tests[i].s)
		if tests[i].valid != (err == nil) {
			t.Errorf("%d) Expected valid = %v, got error %v.",
				i, tests[i].valid, err)
		} else if tests[i].valid && tr != tests[i].t {
			t.Errorf("%d) Expected %s, got %s.", i, tests[i].t, tr)
		}
	}
	assert.Equal(t, "socket", SocketTransport.String())
	assert.Equal(t, "Transport(7)", Transport(7).String())
}

func TestSetThreads(t *testing.T) {
	n, err := SetThreads(-1)
	require.NoError(t, err)
	assert.True(t, n >= 1)

	n, err = SetThreads(1)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = SetThreads(0)
	assert.Error(t, err)
	_, err = SetThreads(1 << 20)
	assert.Error(t, err)

	SetThreads(-1)
}
