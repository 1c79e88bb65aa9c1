package lib

// ExampleConfig is the config file printed by the "example" mode.
const ExampleConfig = `[Domain]

#######################
# Required Parameters #
#######################

# Lowermost and uppermost corners of the physical box.
MinX = 0
MinY = 0
MinZ = 0
MaxX = 1
MaxY = 1
MaxZ = 1

# The maximum interaction radius. Particles within two radii of a
# sub-domain's edge are copied to neighboring processes every step.
Radius = 0.05

#######################
# Optional Parameters #
#######################

# The box tiled by the processes is the physical box grown by PadLayers
# interaction radii on every side. Particles which leave this padded box are
# dropped. Default is 2.
# PadLayers = 2

[Grid]

# Number of processes along each axis. The run needs exactly
# ProcsX*ProcsY*ProcsZ processes.
ProcsX = 2
ProcsY = 2
ProcsZ = 1

[Run]

# Transport can be set to one of:
# [ local | socket | mpi ]
# local runs every process as a thread of a single program, socket runs one
# program per process which talk over websockets, and mpi runs one program per
# MPI process (halox must be built with the mpi build tag).
Transport = local

Steps = 20
Dt = 0.001

# Steps after which every particle is collected on rank 0, written as a
# sequence format (e.g. 0..100 - 63 + 200). Step 0 is the initial state.
Gather = "0 + 10 + 20"

# Softening = 0.01
# Seed = 1

# Number of threads per program. -1 uses every core.
# Threads = -1

# Only used by the socket transport. Every program gets the same list of
# addresses, one per rank, and its own Rank (usually set on the command line
# with --Rank).
# Rank = 0
# Peer = 127.0.0.1:9000
# Peer = 127.0.0.1:9001
# Peer = 127.0.0.1:9002
# Peer = 127.0.0.1:9003
# DialTimeout = 30s

[Particles]

# The initial conditions are a Lattice^3 grid of primary particles, each with
# Secondaries secondary particles on a sphere of radius SecondaryRadius.
Lattice = 8
Secondaries = 4
SecondaryRadius = 0.01
ParticleRadius = 0.02
Mass = 1

# Each velocity component is drawn uniformly from [-Speed, Speed].
Speed = 0.5

# Material of the secondaries. Defaults to the first material by name.
Material = sand

[Material "sand"]
Density = 1600
Young = 1e7
Poisson = 0.3
Friction = 0.5

[Material "steel"]
Density = 7850
Young = 2e11
Poisson = 0.29
Friction = 0.4

# Boundaries are either walls, which reflect particles with Value as the
# coefficient of restitution, or open, which let particles leave the box.
# Faces without a boundary are open.
[Boundary "floor"]
Face = -z
Kind = wall
Value = 0.8

[Boundary "ceiling"]
Face = +z
Kind = open
`
