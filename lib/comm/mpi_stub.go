//go:build !mpi
// +build !mpi

package comm

// MPI is unavailable in builds without the mpi tag.
type MPI struct{}

// NewMPI always fails in builds without the mpi tag.
func NewMPI() (*MPI, error) { return nil, ErrNoMPI }

func (m *MPI) Rank() int                                { return 0 }
func (m *MPI) Size() int                                { return 1 }
func (m *MPI) Isend(data []byte, dest, tag int) Request { return done{nil, ErrNoMPI} }
func (m *MPI) Irecv(source, tag int) Request            { return done{nil, ErrNoMPI} }
func (m *MPI) Close() error                             { return nil }
