/*package comm provides the point-to-point message layer used to move
particles between processes. A Comm posts non-blocking sends and receives
which return Requests; nothing is delivered or guaranteed until Wait is
called on the Request.

Three transports are provided: an in-process world for running every rank
as a goroutine, a websocket transport for running ranks as separate
processes, and an MPI transport which is only compiled with the mpi build
tag.*/
package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Requests which could not complete because
	// their Comm was closed.
	ErrClosed = errors.New("communicator closed")
	// ErrRank is wrapped by errors caused by sending to or receiving from a
	// rank outside the communicator.
	ErrRank = errors.New("rank out of range")
	// ErrNoMPI is returned when the MPI transport is requested from a
	// binary built without the mpi tag.
	ErrNoMPI = errors.New("this binary was built without MPI support; " +
		"rebuild with -tags mpi")
)

// Request is a pending send or receive.
type Request interface {
	// Wait blocks until the operation completes. For receives, it returns
	// the message. For sends, the returned slice is nil. Calling Wait more
	// than once returns the same result.
	Wait() ([]byte, error)
}

// Comm is a communicator shared by a fixed set of ranks. Messages between
// a given pair of ranks with a given tag arrive in the order they were sent
// and are matched with receives in the order those receives were posted.
type Comm interface {
	Rank() int
	Size() int
	// Isend starts sending data to dest. data must not be modified until
	// the returned Request has completed.
	Isend(data []byte, dest, tag int) Request
	// Irecv posts a receive for the next message from source with the
	// given tag.
	Irecv(source, tag int) Request
	// Close releases the communicator. Requests still waiting fail with
	// ErrClosed.
	Close() error
}

// WaitAll waits on every non-nil request in reqs and returns the received
// messages in the same order. It returns the first error after every
// request has finished.
func WaitAll(reqs []Request) ([][]byte, error) {
	out := make([][]byte, len(reqs))
	var first error
	for i, req := range reqs {
		if req == nil {
			continue
		}
		data, err := req.Wait()
		if err != nil && first == nil {
			first = err
		}
		out[i] = data
	}
	return out, first
}

// done is a Request which has already finished.
type done struct {
	data []byte
	err  error
}

func (r done) Wait() ([]byte, error) { return r.data, r.err }

func checkRank(rank, size int) error {
	if rank < 0 || rank >= size {
		return fmt.Errorf("%w: rank %d is outside [0, %d).", ErrRank, rank, size)
	}
	return nil
}
