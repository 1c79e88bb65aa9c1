package lib

import (
	"fmt"
	"strings"
)

// Transport indicates how the processes of a run talk to one another.
type Transport int

const (
	// LocalTransport runs every rank as a goroutine in one OS process.
	LocalTransport Transport = iota
	// SocketTransport runs one rank per OS process over websockets.
	SocketTransport
	// MPITransport runs one rank per MPI process.
	MPITransport
)

var transportNames = []string{"local", "socket", "mpi"}

// ParseTransport converts the Transport config variable to a Transport.
// Case is ignored.
func ParseTransport(s string) (Transport, error) {
	for i, name := range transportNames {
		if strings.ToLower(strings.TrimSpace(s)) == name {
			return Transport(i), nil
		}
	}
	return 0, fmt.Errorf("Transport was set to '%s', but it must be one of "+
		"%s.", s, strings.Join(transportNames, ", "))
}

func (t Transport) String() string {
	if t < 0 || int(t) >= len(transportNames) {
		return fmt.Sprintf("Transport(%d)", int(t))
	}
	return transportNames[t]
}
