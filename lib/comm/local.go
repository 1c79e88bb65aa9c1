package comm

// LocalWorld is a set of in-process ranks which exchange messages through
// shared memory. Each rank's Comm should be driven by its own goroutine.
// Sends complete immediately: the data is copied into the receiver's
// mailbox, so there is no limit on the number of pending messages.
type LocalWorld struct {
	boxes []*mailbox
}

// NewLocalWorld creates a world with size ranks.
func NewLocalWorld(size int) *LocalWorld {
	w := &LocalWorld{boxes: make([]*mailbox, size)}
	for i := range w.boxes {
		w.boxes[i] = newMailbox()
	}
	return w
}

// Size returns the number of ranks in the world.
func (w *LocalWorld) Size() int { return len(w.boxes) }

// Comm returns the communicator used by the given rank.
func (w *LocalWorld) Comm(rank int) Comm {
	if err := checkRank(rank, len(w.boxes)); err != nil {
		panic(err.Error())
	}
	return &localComm{world: w, rank: rank}
}

// Close fails every pending receive in the world with ErrClosed.
func (w *LocalWorld) Close() {
	for _, box := range w.boxes {
		box.fail(ErrClosed)
	}
}

type localComm struct {
	world *LocalWorld
	rank  int
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return len(c.world.boxes) }

func (c *localComm) Isend(data []byte, dest, tag int) Request {
	if err := checkRank(dest, c.Size()); err != nil {
		return done{nil, err}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.world.boxes[dest].deliver(c.rank, tag, buf)
	return done{}
}

func (c *localComm) Irecv(source, tag int) Request {
	if err := checkRank(source, c.Size()); err != nil {
		return done{nil, err}
	}
	return c.world.boxes[c.rank].post(source, tag)
}

// Close fails this rank's pending receives. Other ranks are unaffected.
func (c *localComm) Close() error {
	c.world.boxes[c.rank].fail(ErrClosed)
	return nil
}
