package comm

import (
	"sync"
)

// mailbox holds the messages which have arrived at one rank but have not
// yet been waited on. Every (source, tag) pair has its own queue. Sends and
// receives are numbered separately within a queue, so the n-th posted
// receive always gets the n-th message regardless of the order in which
// Wait is called.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[mailKey]*queue
	err    error
}

type mailKey struct {
	src, tag int
}

type queue struct {
	msgs           map[int][]byte
	sent, received int
}

func newMailbox() *mailbox {
	m := &mailbox{queues: map[mailKey]*queue{}}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) queue(key mailKey) *queue {
	q, ok := m.queues[key]
	if !ok {
		q = &queue{msgs: map[int][]byte{}}
		m.queues[key] = q
	}
	return q
}

// deliver adds a message to the mailbox. The mailbox takes ownership of
// data.
func (m *mailbox) deliver(src, tag int, data []byte) {
	m.mu.Lock()
	q := m.queue(mailKey{src, tag})
	q.msgs[q.sent] = data
	q.sent++
	m.mu.Unlock()
	m.cond.Broadcast()
}

// post reserves the next message from src with the given tag.
func (m *mailbox) post(src, tag int) *recvRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mailKey{src, tag}
	q := m.queue(key)
	seq := q.received
	q.received++
	return &recvRequest{box: m, key: key, seq: seq}
}

// fail wakes every waiting receive with err. Messages which have already
// arrived can still be received.
func (m *mailbox) fail(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
	m.cond.Broadcast()
}

type recvRequest struct {
	box      *mailbox
	key      mailKey
	seq      int
	finished bool
	data     []byte
	err      error
}

func (r *recvRequest) Wait() ([]byte, error) {
	if r.finished {
		return r.data, r.err
	}

	m := r.box
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[r.key]
	for {
		if data, ok := q.msgs[r.seq]; ok {
			delete(q.msgs, r.seq)
			r.data = data
			break
		} else if m.err != nil {
			r.err = m.err
			break
		}
		m.cond.Wait()
	}

	r.finished = true
	return r.data, r.err
}
