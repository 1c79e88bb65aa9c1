package comm

/* socket.go contains a Comm which runs each rank as its own process and
connects them with websockets. */

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	socketPath   = "/halox"
	rankHeader   = "X-Halox-Rank"
	tagBytes     = 8
	dialInterval = 50 * time.Millisecond
)

// SocketConfig describes one rank of a websocket world.
type SocketConfig struct {
	Rank int
	// Peers[i] is the host:port that rank i listens on. Every rank must be
	// given the same list.
	Peers []string
	// DialTimeout is how long to keep retrying a connection to a peer which
	// hasn't started listening yet.
	DialTimeout time.Duration
	// Listener, if non-nil, is used instead of listening on Peers[Rank].
	Listener net.Listener
	// Logger, if non-nil, receives connection errors.
	Logger *log.Logger
}

// Socket is a Comm where every rank is a separate process. Each rank
// listens for websocket connections from its peers and dials a single
// outgoing connection to each peer the first time it sends to it. All
// messages to one peer are written in order by one goroutine, so ordering
// between a pair of ranks is the ordering of the underlying connection.
type Socket struct {
	cfg    SocketConfig
	box    *mailbox
	server *http.Server
	ln     net.Listener

	mu      sync.Mutex
	senders map[int]*sender
	inbound map[*websocket.Conn]bool
	closed  bool
	writers sync.WaitGroup
}

// NewSocket starts listening for peers and returns the rank's Comm.
func NewSocket(cfg SocketConfig) (*Socket, error) {
	if err := checkRank(cfg.Rank, len(cfg.Peers)); err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}

	ln := cfg.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Peers[cfg.Rank])
		if err != nil {
			return nil, fmt.Errorf("Rank %d could not listen on %s: %w",
				cfg.Rank, cfg.Peers[cfg.Rank], err)
		}
	}

	s := &Socket{
		cfg: cfg, box: newMailbox(), ln: ln,
		senders: map[int]*sender{}, inbound: map[*websocket.Conn]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(socketPath, s.handle)
	s.server = &http.Server{Handler: mux}
	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logf("Server stopped: %s", err.Error())
			s.box.fail(err)
		}
	}()

	return s, nil
}

func (s *Socket) Rank() int { return s.cfg.Rank }
func (s *Socket) Size() int { return len(s.cfg.Peers) }

// Addr returns the address the rank is listening on.
func (s *Socket) Addr() net.Addr { return s.ln.Addr() }

func (s *Socket) Isend(data []byte, dest, tag int) Request {
	if err := checkRank(dest, s.Size()); err != nil {
		return done{nil, err}
	}

	if dest == s.cfg.Rank {
		buf := make([]byte, len(data))
		copy(buf, data)
		s.box.deliver(dest, tag, buf)
		return done{}
	}

	snd, err := s.sender(dest)
	if err != nil {
		return done{nil, err}
	}
	return snd.push(tag, data)
}

func (s *Socket) Irecv(source, tag int) Request {
	if err := checkRank(source, s.Size()); err != nil {
		return done{nil, err}
	}
	return s.box.post(source, tag)
}

// Close flushes every pending send, shuts down the listener and closes every
// connection.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, snd := range s.senders {
		snd.close()
	}
	s.mu.Unlock()

	s.writers.Wait()
	err := s.server.Close()

	s.mu.Lock()
	for conn := range s.inbound {
		conn.Close()
	}
	s.mu.Unlock()

	s.box.fail(ErrClosed)
	return err
}

func (s *Socket) logf(format string, args ...interface{}) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handle reads every message sent by one peer into the mailbox.
func (s *Socket) handle(w http.ResponseWriter, r *http.Request) {
	src, err := strconv.Atoi(r.Header.Get(rankHeader))
	if err == nil {
		err = checkRank(src, s.Size())
	}
	if err != nil {
		http.Error(w, "missing or invalid rank header", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("Upgrade of connection from rank %d failed: %s",
			src, err.Error())
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.inbound[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inbound, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logf("Connection from rank %d failed: %s", src, err.Error())
				s.box.fail(fmt.Errorf("connection from rank %d: %w", src, err))
			}
			return
		}
		if kind != websocket.BinaryMessage || len(msg) < tagBytes {
			s.logf("Dropping malformed message from rank %d.", src)
			continue
		}

		tag := int(int64(binary.LittleEndian.Uint64(msg[:tagBytes])))
		s.box.deliver(src, tag, msg[tagBytes:])
	}
}

// sender returns the ordered writer for dest, starting it if needed.
func (s *Socket) sender(dest int) (*sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	snd, ok := s.senders[dest]
	if !ok {
		snd = newSender()
		s.senders[dest] = snd
		s.writers.Add(1)
		go func() {
			defer s.writers.Done()
			s.writeLoop(dest, snd)
		}()
	}
	return snd, nil
}

func (s *Socket) dial(dest int) (*websocket.Conn, error) {
	url := "ws://" + s.cfg.Peers[dest] + socketPath
	header := http.Header{}
	header.Set(rankHeader, strconv.Itoa(s.cfg.Rank))
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}

	deadline := time.Now().Add(s.cfg.DialTimeout)
	for {
		conn, _, err := dialer.Dial(url, header)
		if err == nil {
			return conn, nil
		} else if time.Now().After(deadline) {
			return nil, fmt.Errorf("Rank %d could not connect to rank %d "+
				"at %s: %w", s.cfg.Rank, dest, s.cfg.Peers[dest], err)
		}
		time.Sleep(dialInterval)
	}
}

// writeLoop writes the queued messages for dest until the sender is closed
// and drained. Once a write fails, every later send to dest fails with the
// same error.
func (s *Socket) writeLoop(dest int, snd *sender) {
	var conn *websocket.Conn
	var connErr error

	for {
		req, ok := snd.pop()
		if !ok {
			break
		}

		if conn == nil && connErr == nil {
			conn, connErr = s.dial(dest)
			if connErr != nil {
				s.logf("%s", connErr.Error())
			}
		}
		if connErr != nil {
			req.finish(connErr)
			continue
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, req.msg); err != nil {
			connErr = fmt.Errorf("Write to rank %d failed: %w", dest, err)
			s.logf("%s", connErr.Error())
		}
		req.finish(connErr)
	}

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
	}
}

// sender is an unbounded FIFO of outgoing messages to one peer.
type sender struct {
	mu     sync.Mutex
	cond   *sync.Cond
	reqs   []*sendRequest
	closed bool
}

func newSender() *sender {
	snd := &sender{}
	snd.cond = sync.NewCond(&snd.mu)
	return snd
}

func (snd *sender) push(tag int, data []byte) Request {
	msg := make([]byte, tagBytes+len(data))
	binary.LittleEndian.PutUint64(msg[:tagBytes], uint64(int64(tag)))
	copy(msg[tagBytes:], data)
	req := &sendRequest{msg: msg, done: make(chan struct{})}

	snd.mu.Lock()
	defer snd.mu.Unlock()
	if snd.closed {
		req.finish(ErrClosed)
		return req
	}
	snd.reqs = append(snd.reqs, req)
	snd.cond.Signal()
	return req
}

func (snd *sender) pop() (*sendRequest, bool) {
	snd.mu.Lock()
	defer snd.mu.Unlock()
	for len(snd.reqs) == 0 && !snd.closed {
		snd.cond.Wait()
	}
	if len(snd.reqs) == 0 {
		return nil, false
	}
	req := snd.reqs[0]
	snd.reqs[0] = nil
	snd.reqs = snd.reqs[1:]
	return req, true
}

func (snd *sender) close() {
	snd.mu.Lock()
	snd.closed = true
	snd.mu.Unlock()
	snd.cond.Broadcast()
}

type sendRequest struct {
	msg  []byte
	err  error
	done chan struct{}
}

func (r *sendRequest) finish(err error) {
	r.err = err
	r.msg = nil
	close(r.done)
}

func (r *sendRequest) Wait() ([]byte, error) {
	<-r.done
	return nil, r.err
}
