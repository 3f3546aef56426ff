package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/bosswave/engine"
)

// Poster runs completions on the goroutine that owns the engine.
// *eventloop.Loop satisfies it.
type Poster interface {
	Post(fn func()) bool
}

type recvRequest struct {
	n    int
	done func([]byte, error)
}

type sendRequest struct {
	data []byte
	done func(error)
}

// Socket adapts a net.Conn to engine.Socket. A read loop and a write loop
// own the connection; their completions are posted to the event loop so
// the engine only ever sees them on the loop's goroutine.
type Socket struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	// writesClosed is set by the write loop before it drains the queue,
	// Send never enqueues once it is set
	writeMu      sync.Mutex
	writesClosed bool

	conn   net.Conn
	reader *bufio.Reader
	loop   Poster

	recvQueue  chan recvRequest
	writeQueue chan sendRequest

	log *zap.Logger
}

// Dial connects to a router at addr.
func Dial(ctx context.Context, addr string, loop Poster, log *zap.Logger) (*Socket, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// ctx only bounds the dial, the socket lives until Close
	return NewSocket(context.Background(), conn, loop, log), nil
}

// NewSocket starts the read and write loops for conn. Cancelling parentCtx
// stops both loops.
func NewSocket(parentCtx context.Context, conn net.Conn, loop Poster, log *zap.Logger) *Socket {
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parentCtx)

	s := &Socket{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		loop:       loop,
		recvQueue:  make(chan recvRequest),
		writeQueue: make(chan sendRequest, 127),
		log:        log,
	}

	s.loopWaiter.Add(2)

	go func() {
		defer s.loopWaiter.Done()
		s.readLoop()
	}()

	go func() {
		defer s.loopWaiter.Done()
		s.writeLoop()
	}()

	return s
}

// Send queues data for the write loop. It never blocks the caller for
// longer than it takes to enqueue.
func (s *Socket) Send(data []byte, done func(error)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writesClosed {
		s.failSend(done)
		return
	}

	select {
	case s.writeQueue <- sendRequest{data: data, done: done}:
	case <-s.ctx.Done():
		s.failSend(done)
	}
}

func (s *Socket) failSend(done func(error)) {
	if done == nil {
		return
	}

	s.complete(func() { done(net.ErrClosed) })
}

// RecvExact asks the read loop for exactly n bytes.
func (s *Socket) RecvExact(n int, done func([]byte, error)) {
	select {
	case s.recvQueue <- recvRequest{n: n, done: done}:
	case <-s.ctx.Done():
		s.complete(func() { done(nil, net.ErrClosed) })
	}
}

// Close stops both loops and closes the connection. A receive still in
// flight completes with an error.
func (s *Socket) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.cancel()

		// Unblocks a read loop sitting in io.ReadFull
		err = s.conn.Close()

		s.loopWaiter.Wait()
	})

	return err
}

func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Socket) readLoop() {
	log := s.log.Named("readLoop")
	defer log.Debug("Socket read loop exited")

	for {
		select {
		case <-s.ctx.Done():
			return

		case req := <-s.recvQueue:
			buf := make([]byte, req.n)
			n, err := io.ReadFull(s.reader, buf)

			if err != nil {
				log.Debug("Read failed", zap.Int("want", req.n), zap.Int("got", n), zap.Error(err))
			}

			done := req.done
			data := buf[:n]
			s.complete(func() { done(data, err) })

			if err != nil {
				// The stream position is unknown after a failed read
				s.cancel()
				return
			}
		}
	}
}

func (s *Socket) writeLoop() {
	log := s.log.Named("writeLoop")
	defer log.Debug("Socket write loop exited")

	for {
		select {
		case <-s.ctx.Done():
			s.closeWrites()
			s.drainWrites()
			return

		case req := <-s.writeQueue:
			_, err := s.conn.Write(req.data)
			if err != nil {
				log.Debug("Write failed", zap.Int("bytes", len(req.data)), zap.Error(err))
			}

			if req.done != nil {
				done := req.done
				s.complete(func() { done(err) })
			}
		}
	}
}

func (s *Socket) closeWrites() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.writesClosed = true
}

// drainWrites fails writes that were queued but never written
func (s *Socket) drainWrites() {
	for {
		select {
		case req := <-s.writeQueue:
			if req.done != nil {
				done := req.done
				s.complete(func() { done(net.ErrClosed) })
			}

		default:
			return
		}
	}
}

func (s *Socket) complete(fn func()) {
	if !s.loop.Post(fn) {
		s.log.Debug("Dropped completion, event loop has stopped")
	}
}

var _ engine.Socket = (*Socket)(nil)
