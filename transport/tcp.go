package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/bosswave/protocol"
	"github.com/luma/bosswave/storage"
)

var ErrWriteQueueFull = errors.New("Device write queue is full")

const (
	writeQueueSize = 127
	storeTimeout   = 3 * time.Second
)

// TCP is a loopback BOSSWAVE router. Devices connect, publish messages and
// receive every message published by the other connected devices. Each
// message is also recorded in the store.
type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	reuseport    bool
	numListeners int
	listeners    []*TCPListener

	limits protocol.Limits
	store  storage.Store

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		numListeners = 1
	}

	limits := options.Limits
	if limits == (protocol.Limits{}) {
		limits = protocol.DefaultLimits()
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		limits:       limits,
		store:        options.Store,
		log:          log,
	}
}

// Start binds every listener and begins accepting devices. It returns once
// all listeners are bound.
func (t *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	t.cancel = cancel

	t.log.Info("Starting tcp listeners", zap.Int("count", t.numListeners))

	for i := 0; i < t.numListeners; i++ {
		if err := t.startListener(ctx); err != nil {
			cancel()
			t.stopWaiter.Wait()
			return err
		}
	}

	return nil
}

func (t *TCP) Store() storage.Store {
	return t.store
}

// Addr returns the address the first listener is bound to.
func (t *TCP) Addr() net.Addr {
	if len(t.listeners) == 0 {
		return nil
	}

	return t.listeners[0].Addr()
}

// Addrs returns the address of every listener. With Reuseport they are all
// the same.
func (t *TCP) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(t.listeners))
	for _, listener := range t.listeners {
		addrs = append(addrs, listener.Addr())
	}

	return addrs
}

// Conns counts the device connections across every listener.
func (t *TCP) Conns() int {
	n := 0
	for _, listener := range t.listeners {
		n += listener.Conns()
	}

	return n
}

func (t *TCP) startListener(ctx context.Context) error {
	var (
		ln  net.Listener
		err error
	)

	if t.reuseport {
		ln, err = reuseport.Listen("tcp", t.addr)
	} else {
		ln, err = net.Listen("tcp", t.addr)
	}

	if err != nil {
		return err
	}

	if len(t.listeners) == 0 {
		// Port 0 picks a port for the first listener, the rest must share it
		t.addr = ln.Addr().String()
	}

	listener := NewTCPListener(
		ctx,
		ln,
		t.store,
		t.limits,
		t.log.Named("listener").With(zap.Int("listener", len(t.listeners))),
	)

	t.listeners = append(t.listeners, listener)

	t.stopWaiter.Add(1)
	go func() {
		defer t.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			t.log.Error("Failed to listen", zap.Error(err))
		}
	}()

	return nil
}

// Close immediately closes all listeners and device connections.
func (t *TCP) Close() error {
	t.log.Info("Stopping TCP router")

	if t.cancel != nil {
		t.cancel()
	}

	var err error
	for _, listener := range t.listeners {
		err = multierr.Append(err, listener.Close())
	}

	t.stopWaiter.Wait()
	t.log.Info("Listeners stopped")

	return err
}

// TCPListener accepts devices on a single socket and forwards store updates
// to the devices it owns.
type TCPListener struct {
	ctx context.Context

	listener net.Listener
	log      *zap.Logger

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}
	closed      bool

	limits protocol.Limits
	store  storage.Store
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	store storage.Store,
	limits protocol.Limits,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		activeConns: make(map[*TCPConn]struct{}),
		limits:      limits,
		store:       store,
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops accepting and closes every device connection.
func (t *TCPListener) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	t.mu.Unlock()

	conns := t.snapshotConns()

	err := t.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

func (t *TCPListener) Listen() error {
	var loopWaiter sync.WaitGroup

	go func() {
		<-t.ctx.Done()

		if err := t.Close(); err != nil {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	// Forward stored messages to the devices on this listener
	updates := t.store.ListenToUpdates()
	go func() {
		for update := range updates {
			if err := t.WriteUpdate(update); err != nil {
				t.log.Warn("Failed to forward message", zap.String("key", string(update.Key)), zap.Error(err))
			}
		}
	}()

	defer func() {
		t.log.Info("Waiting for device connections to stop")
		loopWaiter.Wait()
		t.log.Info("Listener stopped")
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
				// The listener was closed while we were waiting for new connections
				// that's fine.
				return nil
			}

			return err
		}

		tcpConn := NewTCPConn(t.ctx, conn, t.store, t.limits, t.log.Named("conn"))

		if !t.addConn(tcpConn) {
			conn.Close()
			return nil
		}

		loopWaiter.Add(1)
		go func() {
			defer loopWaiter.Done()
			defer t.removeConn(tcpConn)

			tcpConn.Start()
		}()
	}
}

// WriteUpdate forwards a stored message to every device on this listener
// except the one that published it. A device whose write queue is full
// misses the message and is reported in the returned error.
func (t *TCPListener) WriteUpdate(update *storage.Update) (err error) {
	msg, err := storage.UnmarshalMessage(update.Value)
	if err != nil {
		return err
	}

	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	for _, conn := range t.snapshotConns() {
		if conn.ID() == update.Origin {
			continue
		}

		if werr := conn.Write(data); werr != nil {
			err = multierr.Append(err, fmt.Errorf("conn %s: %w", conn.ID(), werr))
		}
	}

	return err
}

func (t *TCPListener) snapshotConns() []*TCPConn {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}

	return conns
}

func (t *TCPListener) Conns() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.activeConns)
}

func (t *TCPListener) addConn(conn *TCPConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.activeConns[conn] = struct{}{}
	return true
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

// TCPConn is a single device connection on the router side.
type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	id     string
	conn   net.Conn
	limits protocol.Limits
	store  storage.Store

	writeQueue chan []byte

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	conn net.Conn,
	store storage.Store,
	limits protocol.Limits,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)
	id := uuid.New().String()

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		id:         id,
		conn:       conn,
		limits:     limits,
		store:      store,
		writeQueue: make(chan []byte, writeQueueSize),
		log:        log.With(zap.String("conn", id), zap.Stringer("remote", conn.RemoteAddr())),
	}
}

// ID identifies the connection in logs and store keys.
func (t *TCPConn) ID() string {
	return t.id
}

func (t *TCPConn) Close() error {
	var err error

	t.closeOnce.Do(func() {
		t.cancel()

		// Closing the conn unblocks the read loop
		err = t.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})

	return err
}

// Start runs the read and write loops and returns once both have exited.
func (t *TCPConn) Start() {
	t.log.Info("Device connected")

	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()

		// A device that goes away takes the write loop with it
		defer t.cancel()

		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()

	if err := t.Close(); err != nil {
		t.log.Warn("Failed to close device connection cleanly", zap.Error(err))
	}

	t.log.Info("Device disconnected")
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")
	r := bufio.NewReader(t.conn)

	for {
		msg, err := protocol.ReadMessage(r, t.limits)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}

			if protocol.CodeOf(err) == protocol.CodeTransport {
				log.Info("Device stream closed", zap.Error(err))
			} else {
				// There is no way to find the next message boundary
				log.Warn("Dropping device after malformed message",
					zap.Stringer("code", protocol.CodeOf(err)),
					zap.Error(err))
			}

			return
		}

		log.Debug("Received message",
			zap.Stringer("command", msg.Command),
			zap.Uint32("seqNo", msg.SeqNo))

		if err := t.dispatch(msg); err != nil {
			log.Warn("Failed to store message", zap.Uint32("seqNo", msg.SeqNo), zap.Error(err))
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	for {
		select {
		case <-t.ctx.Done():
			return

		case data := <-t.writeQueue:
			if _, err := t.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue", zap.Int("bytes", len(data)), zap.Error(err))
				return
			}
		}
	}
}

// Write queues data for the write loop. It never waits for queue space, a
// device that stops reading fails with ErrWriteQueueFull rather than
// stalling the other devices.
func (t *TCPConn) Write(data []byte) error {
	select {
	case <-t.ctx.Done():
		return net.ErrClosed

	case t.writeQueue <- data:
		return nil

	default:
		return ErrWriteQueueFull
	}
}

func (t *TCPConn) dispatch(msg *protocol.Message) error {
	storeCtx, cancel := context.WithTimeout(t.ctx, storeTimeout)
	defer cancel()

	_, err := storage.SaveMessage(storeCtx, t.store, t.id, msg)
	return err
}
