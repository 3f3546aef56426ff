package client

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/bosswave/engine"
	"github.com/luma/bosswave/eventloop"
	"github.com/luma/bosswave/protocol"
	"github.com/luma/bosswave/transport"
)

var ErrNotConnected = errors.New("Not connected to a router")

type Options struct {
	Engine engine.Options

	// MessageBuffer is the capacity of the Messages channel
	MessageBuffer int
}

// Conn is a device's connection to a router. It owns an event loop that runs
// the engine; Publish and the receive chain both execute on it.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	loop   *eventloop.Loop
	sock   *transport.Socket
	engine *engine.Engine
	opts   Options

	messages     chan *protocol.Message
	messagesOnce sync.Once

	seqMu sync.Mutex
	seqNo uint32

	log *zap.Logger
}

func New(log *zap.Logger, options Options) *Conn {
	if log == nil {
		log = zap.NewNop()
	}

	if options.MessageBuffer <= 0 {
		options.MessageBuffer = 255
	}

	return &Conn{
		opts:     options,
		messages: make(chan *protocol.Message, options.MessageBuffer),
		log:      log,
	}
}

// Connect dials the router and starts receiving messages.
func (c *Conn) Connect(ctx context.Context, addr string) error {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.loop = eventloop.New(c.log.Named("loop"))

	sock, err := transport.Dial(ctx, addr, c.loop, c.log.Named("socket"))
	if err != nil {
		c.cancel()
		return err
	}

	c.sock = sock

	engineOpts := c.opts.Engine
	if engineOpts.Log == nil {
		engineOpts.Log = c.log.Named("engine")
	}
	c.engine = engine.New(sock, c.loop, engineOpts)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if err := c.loop.Run(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("Event loop exited", zap.Error(err))
		}
	}()

	c.loop.Post(c.receiveNext)

	c.log.Info("Connected", zap.String("addr", addr))
	return nil
}

// Disconnect closes the socket and stops the event loop. The Messages
// channel is not closed until the receive chain has stopped.
func (c *Conn) Disconnect() error {
	if c.sock == nil {
		return ErrNotConnected
	}

	err := c.sock.Close()
	c.cancel()
	c.wg.Wait()

	// The loop may have stopped before the receive chain saw the close
	c.closeMessages()

	return err
}

// Messages delivers every message the router forwards to this device. It
// is closed when the receive chain stops.
func (c *Conn) Messages() <-chan *protocol.Message {
	return c.messages
}

// Publish sends a message and returns the sequence number it was sent with.
// Whether write failures are reported depends on the engine's SendPolicy.
func (c *Conn) Publish(ctx context.Context, cmd protocol.Command, kv, po, ro map[string][]byte) (uint32, error) {
	if c.engine == nil {
		return 0, ErrNotConnected
	}

	seqNo := c.getNextSeqNo()
	result := make(chan error, 1)

	posted := c.loop.Post(func() {
		c.engine.SendMessage(seqNo, cmd, kv, po, ro, func(err error) {
			result <- err
		})
	})

	if !posted {
		return seqNo, eventloop.ErrStopped
	}

	select {
	case err := <-result:
		return seqNo, err

	case <-c.loop.Done():
		return seqNo, eventloop.ErrStopped

	case <-ctx.Done():
		return seqNo, ctx.Err()
	}
}

// receiveNext runs on the event loop and restarts itself after every
// message.
func (c *Conn) receiveNext() {
	c.engine.ReceiveMessage(func(msg *protocol.Message, err error) {
		if err != nil {
			c.onReceiveError(err)
			return
		}

		select {
		case c.messages <- msg:
		default:
			c.log.Warn("Dropping message, Messages() is not being drained",
				zap.Uint32("seqNo", msg.SeqNo))
		}

		c.receiveNext()
	})
}

func (c *Conn) onReceiveError(err error) {
	if c.ctx.Err() == nil {
		c.log.Warn("Receive chain stopped",
			zap.Stringer("code", protocol.CodeOf(err)),
			zap.Error(err))
	}

	c.closeMessages()

	// A malformed frame leaves the stream at an unknown position, the
	// connection can't be used for receiving any more
	if protocol.CodeOf(err) != protocol.CodeTransport {
		go c.sock.Close()
	}
}

func (c *Conn) closeMessages() {
	c.messagesOnce.Do(func() {
		close(c.messages)
	})
}

func (c *Conn) getNextSeqNo() uint32 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	if c.seqNo < math.MaxUint32-1 {
		c.seqNo += 1
	} else {
		// Wrap around instead of overflowing
		c.seqNo = 0
	}

	return c.seqNo
}
