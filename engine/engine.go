package engine

import (
	"go.uber.org/zap"

	"github.com/luma/bosswave/protocol"
)

var newline = []byte{'\n'}

type Options struct {
	// SendPolicy decides whether SendMessage reports write failures.
	// Defaults to BestEffort.
	SendPolicy SendPolicy

	// MaxLineLength bounds a field header line, zero means no limit
	MaxLineLength int

	// MaxValueLength bounds a declared field length, zero means no limit
	MaxValueLength int

	Log *zap.Logger
}

// Engine runs the BOSSWAVE send and receive chains for a single socket.
//
// An Engine is not safe for concurrent use. All of its methods, and every
// completion it invokes, must run on the goroutine that drives sock and
// sched. At most one receive chain may be outstanding at a time.
type Engine struct {
	sock  Socket
	sched Scheduler
	opts  Options
	log   *zap.Logger
}

func New(sock Socket, sched Scheduler, options Options) *Engine {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		sock:  sock,
		sched: sched,
		opts:  options,
		log:   log,
	}
}

// ReceiveHeader reads and decodes the OOB header that opens a message.
func (e *Engine) ReceiveHeader(done func(protocol.Header, error)) {
	e.sock.RecvExact(protocol.HeaderLen, func(data []byte, err error) {
		if err != nil {
			done(protocol.Header{}, protocol.TransportError("receiveHeader", err))
			return
		}

		if len(data) == 0 {
			done(protocol.Header{}, protocol.TransportError("receiveHeader", nil))
			return
		}

		header, err := protocol.DecodeHeader(data)
		done(header, err)
	})
}

// ReceiveFieldHeader reads one newline terminated line and parses it as a
// field header.
func (e *Engine) ReceiveFieldHeader(done func(protocol.FieldHeader, error)) {
	err := ReadUntil(e.sock, e.sched, newline, e.opts.MaxLineLength, func(line []byte, err error) {
		if err != nil {
			done(protocol.FieldHeader{}, err)
			return
		}

		header, err := protocol.ParseFieldHeader(line)
		if err != nil {
			done(protocol.FieldHeader{}, err)
			return
		}

		if e.opts.MaxValueLength > 0 && header.Length > e.opts.MaxValueLength {
			done(protocol.FieldHeader{}, protocol.NewError(protocol.CodeInvalidFieldLength, "receiveFieldHeader",
				"declared length %d exceeds %d", header.Length, e.opts.MaxValueLength))
			return
		}

		done(header, nil)
	})

	if err != nil {
		done(protocol.FieldHeader{}, err)
	}
}

// ReceiveField reads the next field of a message. When the end sentinel is
// read done receives a Field whose IsEnd reports true.
func (e *Engine) ReceiveField(done func(protocol.Field, error)) {
	e.ReceiveFieldHeader(func(header protocol.FieldHeader, err error) {
		if err != nil {
			done(protocol.Field{}, err)
			return
		}

		ReadValue(e.sock, header, done)
	})
}
