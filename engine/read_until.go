package engine

import (
	"github.com/luma/bosswave/protocol"
)

// ReadUntil reads from sock one byte at a time until delim is seen, then
// calls done with everything read, delimiter included.
//
// delim must be exactly one byte. Anything else is a usage error returned
// immediately; the transport is not touched and done is never called.
//
// The transport can only read "exactly N bytes", so this is a cooperative
// scan rather than a buffered line reader. Each further read is scheduled
// through sched so a transport that completes synchronously doesn't grow
// the stack by a frame per byte.
//
// limit bounds the line length, zero means no limit.
func ReadUntil(sock Socket, sched Scheduler, delim []byte, limit int, done func(line []byte, err error)) error {
	if len(delim) != 1 {
		return protocol.NewError(protocol.CodeUsage, "readUntil",
			"delimiter must be exactly one byte, got %d", len(delim))
	}

	op := &readUntilOp{
		sock:  sock,
		sched: sched,
		delim: delim[0],
		limit: limit,
		done:  done,
	}

	op.next()
	return nil
}

// readUntilOp is the receive context of a single ReadUntil call. It owns the
// accumulation buffer and is dropped once done has been called.
type readUntilOp struct {
	sock  Socket
	sched Scheduler
	delim byte
	limit int
	buf   []byte
	done  func([]byte, error)
}

func (op *readUntilOp) next() {
	op.sock.RecvExact(1, op.onRecv)
}

func (op *readUntilOp) onRecv(data []byte, err error) {
	if op.done == nil {
		// Already completed, a misbehaving transport called us twice
		return
	}

	if err != nil {
		op.finish(nil, protocol.TransportError("readUntil", err))
		return
	}

	if len(data) == 0 {
		op.finish(nil, protocol.TransportError("readUntil", nil))
		return
	}

	op.buf = append(op.buf, data...)

	if data[len(data)-1] == op.delim {
		op.finish(op.buf, nil)
		return
	}

	if op.limit > 0 && len(op.buf) >= op.limit {
		op.finish(nil, protocol.NewError(protocol.CodeLineTooLong, "readUntil",
			"no delimiter within %d bytes", op.limit))
		return
	}

	op.sched.Defer(0, op.next)
}

func (op *readUntilOp) finish(line []byte, err error) {
	done := op.done
	op.done = nil
	op.buf = nil

	done(line, err)
}
