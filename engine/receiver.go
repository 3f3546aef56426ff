package engine

import (
	"go.uber.org/zap"

	"github.com/luma/bosswave/protocol"
)

// ReceiveMessage reads a complete message: the header, then fields until
// the end sentinel. done is called exactly once, with the message or with
// the first error.
//
// The stream can't be resynchronised after an error, callers should close
// the socket rather than start another receive.
func (e *Engine) ReceiveMessage(done func(*protocol.Message, error)) {
	op := &receiveOp{e: e, done: done}
	e.ReceiveHeader(op.onHeader)
}

type receiveOp struct {
	e    *Engine
	msg  *protocol.Message
	done func(*protocol.Message, error)
}

func (op *receiveOp) onHeader(header protocol.Header, err error) {
	if err != nil {
		op.finish(nil, err)
		return
	}

	op.msg = protocol.NewMessage(header.Command, header.SeqNo)
	op.msg.FrameLength = header.FrameLength

	op.next()
}

func (op *receiveOp) next() {
	op.e.ReceiveField(op.onField)
}

func (op *receiveOp) onField(field protocol.Field, err error) {
	if err != nil {
		op.finish(nil, err)
		return
	}

	if field.IsEnd() {
		op.finish(op.msg, nil)
		return
	}

	if err := op.msg.Set(field.Type, field.Key, field.Value); err != nil {
		op.finish(nil, err)
		return
	}

	op.e.sched.Defer(0, op.next)
}

func (op *receiveOp) finish(msg *protocol.Message, err error) {
	if err != nil {
		op.e.log.Debug("Receive failed", zap.Stringer("code", protocol.CodeOf(err)), zap.Error(err))
	} else {
		op.e.log.Debug("Received message",
			zap.Stringer("command", msg.Command),
			zap.Uint32("seqNo", msg.SeqNo),
			zap.Int("fields", len(msg.KV)+len(msg.PO)+len(msg.RO)))
	}

	done := op.done
	op.done = nil
	op.msg = nil

	done(msg, err)
}
