package engine

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/bosswave/protocol"
)

// SendPolicy decides what SendMessage does with failed writes. Under both
// policies every write of a message is issued, a failed field never stops
// the ones after it.
type SendPolicy int

const (
	// BestEffort drops write failures, they are only logged. SendMessage
	// completes as soon as the end sentinel has been queued.
	BestEffort SendPolicy = iota

	// ReportErrors waits for every write to complete and reports all of
	// the failures together.
	ReportErrors
)

func (p SendPolicy) String() string {
	switch p {
	case BestEffort:
		return "best-effort"
	case ReportErrors:
		return "report-errors"
	default:
		return fmt.Sprintf("SendPolicy(%d)", int(p))
	}
}

// ParseSendPolicy is the inverse of SendPolicy.String. Matching is case
// insensitive.
func ParseSendPolicy(s string) (SendPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best-effort", "besteffort":
		return BestEffort, nil
	case "report-errors", "reporterrors":
		return ReportErrors, nil
	default:
		return BestEffort, fmt.Errorf("unknown send policy %q", s)
	}
}

// SendMessage writes a complete message: the header, every field of the
// kv, po and ro groups and finally the end sentinel. The header's frame
// length is always 0.
//
// done may be nil. When it isn't, it is called once according to the
// engine's SendPolicy.
func (e *Engine) SendMessage(seqNo uint32, cmd protocol.Command, kv, po, ro map[string][]byte, done func(error)) {
	e.Send(&protocol.Message{
		Header: protocol.Header{Command: cmd, SeqNo: seqNo},
		KV:     kv,
		PO:     po,
		RO:     ro,
	}, done)
}

// Send is SendMessage for a prebuilt Message.
func (e *Engine) Send(msg *protocol.Message, done func(error)) {
	header, err := protocol.EncodeHeader(protocol.Header{Command: msg.Command, SeqNo: msg.SeqNo})
	if err != nil {
		if done != nil {
			done(err)
		}
		return
	}

	op := &sendOp{
		sock:   e.sock,
		policy: e.opts.SendPolicy,
		log:    e.log.With(zap.Uint32("seqNo", msg.SeqNo)),
		done:   done,
	}

	op.send("header", header)

	for _, f := range msg.Fields() {
		op.send(string(f.Type)+" "+string(f.Key), protocol.EncodeField(f.Type, f.Key, f.Value))
	}

	op.send("end", protocol.EndLine)
	op.issued()
}

// SendHeader writes only the OOB header, with a frame length of 0.
func (e *Engine) SendHeader(cmd protocol.Command, seqNo uint32, done func(error)) {
	header, err := protocol.EncodeHeader(protocol.Header{Command: cmd, SeqNo: seqNo})
	if err != nil {
		if done != nil {
			done(err)
		}
		return
	}

	e.sock.Send(header, done)
}

// SendField writes a single field.
func (e *Engine) SendField(t protocol.FieldType, key, value []byte, done func(error)) {
	if !t.Valid() {
		if done != nil {
			done(protocol.NewError(protocol.CodeUsage, "sendField", "unknown field type %q", string(t)))
		}
		return
	}

	e.sock.Send(protocol.EncodeField(t, key, value), done)
}

// SendEnd writes the end sentinel.
func (e *Engine) SendEnd(done func(error)) {
	e.sock.Send(protocol.EndLine, done)
}

// sendOp tracks the writes of one SendMessage call.
type sendOp struct {
	sock   Socket
	policy SendPolicy
	log    *zap.Logger

	pending   int
	allIssued bool
	err       error
	done      func(error)
}

func (op *sendOp) send(what string, data []byte) {
	op.pending++
	op.sock.Send(data, func(err error) {
		op.complete(what, err)
	})
}

func (op *sendOp) complete(what string, err error) {
	op.pending--

	if err != nil {
		if op.policy == BestEffort {
			op.log.Debug("Dropped failed write", zap.String("part", what), zap.Error(err))
		} else {
			op.err = multierr.Append(op.err, protocol.TransportError("send "+what, err))
		}
	}

	op.maybeFinish()
}

func (op *sendOp) issued() {
	op.allIssued = true

	if op.policy == BestEffort {
		op.finish(nil)
		return
	}

	op.maybeFinish()
}

func (op *sendOp) maybeFinish() {
	if op.policy == ReportErrors && op.allIssued && op.pending == 0 {
		op.finish(op.err)
	}
}

func (op *sendOp) finish(err error) {
	if op.done == nil {
		return
	}

	done := op.done
	op.done = nil
	done(err)
}
