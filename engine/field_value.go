package engine

import (
	"github.com/luma/bosswave/protocol"
)

// ReadValue reads the value announced by hdr: exactly hdr.Length bytes plus
// the newline that follows every value.
//
// The end sentinel completes immediately with a Field whose IsEnd is true,
// without touching the transport. Any other single token header is
// rejected as malformed.
func ReadValue(sock Socket, hdr protocol.FieldHeader, done func(protocol.Field, error)) {
	if hdr.IsEnd() {
		done(protocol.Field{Type: protocol.End}, nil)
		return
	}

	if hdr.Sentinel {
		done(protocol.Field{}, protocol.NewError(protocol.CodeMalformedFieldHeader, "readValue",
			"unexpected single token line %q", string(hdr.Type)))
		return
	}

	if hdr.Length <= 0 {
		done(protocol.Field{}, protocol.NewError(protocol.CodeInvalidFieldLength, "readValue",
			"invalid length %d", hdr.Length))
		return
	}

	op := &readValueOp{
		hdr:  hdr,
		want: hdr.Length + 1,
		done: done,
	}

	sock.RecvExact(op.want, op.onRecv)
}

// readValueOp is the receive context of a single ReadValue call.
type readValueOp struct {
	hdr  protocol.FieldHeader
	want int
	done func(protocol.Field, error)
}

func (op *readValueOp) onRecv(data []byte, err error) {
	if op.done == nil {
		return
	}

	done := op.done
	op.done = nil

	if err != nil {
		done(protocol.Field{}, protocol.TransportError("readValue", err))
		return
	}

	if len(data) != op.want {
		done(protocol.Field{}, protocol.NewError(protocol.CodeValueLengthMismatch, "readValue",
			"expected %d bytes for %q, got %d", op.want, op.hdr.Key, len(data)))
		return
	}

	done(protocol.Field{
		Type:  op.hdr.Type,
		Key:   op.hdr.Key,
		Value: data[:op.hdr.Length],
	}, nil)
}
