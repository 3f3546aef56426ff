package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Limits bound how much a blocking reader will buffer for one message.
type Limits struct {
	MaxLineLength  int
	MaxValueLength int
	MaxFields      int
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineLength:  4 * 1024,
		MaxValueLength: 16 * 1024 * 1024,
		MaxFields:      1024,
	}
}

// ReadMessage reads one complete message from r, blocking until the end
// sentinel arrives.
//
// This is the server side counterpart to the asynchronous engine: the
// loopback router owns a goroutine per connection and can afford to block.
// Errors carry the same codes the engine reports.
func ReadMessage(r *bufio.Reader, limits Limits) (*Message, error) {
	raw := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, TransportError("readHeader", err)
	}

	header, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}

	msg := NewMessage(header.Command, header.SeqNo)
	msg.FrameLength = header.FrameLength

	for n := 0; ; n++ {
		if limits.MaxFields > 0 && n > limits.MaxFields {
			return nil, NewError(CodeMalformedFieldHeader, "readMessage",
				"more than %d fields", limits.MaxFields)
		}

		field, err := ReadField(r, limits)
		if err != nil {
			return nil, fmt.Errorf("Failed to read field %d of message %d: %w",
				n, header.SeqNo, err)
		}

		if field.IsEnd() {
			return msg, nil
		}

		if err := msg.Set(field.Type, field.Key, field.Value); err != nil {
			return nil, err
		}
	}
}

// ReadField reads a field header line and its value from r. The end
// sentinel is returned as a Field whose IsEnd reports true.
func ReadField(r *bufio.Reader, limits Limits) (Field, error) {
	line, err := readLine(r, limits.MaxLineLength)
	if err != nil {
		return Field{}, err
	}

	header, err := ParseFieldHeader(line)
	if err != nil {
		return Field{}, err
	}

	if header.Sentinel {
		if !header.IsEnd() {
			return Field{}, NewError(CodeMalformedFieldHeader, "readField",
				"unexpected single token line %q", line)
		}

		return Field{Type: End}, nil
	}

	if limits.MaxValueLength > 0 && header.Length > limits.MaxValueLength {
		return Field{}, NewError(CodeInvalidFieldLength, "readField",
			"declared length %d exceeds %d", header.Length, limits.MaxValueLength)
	}

	value := make([]byte, header.Length+1)
	if n, err := io.ReadFull(r, value); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Field{}, NewError(CodeValueLengthMismatch, "readField",
				"expected %d bytes, got %d", len(value), n)
		}

		return Field{}, TransportError("readField", err)
	}

	return Field{
		Type:  header.Type,
		Key:   header.Key,
		Value: value[:header.Length],
	}, nil
}

func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte

	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)

		if limit > 0 && len(line) > limit {
			return nil, NewError(CodeLineTooLong, "readLine",
				"line exceeds %d bytes", limit)
		}

		switch {
		case err == nil:
			return line, nil

		case errors.Is(err, bufio.ErrBufferFull):
			continue

		default:
			return nil, TransportError("readLine", err)
		}
	}
}
