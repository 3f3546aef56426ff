package protocol

import (
	"io"
)

// EncodeMessage renders m into the byte stream a device sends to a router:
// the header, every field, then the end sentinel.
//
// The frame length in the header is always written as 0. Routers accept that
// for device traffic, this is not a general purpose frame encoder.
func EncodeMessage(m *Message) ([]byte, error) {
	header := m.Header
	header.FrameLength = 0

	b, err := EncodeHeader(header)
	if err != nil {
		return nil, err
	}

	for _, f := range m.Fields() {
		b = append(b, EncodeField(f.Type, f.Key, f.Value)...)
	}

	return append(b, EndLine...), nil
}

// WriteMessage encodes m and writes it to w in a single Write.
func WriteMessage(w io.Writer, m *Message) error {
	b, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

func WriteField(w io.Writer, t FieldType, key, value []byte) error {
	_, err := w.Write(EncodeField(t, key, value))
	return err
}

func WriteEnd(w io.Writer) error {
	_, err := w.Write(EndLine)
	return err
}
