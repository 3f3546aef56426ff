package protocol

import (
	"strconv"
)

const (
	// HeaderLen is the size of the fixed OOB header:
	// command(4) ' ' framelen(10) ' ' seqno(10) '\n'
	HeaderLen = 27

	// numberWidth is the zero padded width of framelen and seqno
	numberWidth = 10

	frameLenOffset = 5
	seqNoOffset    = 16

	sep1Offset    = 4
	sep2Offset    = 15
	newlineOffset = 26
)

// Header is the out-of-band header that precedes every message.
type Header struct {
	Command     Command
	FrameLength uint32
	SeqNo       uint32
}

// EncodeHeader renders h into its HeaderLen byte wire form.
func EncodeHeader(h Header) ([]byte, error) {
	b := make([]byte, 0, HeaderLen)
	b = append(b, h.Command[:]...)
	b = append(b, ' ')

	b, err := appendPadded(b, uint64(h.FrameLength))
	if err != nil {
		return nil, err
	}

	b = append(b, ' ')

	b, err = appendPadded(b, uint64(h.SeqNo))
	if err != nil {
		return nil, err
	}

	return append(b, '\n'), nil
}

// DecodeHeader parses an OOB header. Anything other than exactly ten
// decimal digits in the numeric fields is rejected.
func DecodeHeader(b []byte) (Header, error) {
	var h Header

	if len(b) != HeaderLen {
		return h, NewError(CodeMalformedHeader, "decodeHeader",
			"expected %d bytes, got %d", HeaderLen, len(b))
	}

	if b[sep1Offset] != ' ' || b[sep2Offset] != ' ' || b[newlineOffset] != '\n' {
		return h, NewError(CodeMalformedHeader, "decodeHeader",
			"bad separators in %q", b)
	}

	frameLength, err := parseDigits(b[frameLenOffset : frameLenOffset+numberWidth])
	if err != nil {
		return h, NewError(CodeMalformedHeader, "decodeHeader",
			"bad frame length %q", b[frameLenOffset:frameLenOffset+numberWidth])
	}

	seqNo, err := parseDigits(b[seqNoOffset : seqNoOffset+numberWidth])
	if err != nil {
		return h, NewError(CodeMalformedHeader, "decodeHeader",
			"bad sequence number %q", b[seqNoOffset:seqNoOffset+numberWidth])
	}

	copy(h.Command[:], b[:sep1Offset])
	h.FrameLength = frameLength
	h.SeqNo = seqNo

	return h, nil
}

func appendPadded(b []byte, v uint64) ([]byte, error) {
	digits := strconv.FormatUint(v, 10)
	if len(digits) > numberWidth {
		return nil, NewError(CodeUsage, "encodeHeader",
			"%s does not fit in %d digits", digits, numberWidth)
	}

	for i := len(digits); i < numberWidth; i++ {
		b = append(b, '0')
	}

	return append(b, digits...), nil
}

func parseDigits(field []byte) (uint32, error) {
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}

	v, err := strconv.ParseUint(string(field), 10, 32)
	if err != nil {
		return 0, err
	}

	return uint32(v), nil
}
