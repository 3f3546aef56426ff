package protocol

import (
	"strconv"
)

// FieldType is the group a field belongs to. On the wire it is the first
// token of a field header line.
type FieldType string

const (
	KV FieldType = "kv"
	PO FieldType = "po"
	RO FieldType = "ro"

	// End is the token of the line that closes a message's field list.
	End FieldType = "end"
)

// EndLine is the sentinel line written after the last field.
var EndLine = []byte("end\n")

// Valid reports whether t names one of the three field groups.
func (t FieldType) Valid() bool {
	return t == KV || t == PO || t == RO
}

// Field is a single key/value pair of a message group.
type Field struct {
	Type  FieldType
	Key   []byte
	Value []byte
}

// IsEnd reports whether f is the end-of-message signal rather than a field.
func (f Field) IsEnd() bool {
	return f.Type == End
}

// FieldHeader is the parsed form of a "<type> <key> <length>\n" line.
//
// A line holding a single token ("end\n", but also "foo\n") parses with
// Sentinel set and no key or length. Callers must check the token with
// IsEnd before treating it as the end of a message.
type FieldHeader struct {
	Type     FieldType
	Key      []byte
	Length   int
	Sentinel bool
}

// IsEnd reports whether the header is the literal end sentinel.
func (h FieldHeader) IsEnd() bool {
	return h.Sentinel && h.Type == End
}

// EncodeFieldHeader renders "<type> <key> <length>\n".
func EncodeFieldHeader(t FieldType, key []byte, length int) []byte {
	b := make([]byte, 0, len(t)+len(key)+12)
	b = append(b, t...)
	b = append(b, ' ')
	b = append(b, key...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(length), 10)

	return append(b, '\n')
}

// EncodeField renders the full wire form of a field, header line included.
func EncodeField(t FieldType, key, value []byte) []byte {
	b := EncodeFieldHeader(t, key, len(value))
	b = append(b, value...)

	return append(b, '\n')
}

// ParseFieldHeader parses one newline terminated field header line.
//
// The grammar is scanned left to right:
//
//   - the type token runs to the first space or newline. A newline here
//     yields a sentinel shaped result.
//   - the key token runs to the next space.
//   - the length token runs to the next newline, which must be the last
//     byte of the line.
//
// A length of zero is rejected with CodeInvalidFieldLength, the same as a
// non-numeric one.
func ParseFieldHeader(line []byte) (FieldHeader, error) {
	var h FieldHeader

	i := 0
	for i < len(line) && line[i] != ' ' && line[i] != '\n' {
		i++
	}

	if i == len(line) {
		return FieldHeader{}, NewError(CodeMalformedFieldHeader, "parseFieldHeader",
			"no terminator after type in %q", line)
	}

	h.Type = FieldType(line[:i])

	if line[i] == '\n' {
		h.Sentinel = true
		return h, nil
	}

	start := i + 1
	for i = start; i < len(line) && line[i] != ' '; i++ {
	}

	if i == len(line) {
		return FieldHeader{}, NewError(CodeMalformedFieldHeader, "parseFieldHeader",
			"no length after key in %q", line)
	}

	h.Key = line[start:i]

	start = i + 1
	for i = start; i < len(line) && line[i] != '\n'; i++ {
	}

	if i != len(line)-1 {
		return FieldHeader{}, NewError(CodeMalformedFieldHeader, "parseFieldHeader",
			"length is not terminated by the final newline in %q", line)
	}

	length, err := strconv.ParseUint(string(line[start:i]), 10, 31)
	if err != nil || length == 0 {
		return FieldHeader{}, NewError(CodeInvalidFieldLength, "parseFieldHeader",
			"invalid length %q", line[start:i])
	}

	h.Length = int(length)
	return h, nil
}
