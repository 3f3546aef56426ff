package protocol

import (
	"sort"
)

// Message is a complete BOSSWAVE message: the OOB header plus the three
// field groups. Keys are unique within a group and their order carries no
// meaning.
type Message struct {
	Header

	KV map[string][]byte
	PO map[string][]byte
	RO map[string][]byte
}

// NewMessage returns a Message with empty groups.
func NewMessage(cmd Command, seqNo uint32) *Message {
	return &Message{
		Header: Header{Command: cmd, SeqNo: seqNo},
		KV:     make(map[string][]byte),
		PO:     make(map[string][]byte),
		RO:     make(map[string][]byte),
	}
}

// Group returns the map holding fields of type t, or nil if t is not a
// field group.
func (m *Message) Group(t FieldType) map[string][]byte {
	switch t {
	case KV:
		return m.KV
	case PO:
		return m.PO
	case RO:
		return m.RO
	default:
		return nil
	}
}

// Set stores value under key in group t. A repeated key replaces the
// earlier value.
func (m *Message) Set(t FieldType, key, value []byte) error {
	if !t.Valid() {
		return NewError(CodeMalformedFieldHeader, "setField",
			"unknown field type %q", string(t))
	}

	if m.Group(t) == nil {
		m.initGroups()
	}

	m.Group(t)[string(key)] = value
	return nil
}

func (m *Message) initGroups() {
	if m.KV == nil {
		m.KV = make(map[string][]byte)
	}

	if m.PO == nil {
		m.PO = make(map[string][]byte)
	}

	if m.RO == nil {
		m.RO = make(map[string][]byte)
	}
}

// Fields returns every field of the message, groups in KV, PO, RO order and
// keys sorted within each group.
func (m *Message) Fields() []Field {
	fields := make([]Field, 0, len(m.KV)+len(m.PO)+len(m.RO))

	for _, t := range []FieldType{KV, PO, RO} {
		fields = appendGroup(fields, t, m.Group(t))
	}

	return fields
}

func appendGroup(fields []Field, t FieldType, group map[string][]byte) []Field {
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		fields = append(fields, Field{Type: t, Key: []byte(k), Value: group[k]})
	}

	return fields
}
