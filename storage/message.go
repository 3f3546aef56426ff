package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/bosswave/protocol"
)

// storedField is how a single field is kept in the JSON document. Keys and
// values are raw bytes on the wire, both are base64 encoded so JSON can't
// rewrite bytes that aren't valid UTF-8.
type storedField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MessageKey is the store path of a message. Messages are stored flat under
// "<origin>.<seqno>"; the dot is escaped so the path doesn't descend into an
// object per origin.
func MessageKey(origin string, seqNo uint32) []byte {
	return []byte(origin + `\.` + strconv.FormatUint(uint64(seqNo), 10))
}

// SaveMessage records msg as published by origin and returns its key.
func SaveMessage(ctx context.Context, store Store, origin string, msg *protocol.Message) ([]byte, error) {
	raw, err := MarshalMessage(msg)
	if err != nil {
		return nil, err
	}

	key := MessageKey(origin, msg.SeqNo)
	if err := store.SetRaw(ctx, origin, key, raw); err != nil {
		return nil, fmt.Errorf("Failed to save message %s: %w", key, err)
	}

	return key, nil
}

// MarshalMessage renders msg as a JSON object
//
//   {"command":"PUB ","seqno":1,"framelength":0,"kv":[{"key":"YQ==","value":"MQ=="}],"po":[],"ro":[]}
func MarshalMessage(msg *protocol.Message) ([]byte, error) {
	doc := []byte(`{"kv":[],"po":[],"ro":[]}`)

	doc, err := sjson.SetBytes(doc, "command", msg.Command.String())
	if err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, "seqno", msg.SeqNo); err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, "framelength", msg.FrameLength); err != nil {
		return nil, err
	}

	for _, f := range msg.Fields() {
		doc, err = sjson.SetBytes(doc, string(f.Type)+".-1", storedField{
			Key:   base64.StdEncoding.EncodeToString(f.Key),
			Value: base64.StdEncoding.EncodeToString(f.Value),
		})
		if err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// UnmarshalMessage is the inverse of MarshalMessage.
func UnmarshalMessage(raw []byte) (*protocol.Message, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("stored message is not valid JSON")
	}

	doc := gjson.ParseBytes(raw)

	cmd, err := protocol.ParseCommand(doc.Get("command").String())
	if err != nil {
		return nil, err
	}

	msg := protocol.NewMessage(cmd, uint32(doc.Get("seqno").Uint()))
	msg.FrameLength = uint32(doc.Get("framelength").Uint())

	for _, t := range []protocol.FieldType{protocol.KV, protocol.PO, protocol.RO} {
		var ferr error

		doc.Get(string(t)).ForEach(func(_, field gjson.Result) bool {
			key, err := base64.StdEncoding.DecodeString(field.Get("key").String())
			if err != nil {
				ferr = fmt.Errorf("Failed to decode %s key %q: %w", t, field.Get("key").String(), err)
				return false
			}

			value, err := base64.StdEncoding.DecodeString(field.Get("value").String())
			if err != nil {
				ferr = fmt.Errorf("Failed to decode %s %q: %w", t, key, err)
				return false
			}

			ferr = msg.Set(t, key, value)
			return ferr == nil
		})

		if ferr != nil {
			return nil, ferr
		}
	}

	return msg, nil
}
