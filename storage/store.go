package storage

import "context"

// Update is sent to listeners whenever a key is written.
type Update struct {
	Key   []byte
	Value []byte

	// Origin identifies the writer, the router uses the connection ID so a
	// device isn't sent its own messages.
	Origin string
}

type Store interface {
	Set(ctx context.Context, origin string, key []byte, value interface{}) error
	SetRaw(ctx context.Context, origin string, key []byte, raw []byte) error
	Get(ctx context.Context, key []byte) ([]byte, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
