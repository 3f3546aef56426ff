package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrNotFound = errors.New("Key not found")

// InmemoryStore keeps every value in a single JSON document. Keys are gjson
// paths, so "a.b" addresses b inside the object a.
type InmemoryStore struct {
	mu          sync.Mutex
	values      []byte
	updateChans []chan *Update
	stopped     bool
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      []byte("{}"),
		updateChans: make([]chan *Update, 0),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stopped {
		return nil
	}

	i.stopped = true

	for _, updateChan := range i.updateChans {
		close(updateChan)
	}

	i.updateChans = nil
	return nil
}

// Set encodes value as JSON and stores it under key.
func (i *InmemoryStore) Set(ctx context.Context, origin string, key []byte, value interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	values, err := sjson.SetBytes(i.values, string(key), value)
	if err != nil {
		return err
	}

	i.values = values
	return i.notify(ctx, origin, key)
}

// SetRaw stores raw, which must already be valid JSON, under key.
func (i *InmemoryStore) SetRaw(ctx context.Context, origin string, key []byte, raw []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	values, err := sjson.SetRawBytes(i.values, string(key), raw)
	if err != nil {
		return err
	}

	i.values = values
	return i.notify(ctx, origin, key)
}

func (i *InmemoryStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	result := gjson.GetBytes(i.values, string(key))
	if !result.Exists() {
		return nil, ErrNotFound
	}

	// Copy out, the document is rewritten on every Set
	return []byte(result.Raw), nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, 255)

	if i.stopped {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)
	return updateChan
}

func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) {
		return errors.New("Restore requires a valid JSON document")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte(nil), values...)
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	return append([]byte(nil), i.values...), nil
}

// notify must be called with mu held
func (i *InmemoryStore) notify(ctx context.Context, origin string, key []byte) error {
	if i.stopped {
		return nil
	}

	update := &Update{
		Key:    key,
		Value:  []byte(gjson.GetBytes(i.values, string(key)).Raw),
		Origin: origin,
	}

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

var _ Store = (*InmemoryStore)(nil)
