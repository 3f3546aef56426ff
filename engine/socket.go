package engine

import (
	"time"
)

// Socket is the byte stream transport the engine drives. Implementations
// must invoke completions one at a time and never concurrently with another
// engine continuation; transport.Socket does this by posting them to an
// eventloop.Loop.
type Socket interface {
	// Send queues data for writing. done may be nil, it is only told about
	// the outcome of this write.
	Send(data []byte, done func(err error))

	// RecvExact reads exactly n bytes. A short read is reported with the
	// bytes that did arrive and a non-nil error.
	RecvExact(n int, done func(data []byte, err error))
}

// Scheduler runs fn later, on the same goroutine that runs socket
// completions.
type Scheduler interface {
	Defer(delay time.Duration, fn func())
}
