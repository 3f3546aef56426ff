// Package sockettest provides a scripted engine.Socket and a manually driven
// engine.Scheduler for testing the receive chains without a network.
package sockettest

import (
	"time"

	"github.com/luma/bosswave/engine"
)

type recv struct {
	n    int
	done func([]byte, error)
}

// Socket completes reads from bytes handed to Feed. A read that can't be
// satisfied stays pending until more bytes are fed, or until Fail, FeedEmpty
// or ShortRead decide how it completes.
//
// Completions run synchronously inside RecvExact or Feed, which is the case
// ReadUntil defers through its scheduler for.
type Socket struct {
	buf     []byte
	pending *recv

	err   error
	empty bool
	short bool

	// Reads counts RecvExact calls and ReadSizes records the n of each
	Reads     int
	ReadSizes []int

	// Sent holds every buffer passed to Send, in order
	Sent [][]byte

	// SendErr, when set, decides the result of the i'th Send
	SendErr func(i int, data []byte) error

	// DeferSends holds send completions until FlushSends is called
	DeferSends   bool
	pendingSends []func()
}

func New() *Socket {
	return &Socket{}
}

// Feed appends data to the incoming stream.
func (s *Socket) Feed(chunks ...string) {
	for _, c := range chunks {
		s.buf = append(s.buf, c...)
	}

	s.flush()
}

// Fail makes the pending read, and every read after it, complete with err
// once the buffered bytes can't satisfy it.
func (s *Socket) Fail(err error) {
	s.err = err
	s.flush()
}

// FeedEmpty makes the next unsatisfiable read complete with no data and no
// error.
func (s *Socket) FeedEmpty() {
	s.empty = true
	s.flush()
}

// ShortRead makes the next unsatisfiable read complete with whatever is
// buffered and no error.
func (s *Socket) ShortRead() {
	s.short = true
	s.flush()
}

// Pending reports whether a read is waiting for data.
func (s *Socket) Pending() bool {
	return s.pending != nil
}

// Buffered returns the fed bytes that haven't been read yet.
func (s *Socket) Buffered() []byte {
	return s.buf
}

func (s *Socket) RecvExact(n int, done func([]byte, error)) {
	s.Reads++
	s.ReadSizes = append(s.ReadSizes, n)

	if s.pending != nil {
		panic("sockettest: RecvExact called with a read already pending")
	}

	s.pending = &recv{n: n, done: done}
	s.flush()
}

func (s *Socket) Send(data []byte, done func(error)) {
	i := len(s.Sent)
	s.Sent = append(s.Sent, append([]byte(nil), data...))

	var err error
	if s.SendErr != nil {
		err = s.SendErr(i, data)
	}

	if done == nil {
		return
	}

	if s.DeferSends {
		s.pendingSends = append(s.pendingSends, func() { done(err) })
		return
	}

	done(err)
}

// FlushSends runs the send completions held back by DeferSends.
func (s *Socket) FlushSends() {
	sends := s.pendingSends
	s.pendingSends = nil

	for _, fn := range sends {
		fn()
	}
}

// SentBytes concatenates everything passed to Send.
func (s *Socket) SentBytes() []byte {
	var out []byte
	for _, b := range s.Sent {
		out = append(out, b...)
	}

	return out
}

func (s *Socket) flush() {
	p := s.pending
	if p == nil {
		return
	}

	switch {
	case len(s.buf) >= p.n:
		data := append([]byte(nil), s.buf[:p.n]...)
		s.buf = s.buf[p.n:]
		s.pending = nil
		p.done(data, nil)

	case s.empty:
		s.empty = false
		s.pending = nil
		p.done(nil, nil)

	case s.short:
		s.short = false
		data := s.buf
		s.buf = nil
		s.pending = nil
		p.done(data, nil)

	case s.err != nil:
		data := s.buf
		s.buf = nil
		s.pending = nil
		p.done(data, s.err)
	}
}

// Scheduler queues deferred functions until RunPending is called.
type Scheduler struct {
	queue []func()

	// Deferred counts calls to Defer
	Deferred int
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Defer(delay time.Duration, fn func()) {
	s.Deferred++
	s.queue = append(s.queue, fn)
}

// RunPending runs deferred functions, including ones they defer, until the
// queue is empty. It returns how many ran.
func (s *Scheduler) RunPending() int {
	ran := 0

	for len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue = s.queue[1:]
		fn()
		ran++
	}

	return ran
}

var (
	_ engine.Socket    = (*Socket)(nil)
	_ engine.Scheduler = (*Scheduler)(nil)
)
