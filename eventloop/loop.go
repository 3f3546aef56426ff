package eventloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("Event loop has stopped")

// task is a unit of work owned by the loop until it has run or the loop has
// stopped, at which point it is dropped.
type task struct {
	fn func()
}

// Loop runs posted functions one at a time on a single goroutine. It is the
// scheduler that engine continuations run on: transport goroutines Post
// their completions here rather than calling them directly.
type Loop struct {
	mu      sync.Mutex
	queue   []*task
	timers  map[*time.Timer]struct{}
	stopped bool

	wake chan struct{}
	done chan struct{}

	log *zap.Logger
}

func New(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}

	return &Loop{
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Post queues fn to run on the loop. It returns false if the loop has
// stopped, in which case fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}

	l.queue = append(l.queue, &task{fn: fn})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
		// A wakeup is already pending
	}

	return true
}

// Defer runs fn on the loop after delay. A zero delay queues fn behind the
// work that is already pending.
func (l *Loop) Defer(delay time.Duration, fn func()) {
	if delay <= 0 {
		l.Post(fn)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		delete(l.timers, timer)
		l.mu.Unlock()

		l.Post(fn)
	})

	l.timers[timer] = struct{}{}
}

// Run executes posted work until ctx is cancelled. Work still queued when
// Run returns is dropped and pending timers are stopped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.wake:
			for _, t := range l.take() {
				l.run(t)

				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) take() []*task {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks := l.queue
	l.queue = nil

	return tasks
}

func (l *Loop) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Recovered from panic in event loop task", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	t.fn()
}

func (l *Loop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}

	l.stopped = true

	for timer := range l.timers {
		timer.Stop()
		delete(l.timers, timer)
	}

	if len(l.queue) > 0 {
		l.log.Debug("Dropping queued tasks", zap.Int("count", len(l.queue)))
	}

	l.queue = nil
	close(l.done)
}
