package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher serializes side effects (text insertion, overlay updates) onto
// a single goroutine. Work is submitted from worker goroutines and the
// controller; execution order matches submission order.
type Dispatcher struct {
	// stateMu serializes Do against the queue close in Close.
	stateMu sync.RWMutex
	closed  bool
	queue   chan func()
	pending atomic.Int64 // queued plus currently running

	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewDispatcher creates and starts a dispatcher with the given queue depth.
func NewDispatcher(queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}

	d := &Dispatcher{
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for fn := range d.queue {
		fn()
		d.pending.Add(-1)
	}
}

// Do enqueues fn for execution on the dispatcher goroutine. It blocks only
// when the queue is full. Effects submitted after Close are dropped.
func (d *Dispatcher) Do(fn func()) {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	if d.closed {
		d.logger.Debug("Dropping effect, dispatcher closed")
		return
	}

	d.pending.Add(1)
	d.queue <- fn
}

// Pending returns the number of effects queued or currently running.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// WaitIdle polls until no effects are pending or the timeout elapses. It
// reports whether the dispatcher went idle. Callers use this only to decide
// when hiding the overlay is safe; insertions keep running either way.
func (d *Dispatcher) WaitIdle(timeout, poll time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		if d.pending.Load() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			d.logger.Warn("Timed out waiting for pending effects",
				slog.Int("pending", d.Pending()),
				slog.Duration("timeout", timeout))
			return false
		}
		time.Sleep(poll)
	}
}

// Close stops accepting work and waits for queued effects to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.stateMu.Lock()
		d.closed = true
		close(d.queue)
		d.stateMu.Unlock()

		<-d.done
	})
}
