// Package ratelimit bounds how many log queries are issued per time window.
//
// Window is a fixed-window counter: at most Quota Acquire calls succeed per
// window, and a ticker resets the count at every window boundary. Waiters park
// on a broadcast channel that the next tick closes, then re-check; they never
// spin.
//
// A nil *Window is valid and never blocks, so callers can treat the limiter
// as optional.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Acquire once the window has been closed.
var ErrClosed = errors.New("rate limiter closed")

const (
	DefaultQuota  = 5
	DefaultWindow = time.Second
)

type Window struct {
	quota int

	mu     sync.Mutex
	issued int
	// next is closed (and replaced) on every reset to wake waiters.
	next   chan struct{}
	closed bool

	done      chan struct{}
	stopTick  func()
	closeOnce sync.Once
	loopDone  chan struct{}
}

// New starts a window limiter granting quota acquisitions per window.
// Callers must Close it to stop the reset ticker.
func New(quota int, window time.Duration) *Window {
	if window <= 0 {
		window = DefaultWindow
	}
	t := time.NewTicker(window)
	return newWindow(quota, t.C, t.Stop)
}

// newWindow wires the limiter to an arbitrary tick source so tests can drive
// resets deterministically.
func newWindow(quota int, ticks <-chan time.Time, stop func()) *Window {
	if quota <= 0 {
		quota = DefaultQuota
	}
	w := &Window{
		quota:    quota,
		next:     make(chan struct{}),
		done:     make(chan struct{}),
		stopTick: stop,
		loopDone: make(chan struct{}),
	}
	go w.resetLoop(ticks)
	return w
}

func (w *Window) resetLoop(ticks <-chan time.Time) {
	defer close(w.loopDone)
	for {
		select {
		case <-w.done:
			return
		case <-ticks:
			w.reset()
		}
	}
}

func (w *Window) reset() {
	w.mu.Lock()
	w.issued = 0
	close(w.next)
	w.next = make(chan struct{})
	w.mu.Unlock()
}

// Acquire blocks until a slot in the current window is granted, ctx is done
// or the limiter is closed.
func (w *Window) Acquire(ctx context.Context) error {
	if w == nil {
		return nil
	}
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return ErrClosed
		}
		if w.issued < w.quota {
			w.issued++
			w.mu.Unlock()
			return nil
		}
		wake := w.next
		w.mu.Unlock()

		select {
		case <-wake:
		case <-w.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Quota returns the number of grants per window (0 for a nil limiter).
func (w *Window) Quota() int {
	if w == nil {
		return 0
	}
	return w.quota
}

// Close stops the reset ticker and releases all waiters with ErrClosed.
// It is idempotent and waits for the reset goroutine to exit.
func (w *Window) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
		if w.stopTick != nil {
			w.stopTick()
		}
		<-w.loopDone
	})
}
