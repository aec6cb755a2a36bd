// Package loop runs callbacks one at a time on a single goroutine.
// Tile images post their load and error events here, so tile state is never mutated concurrently.
package loop

import (
	"context"
)

type Loop struct {
	tasks chan func()
}

func New(size int) *Loop {
	return &Loop{
		tasks: make(chan func(), size),
	}
}

// Post queues f. It is safe to call from any goroutine and blocks while the queue is full.
func (l *Loop) Post(f func()) {
	l.tasks <- f
}

// TryPost queues f unless the queue is full. It never blocks and reports whether f was queued.
func (l *Loop) TryPost(f func()) bool {
	select {
	case l.tasks <- f:
		return true
	default:
		return false
	}
}

// Run executes posted callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.tasks:
			f()
		}
	}
}

// RunUntil executes posted callbacks until cond returns true or ctx is done.
// cond is checked before waiting and after every callback.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.tasks:
			f()
		}
	}

	return nil
}

// Drain runs everything queued right now without waiting and returns the number of callbacks run.
func (l *Loop) Drain() int {
	n := 0

	for {
		select {
		case f := <-l.tasks:
			f()
			n++
		default:
			return n
		}
	}
}
