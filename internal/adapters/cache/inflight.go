package cache

import (
	"context"
	"fmt"
	"sync"
)

// task is a single fetch that any number of callers may wait on
type task[T any] struct {
	done  chan struct{}
	value T
	// ok is false when the task settled without producing a value
	ok  bool
	err error
}

// wait blocks until the task settles or ctx is done.
// Giving up on waiting does not cancel the task.
func (t *task[T]) wait(ctx context.Context) (T, bool, error) {
	select {
	case <-t.done:
		return t.value, t.ok, t.err
	case <-ctx.Done():
		var empty T
		return empty, false, ctx.Err()
	}
}

type inflightRegistry[T any] struct {
	mu    sync.Mutex
	tasks map[string]*task[T]
}

func newInflightRegistry[T any]() *inflightRegistry[T] {
	return &inflightRegistry[T]{tasks: make(map[string]*task[T])}
}

// getOrCreate returns the task running for key, or starts start in a new goroutine.
// created reports whether this call started the task.
func (r *inflightRegistry[T]) getOrCreate(key string, start func() (T, bool, error)) (*task[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tasks[key]; ok {
		return existing, false
	}

	t := &task[T]{done: make(chan struct{})}
	r.tasks[key] = t

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				var empty T
				t.value, t.ok, t.err = empty, false, fmt.Errorf("%w: panic: %v", ErrFetch, recovered)
			}

			// Remove before waking waiters so a retry after failure starts a new task
			r.mu.Lock()
			delete(r.tasks, key)
			r.mu.Unlock()

			close(t.done)
		}()

		t.value, t.ok, t.err = start()
	}()

	return t, true
}
