// Package gateway holds the process-wide services shared by the HTTP
// handlers and maps service errors onto HTTP responses.
package gateway

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Lazy builds a value on first use. Concurrent first callers share one
// construction; a failed construction is retried by the next caller.
type Lazy[T any] struct {
	init  func(ctx context.Context) (T, error)
	group singleflight.Group
	done  atomic.Bool
	value T
}

// NewLazy returns a cell that builds its value with init
func NewLazy[T any](init func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// Ready returns a cell that is already initialized with v
func Ready[T any](v T) *Lazy[T] {
	l := &Lazy[T]{value: v}
	l.done.Store(true)
	return l
}

// Get returns the value, building it if needed. The construction outlives
// ctx so that a caller giving up does not fail the other waiters.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if l.done.Load() {
		return l.value, nil
	}

	ch := l.group.DoChan("init", func() (any, error) {
		if l.done.Load() {
			return l.value, nil
		}
		v, err := l.init(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.value = v
		l.done.Store(true)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Initialized reports whether the value has been built
func (l *Lazy[T]) Initialized() bool {
	return l.done.Load()
}
