// Package worker bounds CPU-bound engine work such as local inference.
package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool admits at most size concurrent jobs. Callers wait for a slot without
// holding up unrelated goroutines.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool with size slots; size < 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Do runs fn once a slot is free. It returns ctx.Err() if ctx ends first.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
