// Package pool recycles render objects so a trajectory update at stream rate
// does not construct and destroy scene objects every frame.
//
// A Pool is owned by the render goroutine and is not safe for concurrent use.
package pool

// Pool hands out reusable values of T.
type Pool[T any] struct {
	newFn     func() T
	available []T
	created   int
}

// New returns a pool pre-warmed with warm values built by newFn.
func New[T any](warm int, newFn func() T) *Pool[T] {
	p := &Pool[T]{newFn: newFn}
	p.Warm(warm)
	return p
}

// Warm constructs values until at least n are available.
func (p *Pool[T]) Warm(n int) {
	for len(p.available) < n {
		p.available = append(p.available, p.newFn())
		p.created++
	}
}

// Acquire pops an available value, constructing a new one when the pool is
// empty. It never blocks and never fails.
func (p *Pool[T]) Acquire() T {
	if n := len(p.available); n > 0 {
		v := p.available[n-1]
		var zero T
		p.available[n-1] = zero
		p.available = p.available[:n-1]
		return v
	}
	p.created++
	return p.newFn()
}

// Release returns v for reuse.
func (p *Pool[T]) Release(v T) {
	p.available = append(p.available, v)
}

// Created is the total number of values ever constructed.
func (p *Pool[T]) Created() int { return p.created }

// Available is the number of values ready for Acquire.
func (p *Pool[T]) Available() int { return len(p.available) }
