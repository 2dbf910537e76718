// Package pool provides typed object pooling.
//
// Pool[T] wraps sync.Pool with a reset hook and allocation statistics.
// The package level string slice pool backs the per-row value slices of
// the CSV writer, which are encoded and released immediately.
//
// Example usage:
//
//	values := pool.GetStringSlice(len(columns))
//	defer pool.PutStringSlice(values)
//	for i, col := range columns {
//	    (*values)[i] = format(row[col])
//	}
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a pool. reset, if not nil, is called on every object
// returned through Put.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object, allocating one when the pool is empty
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the number of objects allocated, currently checked out and
// requested in total.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.gets)
}

// maxPooledSlice bounds the capacity of slices kept for reuse
const maxPooledSlice = 1024

var stringSlicePool = New(
	func() *[]string {
		s := make([]string, 0, 64)
		return &s
	},
	func(s *[]string) {
		clear(*s)
		*s = (*s)[:0]
	},
)

// GetStringSlice returns a pooled slice of length n with every element empty
func GetStringSlice(n int) *[]string {
	s := stringSlicePool.Get()
	if cap(*s) < n {
		*s = make([]string, n)
	}
	*s = (*s)[:n]
	return s
}

// PutStringSlice releases s for reuse. The caller must not use s afterwards.
func PutStringSlice(s *[]string) {
	if s == nil || cap(*s) > maxPooledSlice {
		return
	}
	stringSlicePool.Put(s)
}

// StringSliceStats returns the statistics of the string slice pool
func StringSliceStats() (allocated, inUse, gets int64) {
	return stringSlicePool.Stats()
}
