// Package loader batches and deduplicates per-row lookups issued while a
// single request resolves relational fields across a page of results.
// Loads made within the collection window travel to the store as one bulk
// query instead of one round-trip per row.
package loader

import (
	"context"
	"sync"
	"time"
)

const (
	defaultWait     = 2 * time.Millisecond
	defaultMaxBatch = 100
)

// BatchFunc fetches all values for a set of distinct keys in one call.
// Keys with no value are simply left out of the returned map.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Loader collects Load calls into batches. One Loader is scoped to one
// inbound request: its memoization of resolved keys must never outlive or
// cross requests.
type Loader[K comparable, V any] struct {
	fetch    BatchFunc[K, V]
	wait     time.Duration
	maxBatch int

	mu      sync.Mutex
	batches map[K]*batch[K, V]
	current *batch[K, V]
}

type batch[K comparable, V any] struct {
	keys    []K
	done    chan struct{}
	started bool
	results map[K]V
	err     error
}

// Option tweaks Loader construction.
type Option func(*options)

type options struct {
	wait     time.Duration
	maxBatch int
}

// WithWait overrides the collection window.
func WithWait(d time.Duration) Option {
	return func(o *options) { o.wait = d }
}

// WithMaxBatch caps how many distinct keys one batch may carry before it
// dispatches early.
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// New constructs a Loader around fetch.
func New[K comparable, V any](fetch BatchFunc[K, V], opts ...Option) *Loader[K, V] {
	o := options{wait: defaultWait, maxBatch: defaultMaxBatch}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[K, V]{
		fetch:    fetch,
		wait:     o.wait,
		maxBatch: o.maxBatch,
		batches:  make(map[K]*batch[K, V]),
	}
}

// Load resolves one key, blocking until the batch it joined has been
// dispatched and fetched. The second return reports whether the store had
// a value for the key; absence is not an error. Repeated loads of a key
// share the original batch's result.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	b := l.enlist(ctx, key)

	select {
	case <-b.done:
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}

	if b.err != nil {
		var zero V
		return zero, false, b.err
	}
	v, ok := b.results[key]
	return v, ok, nil
}

// enlist assigns a batch to key, reusing the batch that already owns the
// key when the request asked for it before.
func (l *Loader[K, V]) enlist(ctx context.Context, key K) *batch[K, V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.batches[key]; ok {
		return b
	}

	if l.current == nil {
		b := &batch[K, V]{done: make(chan struct{})}
		l.current = b
		time.AfterFunc(l.wait, func() { l.dispatch(ctx, b) })
	}

	b := l.current
	b.keys = append(b.keys, key)
	l.batches[key] = b

	if len(b.keys) >= l.maxBatch {
		l.current = nil
		go l.dispatch(ctx, b)
	}
	return b
}

// dispatch runs the bulk fetch exactly once for a batch and wakes every
// waiter. The context belongs to the request the loader is scoped to, so
// cancellation propagates to the underlying query.
func (l *Loader[K, V]) dispatch(ctx context.Context, b *batch[K, V]) {
	l.mu.Lock()
	if l.current == b {
		l.current = nil
	}
	if b.started {
		// the size trigger got here first
		l.mu.Unlock()
		return
	}
	b.started = true
	keys := b.keys
	l.mu.Unlock()

	results, err := l.fetch(ctx, keys)
	l.mu.Lock()
	if results == nil {
		results = make(map[K]V)
	}
	b.results = results
	b.err = err
	l.mu.Unlock()
	close(b.done)
}
