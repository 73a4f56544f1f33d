// Package events publishes protocol state changes to any number of observers without ever
// blocking the publisher.
package events

import "context"

// Adapted from the slides for "Rethinking Classical Concurrency Patterns" by Bryan C. Mills.

type queue[T any] struct {
	items chan []T  // contains 0 or 1 non-empty slices
	empty chan bool // contains true if items is empty
}

func newQueue[T any]() *queue[T] {
	items := make(chan []T, 1)
	empty := make(chan bool, 1)
	empty <- true
	return &queue[T]{items, empty}
}

func (q *queue[T]) put(item T) {
	var items []T
	select {
	case items = <-q.items:
	case <-q.empty:
	}
	items = append(items, item)
	q.items <- items
}

func (q *queue[T]) get(ctx context.Context) (T, bool) {
	var items []T
	select {
	case <-ctx.Done():
		var zero T
		return zero, false
	case items = <-q.items:
	}

	item := items[0]
	items = items[1:]
	if len(items) == 0 {
		q.empty <- true
	} else {
		q.items <- items
	}

	return item, true
}

func (q *queue[T]) drain() []T {
	select {
	case items := <-q.items:
		q.empty <- true
		return items
	default:
		return nil
	}
}

// Subscription identifies one observer of a Feed.
type Subscription struct {
	t chan struct{}
}

// Feed delivers every published value to every subscriber, in order. Subscriber queues are
// unbounded, so a slow subscriber costs memory but never stalls Publish.
type Feed[T any] struct {
	st chan map[chan struct{}]*queue[T]
}

func NewFeed[T any]() *Feed[T] {
	st := make(chan map[chan struct{}]*queue[T], 1)
	st <- make(map[chan struct{}]*queue[T])

	return &Feed[T]{st: st}
}

func (f *Feed[T]) Subscribe() Subscription {
	q := newQueue[T]()
	t := make(chan struct{})

	st := <-f.st
	st[t] = q
	f.st <- st

	return Subscription{t}
}

func (f *Feed[T]) Unsubscribe(s Subscription) {
	st := <-f.st
	delete(st, s.t)
	f.st <- st
}

func (f *Feed[T]) Publish(v T) {
	st := <-f.st
	for _, q := range st {
		q.put(v)
	}
	f.st <- st
}

// Next blocks until a value is available for s or ctx is done. ok is false if ctx ended
// first or s is not subscribed.
func (f *Feed[T]) Next(ctx context.Context, s Subscription) (v T, ok bool) {
	q := f.lookup(s)
	if q == nil {
		return v, false
	}

	return q.get(ctx)
}

// Drain returns everything queued for s without blocking.
func (f *Feed[T]) Drain(s Subscription) []T {
	q := f.lookup(s)
	if q == nil {
		return nil
	}

	return q.drain()
}

func (f *Feed[T]) lookup(s Subscription) *queue[T] {
	st := <-f.st
	q := st[s.t]
	f.st <- st

	return q
}
