// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package observer

import "sync"

type entry[T any] struct {
	id       uint64
	callback func(T)
}

// List is a multi-subscriber broadcast of values of type T. The zero
// value is ready to use.
type List[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry[T]
}

// Subscribe registers callback and returns a function that removes
// it. Calling the returned function more than once is harmless.
func (l *List[T]) Subscribe(callback func(T)) (unsubscribe func()) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, entry[T]{id: id, callback: callback})
	l.mu.Unlock()
	return func() { l.remove(id) }
}

func (l *List[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			// Copy so a Publish iterating the old slice is unaffected.
			entries := make([]entry[T], 0, len(l.entries)-1)
			entries = append(entries, l.entries[:i]...)
			l.entries = append(entries, l.entries[i+1:]...)
			return
		}
	}
}

// Publish invokes every current subscriber with value, in
// registration order.
func (l *List[T]) Publish(value T) {
	l.mu.Lock()
	entries := l.entries
	l.mu.Unlock()
	for _, e := range entries {
		e.callback(value)
	}
}

// Len returns the number of subscribers.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Condition is a boolean state with replay-on-subscribe. Subscribers
// run on every false-to-true transition, and immediately on Subscribe
// if the condition already holds. Each transition reaches a given
// subscriber at most once. The zero value is a false condition.
type Condition struct {
	mu         sync.Mutex
	holds      bool
	generation uint64
	list       List[uint64]
}

// Subscribe registers callback. If the condition holds, callback runs
// before Subscribe returns.
func (c *Condition) Subscribe(callback func()) (unsubscribe func()) {
	c.mu.Lock()
	seen := c.generation
	holds := c.holds
	unsubscribe = c.list.Subscribe(func(generation uint64) {
		if generation > seen {
			callback()
		}
	})
	c.mu.Unlock()
	if holds {
		callback()
	}
	return unsubscribe
}

// Set changes the condition. A false-to-true transition notifies all
// subscribers; every other change is silent. Set reports whether it
// notified.
func (c *Condition) Set(holds bool) bool {
	c.mu.Lock()
	rising := holds && !c.holds
	c.holds = holds
	if rising {
		c.generation++
	}
	generation := c.generation
	c.mu.Unlock()
	if rising {
		c.list.Publish(generation)
	}
	return rising
}

// Holds reports the current state.
func (c *Condition) Holds() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holds
}
