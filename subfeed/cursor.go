// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package subfeed

import (
	"encoding/json"
	"sync"
)

// Cursor tracks how much of a replica a consumer has seen.
type Cursor struct {
	subfeed *Subfeed

	mu       sync.Mutex
	reported int
}

// NewCursor returns a cursor positioned at the start of the replica.
func (s *Subfeed) NewCursor() *Cursor {
	return &Cursor{subfeed: s}
}

// Next returns the messages appended since the previous call and
// advances past them. It returns nil when there is nothing new.
func (c *Cursor) Next() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.subfeed
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.reported >= len(s.messages) {
		return nil
	}
	fresh := append([]json.RawMessage(nil), s.messages[c.reported:]...)
	c.reported = len(s.messages)
	return fresh
}

// Position returns the number of messages already returned by Next.
func (c *Cursor) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reported
}

// OnMessages reports every message of subfeed to callback exactly
// once, in order: first whatever is already replicated, then each new
// slice as the replica grows. Calls to callback never overlap.
func OnMessages(subfeed *Subfeed, callback func([]json.RawMessage)) (unsubscribe func()) {
	cursor := subfeed.NewCursor()
	var mu sync.Mutex
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		if fresh := cursor.Next(); len(fresh) > 0 {
			callback(fresh)
		}
	}
	unsubscribe = subfeed.OnChange(report)
	report()
	return unsubscribe
}
