// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package subfeed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/labbox-foundation/labbox/lib/observer"
)

// Subfeed is the local replica of one remote subfeed. Its message
// sequence only grows, and positions are stable 0-based indexes.
type Subfeed struct {
	manager     *Manager
	key         Key
	feedURI     string
	subfeedName any

	inactive atomic.Bool
	done     chan struct{}
	changes  observer.List[struct{}]

	mu       sync.Mutex
	refs     int
	messages []json.RawMessage
	loaded   bool
}

func newSubfeed(manager *Manager, key Key, feedURI string, subfeedName any) *Subfeed {
	return &Subfeed{
		manager:     manager,
		key:         key,
		feedURI:     feedURI,
		subfeedName: subfeedName,
		done:        make(chan struct{}),
		refs:        1,
	}
}

// FeedURI returns the feed the replica follows. "" is the server's
// default feed.
func (s *Subfeed) FeedURI() string { return s.feedURI }

// SubfeedName returns the subfeed name, a string or a JSON object.
func (s *Subfeed) SubfeedName() any { return s.subfeedName }

// Key returns the replica's identity within its Manager.
func (s *Subfeed) Key() Key { return s.key }

// Messages returns a copy of the replicated messages.
func (s *Subfeed) Messages() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.messages...)
}

// Len returns the number of replicated messages, which is also the
// position of the next poll.
func (s *Subfeed) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// LoadedInitialMessages reports whether the first poll cycle has
// completed. Once true it stays true.
func (s *Subfeed) LoadedInitialMessages() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// OnChange registers callback to run, from the driver goroutine, after
// the replica grows and after the first poll cycle completes.
func (s *Subfeed) OnChange(callback func()) (unsubscribe func()) {
	return s.changes.Subscribe(func(struct{}) { callback() })
}

// AppendMessages appends messages to the remote subfeed. They appear
// in the replica once a poll returns them.
func (s *Subfeed) AppendMessages(ctx context.Context, messages []json.RawMessage) error {
	return s.manager.AppendMessages(ctx, s.feedURI, s.subfeedName, messages)
}

// Cleanup releases one Subscribe. When the last is released the driver
// stops after its in-flight poll completes. Extra calls are harmless.
func (s *Subfeed) Cleanup() {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return
	}
	s.refs--
	last := s.refs == 0
	s.mu.Unlock()
	if last {
		s.inactive.Store(true)
		s.manager.release(s)
	}
}

// Done is closed when the driver loop has exited.
func (s *Subfeed) Done() <-chan struct{} { return s.done }

// acquire adds a reference, failing once the replica has been fully
// released.
func (s *Subfeed) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return false
	}
	s.refs++
	return true
}

func (s *Subfeed) run() {
	defer close(s.done)
	m := s.manager
	logger := m.logger.With("feed_uri", s.feedURI, "subfeed", s.key.String()[:12])

	for !s.inactive.Load() {
		messages, err := m.GetMessages(m.life, s.feedURI, s.subfeedName, s.Len(), m.waitMsec)
		if m.life.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("subfeed poll failed", "position", s.Len(), "error", err)
		} else {
			s.apply(messages)
		}

		select {
		case <-m.life.Done():
			return
		case <-m.clock.After(m.idlePause):
		}
	}
}

// apply appends one poll's result and notifies observers if the
// replica grew or finished its first cycle.
func (s *Subfeed) apply(messages []json.RawMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, messages...)
	first := !s.loaded
	s.loaded = true
	s.mu.Unlock()

	if len(messages) > 0 {
		s.manager.metrics.ReplicaGrew(len(messages))
	}
	if len(messages) > 0 || first {
		s.changes.Publish(struct{}{})
	}
}
