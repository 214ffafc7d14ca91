// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package hostbridge

import (
	"errors"
	"sync"

	"github.com/labbox-foundation/labbox/connection"
	"github.com/labbox-foundation/labbox/lib/observer"
	"github.com/labbox-foundation/labbox/protocol"
)

var _ connection.ClosingBridge = (*Memory)(nil)

// ErrClosed is returned by Send on a bridge that has ended.
var ErrClosed = errors.New("hostbridge: closed")

// Sent is one message the client sent through a bridge.
type Sent struct {
	Message protocol.Message
	Options map[string]any
}

// Memory is an in-process HostBridge.
type Memory struct {
	receivers observer.List[[]protocol.Message]

	mu     sync.Mutex
	log    []Sent
	ended  bool
	sent   chan Sent
	closed chan error
}

// NewMemory returns an open bridge whose Sent channel buffers up to
// buffer messages. Messages beyond the buffer are still recorded in
// History.
func NewMemory(buffer int) *Memory {
	return &Memory{
		sent:   make(chan Sent, buffer),
		closed: make(chan error, 1),
	}
}

// Send records message as sent by the client.
func (m *Memory) Send(message protocol.Message, options map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return ErrClosed
	}
	sent := Sent{Message: message, Options: options}
	m.log = append(m.log, sent)
	select {
	case m.sent <- sent:
	default:
	}
	return nil
}

// Subscribe registers a receiver for batches passed to Deliver.
func (m *Memory) Subscribe(receive func([]protocol.Message)) func() {
	return m.receivers.Subscribe(receive)
}

// Closed yields the reason passed to End.
func (m *Memory) Closed() <-chan error { return m.closed }

// Deliver pushes one inbound batch to every subscriber, synchronously.
func (m *Memory) Deliver(batch ...protocol.Message) {
	if batch == nil {
		batch = []protocol.Message{}
	}
	m.receivers.Publish(batch)
}

// Sent delivers each message the client sends, in order.
func (m *Memory) Sent() <-chan Sent { return m.sent }

// History returns every message sent so far.
func (m *Memory) History() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.log...)
}

// End closes the bridge with reason.
func (m *Memory) End(reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	m.closed <- reason
	close(m.closed)
}
