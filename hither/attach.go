// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package hither

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/labbox-foundation/labbox/connection"
	"github.com/labbox-foundation/labbox/protocol"
)

// Transport is the part of *connection.Connection the attach helpers
// use.
type Transport interface {
	Send(ctx context.Context, message protocol.Message) error
	IsDisconnected() bool
	OnMessage(callback func(protocol.Message)) (unsubscribe func())
	OnBatch(callback func([]protocol.Message)) (unsubscribe func())
	OnConnect(callback func()) (unsubscribe func())
}

var _ Transport = (*connection.Connection)(nil)

// AttachSocket wires iface to a socket-mode transport. While the
// transport is disconnected, job messages are appended once each to a
// dispatcher-owned FIFO; the transport's own pre-connect queue covers
// the time before the first connect. Every connect flushes the FIFO
// in order. The returned function detaches iface.
func AttachSocket(iface *Interface, transport Transport) (detach func()) {
	queue := &disconnectQueue{
		transport: transport,
		logger:    iface.logger,
	}
	iface.RegisterSender(queue.send)
	unsubscribeMessages := transport.OnMessage(iface.HandleMessage)
	unsubscribeConnect := transport.OnConnect(queue.flush)
	return func() {
		unsubscribeMessages()
		unsubscribeConnect()
		iface.RegisterSender(nil)
	}
}

type disconnectQueue struct {
	transport Transport
	logger    *slog.Logger

	mu     sync.Mutex
	queued []protocol.Message
}

func (q *disconnectQueue) send(ctx context.Context, message protocol.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	// A non-empty queue means a flush is due; sending around it would
	// reorder job traffic.
	if len(q.queued) > 0 || q.transport.IsDisconnected() {
		q.enqueueLocked(message)
		return nil
	}
	err := q.transport.Send(ctx, message)
	if errors.Is(err, connection.ErrDisconnected) {
		q.enqueueLocked(message)
		return nil
	}
	return err
}

func (q *disconnectQueue) enqueueLocked(message protocol.Message) {
	q.queued = append(q.queued, message)
	q.logger.Info("queued job message while disconnected", "type", message.Type(), "queued", len(q.queued))
}

func (q *disconnectQueue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	queued := q.queued
	q.queued = nil
	for index, message := range queued {
		err := q.transport.Send(context.Background(), message)
		if errors.Is(err, connection.ErrDisconnected) {
			// Disconnected again mid-flush: keep the rest for the next
			// connect.
			q.queued = queued[index:]
			return
		}
		if err != nil {
			q.logger.Warn("flushing queued job message", "type", message.Type(), "error", err)
		}
	}
	if len(queued) > 0 {
		q.logger.Info("flushed queued job messages", "count", len(queued))
	}
}

// AttachHost wires iface to a host-channel transport and starts an
// iterate Poller that runs until ctx ends. Every hitherCreateJob sent
// and every non-empty inbound batch wakes the poller. Job messages
// sent while the transport is disconnected are queued as in
// AttachSocket and flushed on the next connect, which also wakes the
// poller. The returned function detaches iface; the poller stops with
// ctx.
func AttachHost(ctx context.Context, iface *Interface, transport Transport, strategy PollingStrategy) (*Poller, func()) {
	poller := NewPoller(ctx, transport, strategy, iface.logger, iface.metrics)
	queue := &disconnectQueue{
		transport: transport,
		logger:    iface.logger,
	}
	iface.RegisterSender(func(ctx context.Context, message protocol.Message) error {
		if err := queue.send(ctx, message); err != nil {
			return err
		}
		if message.Type() == protocol.TypeHitherCreateJob {
			poller.Wake()
		}
		return nil
	})
	unsubscribeMessages := transport.OnMessage(iface.HandleMessage)
	unsubscribeBatches := transport.OnBatch(func(batch []protocol.Message) {
		if len(batch) > 0 {
			poller.Wake()
		}
	})
	unsubscribeConnect := transport.OnConnect(func() {
		queue.flush()
		poller.Wake()
	})
	poller.Wake()
	return poller, func() {
		unsubscribeMessages()
		unsubscribeBatches()
		unsubscribeConnect()
		iface.RegisterSender(nil)
	}
}
