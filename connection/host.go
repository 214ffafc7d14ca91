// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/labbox-foundation/labbox/protocol"
)

// HostBridge is the message channel an embedding host exposes in
// place of a socket. Inbound traffic arrives as already-decoded
// batches.
type HostBridge interface {
	// Send transmits one message with host-specific options.
	Send(message protocol.Message, options map[string]any) error

	// Subscribe registers a receiver for inbound batches.
	Subscribe(receive func(batch []protocol.Message)) (unsubscribe func())
}

// ClosingBridge is implemented by bridges that can end, such as a
// bridge carried over a socket. The channel returned by Closed yields
// the reason, or is closed, when the bridge ends.
type ClosingBridge interface {
	HostBridge
	Closed() <-chan error
}

// ErrBridgeClosed is returned when dialing a bridge that has ended.
var ErrBridgeClosed = errors.New("connection: host bridge closed")

// HostDialer opens channels over a HostBridge. A host channel is
// available as soon as it is dialed.
type HostDialer struct {
	Bridge HostBridge

	// Options are passed with every Send.
	Options map[string]any
}

var _ Dialer = (*HostDialer)(nil)

// Dial subscribes to the bridge.
func (d *HostDialer) Dial(_ context.Context, events Events) (Channel, error) {
	closing, canClose := d.Bridge.(ClosingBridge)
	if canClose {
		select {
		case <-closing.Closed():
			return nil, ErrBridgeClosed
		default:
		}
	}

	channel := &hostChannel{
		bridge:  d.Bridge,
		options: d.Options,
		events:  events,
		done:    make(chan struct{}),
	}
	channel.unsubscribe = d.Bridge.Subscribe(events.Batch)
	if canClose {
		go func() {
			select {
			case err := <-closing.Closed():
				if err == nil {
					err = ErrBridgeClosed
				}
				channel.finish(err)
			case <-channel.done:
			}
		}()
	}
	return channel, nil
}

type hostChannel struct {
	bridge      HostBridge
	options     map[string]any
	events      Events
	unsubscribe func()
	done        chan struct{}
	once        sync.Once
}

func (c *hostChannel) Send(_ context.Context, message protocol.Message) error {
	return c.bridge.Send(message, c.options)
}

func (c *hostChannel) Close() error {
	c.finish(nil)
	return nil
}

func (c *hostChannel) finish(err error) {
	c.once.Do(func() {
		c.unsubscribe()
		close(c.done)
		c.events.Closed(err)
	})
}
