// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"

	"github.com/labbox-foundation/labbox/protocol"
)

// Dialer opens one channel epoch.
type Dialer interface {
	// Dial opens a channel and starts delivering its inbound traffic
	// to events. ctx bounds the dial only, not the channel's lifetime.
	Dial(ctx context.Context, events Events) (Channel, error)
}

// Channel is one open transport channel.
type Channel interface {
	// Send transmits a single message.
	Send(ctx context.Context, message protocol.Message) error

	// Close tears the channel down. Events.Closed fires afterwards if
	// it has not already.
	Close() error
}

// Events receives a channel's inbound traffic. A Channel calls Batch
// and Violation from one goroutine at a time, in arrival order, and
// calls Closed at most once, after which it calls nothing.
type Events struct {
	// Batch delivers one inbound batch, possibly empty.
	Batch func(batch []protocol.Message)

	// Violation reports an inbound frame, or part of one, that was
	// dropped because it was not a batch of typed messages.
	Violation func(err error)

	// Closed reports the end of the channel. err is nil for a local
	// Close.
	Closed func(err error)
}
