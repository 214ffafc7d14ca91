// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import "errors"

// State is the connection lifecycle state.
type State int

const (
	// Waiting is the state of a new connection before its first
	// channel opens. Sends are queued.
	Waiting State = iota
	// Connected means a channel is open. Sends are transmitted.
	Connected
	// Disconnected means the channel closed or could not be opened.
	// Sends are dropped until Reconnect succeeds.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

var (
	// ErrNotConfigured is returned by New when no endpoint, host
	// bridge, or dialer is configured.
	ErrNotConfigured = errors.New("connection: no websocket url, host bridge, or dialer configured")

	// ErrInvalidState is returned by Reconnect outside the
	// Disconnected state, and while another reconnect is dialing.
	ErrInvalidState = errors.New("connection: invalid state for reconnect")

	// ErrDisconnected is returned by Send while Disconnected.
	ErrDisconnected = errors.New("connection: disconnected")
)
