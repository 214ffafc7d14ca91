// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection owns the single logical connection between the
// client and its compute backend.
//
// A [Connection] is a small state machine:
//
//	Waiting ──connect──▶ Connected ──channel close──▶ Disconnected
//	   │                                                  │  ▲
//	   └──────────────dial failure──────────────────────▶ │  │
//	                            Connected ◀──Reconnect────┘  │
//	                                        (dial failure)───┘
//
// Messages sent while Waiting are held in a FIFO and flushed, in
// order, before connect observers run. Messages sent while
// Disconnected are dropped with [ErrDisconnected]; layers that must
// not lose traffic across a disconnect (the hither dispatcher) keep
// their own queue. There is no automatic retry: recovery is an
// explicit [Connection.Reconnect], valid only from Disconnected.
//
// The connection is transport-agnostic. A [Dialer] produces a
// [Channel] for one epoch; [WebSocketDialer] speaks JSON over a
// WebSocket and [HostDialer] wraps a [HostBridge] exposed by an
// embedding host. Inbound frames are batches of messages; a frame
// that is not a batch is logged and dropped without closing the
// channel.
//
// Observers: [Connection.OnMessage] and [Connection.OnBatch] are pure
// broadcasts; [Connection.OnConnect] and [Connection.OnDisconnect]
// replay immediately when their state already holds. Connect and
// disconnect notifications are delivered one at a time in transition
// order, so an observer may call Reconnect or Send from its callback.
//
// A keepAlive message goes out every heartbeat interval (17s by
// default) for as long as the Start context lives, except while
// Disconnected.
package connection
