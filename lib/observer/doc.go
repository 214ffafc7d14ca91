// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package observer provides the two callback-list shapes labbox
// components expose to their consumers.
//
// [List] is a pure broadcast for stream-style events (inbound
// messages, replica growth): subscribers added after an event never
// see it.
//
// [Condition] is a replay-on-subscribe list for state-style events
// (connected, disconnected, initial load complete): a subscriber
// added while the condition holds is invoked immediately, so late
// subscribers cannot miss a transition that already happened.
//
// Both invoke subscribers in registration order, on the publishing
// goroutine, with no internal lock held. A subscriber may subscribe
// or unsubscribe from within its callback.
package observer
