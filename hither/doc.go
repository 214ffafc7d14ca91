// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package hither dispatches remote compute jobs over a labbox
// connection and correlates the server's asynchronous job events with
// the jobs this client created.
//
// An [Interface] tracks jobs. It does not send anything itself: an
// outbound [Sender] is registered with [Interface.RegisterSender], and
// inbound messages are fed to [Interface.HandleMessage]. The two
// attach helpers wire an Interface to a connection:
//
//   - [AttachSocket] buffers job traffic in the dispatcher's own FIFO
//     while the connection is disconnected and flushes it, exactly
//     once and in order, on the next connect.
//   - [AttachHost] drives a [Poller] that sends "iterate" nudges over
//     a host channel that has no push wake-up of its own. The nudge
//     interval grows linearly from the strategy's initial interval to
//     its ceiling and resets whenever a job is created or a non-empty
//     batch arrives. Job traffic is buffered across disconnects the
//     same way as in socket mode.
//
// A job moves PendingCreate → Active on hitherJobCreated and leaves
// tracking on hitherJobFinished or hitherJobError. Events naming a job
// id or client token the Interface does not track are ignored: they
// are the normal residue of a restart on either side.
package hither
