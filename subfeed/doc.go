// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package subfeed replicates remote append-only subfeeds into local,
// ordered message sequences.
//
// A [Manager] answers [Manager.GetMessages] with an immediate fetch
// when messages are already available. At an empty tail it registers
// a pending request, asks the server over the connection to notify it
// (subfeedMessageRequest), and waits for whichever comes first: the
// server's subfeedMessageRequestResponse, a local timeout of the wait
// budget plus [DefaultNotifyGrace], or the caller's context. Each
// pending request resolves exactly once; a notification that arrives
// after its request resolved is ignored.
//
// [Manager.Subscribe] starts a replica driver for one (feed, subfeed)
// pair. The driver repeatedly polls from the replica's current length,
// so positions are never skipped or fetched twice, and notifies change
// observers when the replica grows or first finishes loading. A
// [Cursor] hands a consumer only the messages beyond what it has
// already seen.
package subfeed
