// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by every
// labbox component that waits: the connection heartbeat, the hither
// iterate loop, the subfeed long-poll timeout, and the replica
// driver's idle pause.
//
// Production code holds a Clock field set to Real(). Tests construct
// Fake() and drive time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	manager := subfeed.NewManager(subfeed.ManagerConfig{Clock: fake, ...})
//	go manager.GetMessages(ctx, "", "main", 0, 5000)
//	fake.WaitForTimers(1)            // the 7s timeout is registered
//	fake.Advance(7 * time.Second)    // and now it fires
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past its deadline.
package clock
