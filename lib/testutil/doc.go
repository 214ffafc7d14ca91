// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for labbox packages.
//
// [RequireReceive], [RequireNoReceive], [RequireClosed] and
// [RequireSend] wrap the select-with-timeout pattern so tests never
// block forever on a channel. They are the only place tests use the
// wall clock; component timing goes through lib/clock.Fake.
//
// [SocketDir] returns a short-lived directory under /tmp for Unix
// sockets, whose paths are limited to 108 bytes.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation (request ids, job tokens, subfeed names).
package testutil
