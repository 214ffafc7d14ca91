// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostbridge provides implementations of connection.HostBridge.
//
// [Socket] reaches a native embedding host over a Unix socket. The
// stream is a sequence of CBOR data items. Client to host, each item
// is a map
//
//	{"message": {...}, "options": {...}}
//
// carrying one application message. Host to client, each item is an
// array of messages, one inbound batch. An item that is not an array
// is logged and skipped; the stream stays open. The bridge ends when
// the socket closes, and [Socket.Closed] reports why.
//
// [Memory] is an in-process bridge for tests and for hosts embedding
// the client in the same process: the host side calls Deliver to push
// batches and reads what the client sent from Sent.
package hostbridge
