// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Labbox is a command-line client for a labbox compute backend. It
// reports server info, runs hither jobs, and follows or appends to
// subfeeds.
//
// Usage:
//
//	labbox status --websocket-url ws://localhost:15308
//	labbox job add --kwargs '{"a": 1, "b": 2}'
//	labbox follow - main --feed-url http://localhost:15309/api
//	labbox append - main '{"text": "hello"}'
//
// Configuration comes from --config or LABBOX_CONFIG, then LABBOX_*
// environment variables, then flags. Set LABBOX_DEBUG for debug logs.
//
// The exit status is 1 when a command cannot run, and 2 when a job ran
// on the backend and failed; the failure report is printed to stdout.
package main
