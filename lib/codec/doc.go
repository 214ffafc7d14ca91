// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration for the host socket
// bridge.
//
// Application messages travel as JSON over the WebSocket channel and
// as CBOR over the Unix socket that connects a native host to this
// client. Both carry the same logical data: objects with a string
// "type" and type-specific fields. The CBOR side uses Core
// Deterministic Encoding (RFC 8949 §4.2) and decodes untyped maps as
// map[string]any so a decoded frame is directly usable as a
// protocol.Message.
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
//	var raw codec.RawMessage
//	if err := decoder.Decode(&raw); err != nil { ... }
//	if !codec.IsArray(raw) { ... protocol violation ... }
package codec
