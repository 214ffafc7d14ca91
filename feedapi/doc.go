// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package feedapi is the HTTP client for the backend's feed endpoints
// and its content-addressed document endpoint.
//
// The feed endpoints read and append subfeed messages:
//
//	POST {base}/getMessages    {feedUri, subfeedName, position, waitMsec} -> {messages: [...]}
//	POST {base}/appendMessages {feedUri, subfeedName, messages}          -> {success: true}
//
// The document endpoint serves JSON by sha1:
//
//	GET {sha1Base}/{sha1}
//
// Authentication is the caller's concern: [ClientConfig.Authorize]
// runs on every request before it is sent. Responses are requested
// with gzip and decompressed transparently.
package feedapi
