// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP response reads and connection
// error classification shared by the feed API client, the WebSocket
// channel, and the host socket bridge.
//
// Response helpers cap body reads at MaxResponseSize so a misbehaving
// server cannot exhaust memory. Error bodies are additionally
// truncated to MaxErrorBody bytes before they are placed into error
// messages.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON response reads: 256 MB. Subfeed pages
// and sha1 documents are far smaller; the bound only guards memory.
const MaxResponseSize int64 = 256 << 20

// MaxErrorBody bounds how much of an error response body is kept for
// diagnostics.
const MaxErrorBody = 4096

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body up to MaxResponseSize bytes and
// JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorBody returns at most MaxErrorBody bytes of an error response
// body as a string. Read errors are ignored; a partial body is still
// useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBody))
	return string(data)
}
