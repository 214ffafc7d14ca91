// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
)

// SubfeedHash returns the identifier the server stores a subfeed
// under. A string name starting with "~" is already a hash and is
// returned without the prefix. Any other string is hashed directly.
// Objects are hashed in canonical JSON form (see CanonicalJSON).
func SubfeedHash(name any) (string, error) {
	if s, ok := name.(string); ok {
		if hashed, found := strings.CutPrefix(s, "~"); found {
			return hashed, nil
		}
		return sha1Hex([]byte(s)), nil
	}
	canonical, err := CanonicalJSON(name)
	if err != nil {
		return "", fmt.Errorf("protocol: subfeed name: %w", err)
	}
	return sha1Hex(canonical), nil
}

// SubfeedHashFromURI returns the subfeed hash for a URI of the form
// feed://FEED_ID/SUBFEED_NAME.
func SubfeedHashFromURI(uri string) (string, error) {
	parts := strings.Split(uri, "/")
	if len(parts) < 4 || parts[3] == "" {
		return "", fmt.Errorf("protocol: %q has no subfeed component", uri)
	}
	return SubfeedHash(parts[3])
}

// CanonicalJSON encodes v with sorted object keys, no whitespace, no
// HTML escaping, and DEL and every non-ASCII character written as a
// \u escape. This is the form the server hashes object subfeed names in.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// Re-decode into untyped values so struct field order cannot leak
	// into the output; encoding/json sorts map keys.
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(generic); err != nil {
		return nil, err
	}
	return escapeNonASCII(bytes.TrimSuffix(buffer.Bytes(), []byte("\n"))), nil
}

// escapeNonASCII rewrites DEL and every rune above it as \uXXXX, using
// surrogate pairs outside the basic multilingual plane. The encoder
// already escapes the other control characters. These runes only occur
// inside JSON strings, so the rewrite is always valid.
func escapeNonASCII(data []byte) []byte {
	var out bytes.Buffer
	for _, r := range string(data) {
		if r < 0x7f {
			out.WriteRune(r)
			continue
		}
		if r > 0xffff {
			high, low := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, high, low)
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
