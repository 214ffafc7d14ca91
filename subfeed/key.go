// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package subfeed

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/labbox-foundation/labbox/protocol"
)

// Key identifies a (feed, subfeed) pair within a Manager.
type Key [32]byte

// keyDomain is the BLAKE3 key for subfeed identities: the ASCII
// domain name, zero-padded to 32 bytes.
var keyDomain = [32]byte{
	'l', 'a', 'b', 'b', 'o', 'x', '.', 's', 'u', 'b', 'f', 'e', 'e', 'd', '.',
	'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// KeyOf returns the Key for feedURI and subfeedName. Names that are
// equal as JSON values get equal keys regardless of object key order.
func KeyOf(feedURI string, subfeedName any) (Key, error) {
	canonical, err := protocol.CanonicalJSON([]any{feedURI, subfeedName})
	if err != nil {
		return Key{}, fmt.Errorf("subfeed: key for %s: %w", feedURI, err)
	}
	hasher, err := blake3.NewKeyed(keyDomain[:])
	if err != nil {
		panic("subfeed: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(canonical)
	var key Key
	copy(key[:], hasher.Sum(nil))
	return key, nil
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }
