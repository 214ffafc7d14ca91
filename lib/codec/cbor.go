// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Messages are JSON-shaped; untyped maps must come back as
		// map[string]any rather than map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Frames come from a local peer but are still bounded.
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is one undecoded CBOR data item.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// majorTypeArray is CBOR major type 4 in the top three bits of the
// initial byte.
const majorTypeArray = 4

// IsArray reports whether raw is a single CBOR array data item.
func IsArray(raw []byte) bool {
	return len(raw) > 0 && raw[0]>>5 == majorTypeArray
}

// Diagnose returns the RFC 8949 diagnostic notation of data, for log
// lines about frames that could not be used.
func Diagnose(data []byte) string {
	diagnostic, err := cbor.Diagnose(data)
	if err != nil {
		return "<undiagnosable: " + err.Error() + ">"
	}
	return diagnostic
}
