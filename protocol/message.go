// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Message is one application message: a JSON object whose "type"
// field names its kind.
type Message map[string]any

// Type returns the message's type discriminator, or "" if it has
// none.
func (m Message) Type() string {
	typ, _ := m["type"].(string)
	return typ
}

// Decode converts m into the typed value v (a pointer to one of the
// catalog structs). Numbers decoded from JSON or CBOR both convert.
func (m Message) Decode(v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("protocol: encoding %s message: %w", m.Type(), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("protocol: decoding %s message: %w", m.Type(), err)
	}
	return nil
}

// Validate reports whether m carries a non-empty string type.
func (m Message) Validate() error {
	if m.Type() == "" {
		return errors.New("protocol: message has no string type field")
	}
	return nil
}

// Encode returns the JSON form of m.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// ErrNotBatch is returned for an inbound frame that is not an array
// of messages.
var ErrNotBatch = errors.New("protocol: inbound frame is not a message batch")

// MalformedError lists the batch elements that were skipped because
// they were not objects with a string type.
type MalformedError struct {
	Indexes []int
}

func (e *MalformedError) Error() string {
	parts := make([]string, len(e.Indexes))
	for i, index := range e.Indexes {
		parts[i] = fmt.Sprint(index)
	}
	return "protocol: malformed batch elements at " + strings.Join(parts, ", ")
}

// DecodeBatch parses an inbound JSON frame. It returns ErrNotBatch if
// data is not a JSON array. Otherwise it returns every well-formed
// element in order, and a *MalformedError if any element was skipped.
func DecodeBatch(data []byte) ([]Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrNotBatch)
	}
	frame := gjson.ParseBytes(data)
	if !frame.IsArray() {
		return nil, ErrNotBatch
	}

	var (
		batch     []Message
		malformed []int
		bad       error
		index     int
	)
	frame.ForEach(func(_, element gjson.Result) bool {
		defer func() { index++ }()
		if !element.IsObject() || element.Get("type").Type != gjson.String {
			malformed = append(malformed, index)
			return true
		}
		decoder := json.NewDecoder(bytes.NewReader([]byte(element.Raw)))
		decoder.UseNumber()
		var message Message
		if err := decoder.Decode(&message); err != nil {
			bad = err
			malformed = append(malformed, index)
			return true
		}
		batch = append(batch, message)
		return true
	})
	if len(malformed) > 0 {
		return batch, errors.Join(&MalformedError{Indexes: malformed}, bad)
	}
	return batch, nil
}

// AsBatch converts a decoded untyped frame (from the CBOR bridge) into
// messages with the same rules as DecodeBatch.
func AsBatch(frame any) ([]Message, error) {
	elements, ok := frame.([]any)
	if !ok {
		return nil, ErrNotBatch
	}
	var (
		batch     []Message
		malformed []int
	)
	for index, element := range elements {
		object, ok := element.(map[string]any)
		if !ok || Message(object).Validate() != nil {
			malformed = append(malformed, index)
			continue
		}
		batch = append(batch, Message(object))
	}
	if len(malformed) > 0 {
		return batch, &MalformedError{Indexes: malformed}
	}
	return batch, nil
}
