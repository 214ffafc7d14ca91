// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMessageMapRoundtrip(t *testing.T) {
	original := map[string]any{
		"type":         "hitherJobFinished",
		"job_id":       "J1",
		"runtime_info": map[string]any{"elapsed": 1.5},
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	message, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if message["type"] != "hitherJobFinished" {
		t.Errorf("type = %v", message["type"])
	}
	if _, ok := message["runtime_info"].(map[string]any); !ok {
		t.Errorf("nested map decoded as %T, want map[string]any", message["runtime_info"])
	}
}

func TestDeterministicEncoding(t *testing.T) {
	a, _ := Marshal(map[string]any{"b": 1, "a": 2, "type": "x"})
	b, _ := Marshal(map[string]any{"type": "x", "a": 2, "b": 1})
	if !bytes.Equal(a, b) {
		t.Fatalf("encodings differ:\n%x\n%x", a, b)
	}
}

func TestStreamFrames(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	frames := []any{
		[]any{map[string]any{"type": "keepAlive"}},
		map[string]any{"type": "not-a-batch"},
		[]any{},
	}
	for _, frame := range frames {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	want := []bool{true, false, true}
	for i, wantArray := range want {
		var raw RawMessage
		if err := decoder.Decode(&raw); err != nil {
			t.Fatalf("Decode frame %d: %v", i, err)
		}
		if got := IsArray(raw); got != wantArray {
			t.Errorf("frame %d IsArray = %v, want %v (%s)", i, got, wantArray, Diagnose(raw))
		}
	}
}

func TestIsArrayEmpty(t *testing.T) {
	if IsArray(nil) {
		t.Fatal("IsArray(nil) = true")
	}
}

func TestDiagnoseInvalid(t *testing.T) {
	if got := Diagnose([]byte{0xff}); got == "" {
		t.Fatal("Diagnose returned empty string for invalid input")
	}
}
