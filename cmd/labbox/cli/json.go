// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"io"
)

// WriteJSON writes one JSON document followed by a newline. On a
// terminal it is indented; otherwise it is compacted to one line, so
// piped output is JSON lines.
func WriteJSON(w io.Writer, document []byte) error {
	var buffer bytes.Buffer
	var err error
	if isTerminal(w) {
		err = json.Indent(&buffer, document, "", "  ")
	} else {
		err = json.Compact(&buffer, document)
	}
	if err != nil {
		return err
	}
	buffer.WriteByte('\n')
	_, err = w.Write(buffer.Bytes())
	return err
}

// WriteValue marshals value and writes it with WriteJSON.
func WriteValue(w io.Writer, value any) error {
	document, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return WriteJSON(w, document)
}
