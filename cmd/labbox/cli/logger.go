// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// EnvDebug enables debug logging when set to any non-empty value.
const EnvDebug = "LABBOX_DEBUG"

// NewLogger returns the command logger: text on a terminal, JSON
// otherwise, at Debug level when LABBOX_DEBUG is set.
func NewLogger(w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv(EnvDebug) != "" {
		options.Level = slog.LevelDebug
	}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
