// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the labbox command tree.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/labbox-foundation/labbox/cmd/labbox/cli"
)

// environment carries the streams commands write to.
type environment struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// Root returns the labbox command tree writing to the process's
// standard streams.
func Root() *cli.Command {
	return newRoot(os.Stdout, os.Stderr)
}

func newRoot(stdout, stderr io.Writer) *cli.Command {
	env := &environment{stdout: stdout, stderr: stderr, logger: cli.NewLogger(stderr)}
	return &cli.Command{
		Name:        "labbox",
		Summary:     "labbox compute backend client",
		Description: "Talk to a labbox compute backend: session info, hither jobs and subfeeds.",
		Output:      stderr,
		Subcommands: []*cli.Command{
			env.statusCommand(),
			env.jobCommand(),
			env.followCommand(),
			env.appendCommand(),
			env.versionCommand(),
		},
	}
}
