// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/labbox-foundation/labbox/cmd/labbox/cli"
	"github.com/labbox-foundation/labbox/lib/version"
)

func (e *environment) versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			_, err := fmt.Fprintf(e.stdout, "labbox %s\n", version.Full())
			return err
		},
	}
}
