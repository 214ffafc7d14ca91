// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/labbox-foundation/labbox/cmd/labbox/cli"
	"github.com/labbox-foundation/labbox/protocol"
)

type statusReport struct {
	Status              string              `json:"status"`
	ServerInfo          protocol.ServerInfo `json:"serverInfo"`
	InitialLoadComplete bool                `json:"initialLoadComplete"`
}

func (e *environment) statusCommand() *cli.Command {
	var globals globalFlags
	return &cli.Command{
		Name:        "status",
		Summary:     "Connect and print the server info",
		Description: "Connect to the backend, wait for its reportServerInfo, and print it.",
		Usage:       "labbox status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			globals.register(flagSet, 30*time.Second)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("status takes no arguments, got %q", args)
			}
			ctx, cancel := globals.commandContext()
			defer cancel()

			client, release, err := e.connect(ctx, &globals)
			if err != nil {
				return err
			}
			defer release()

			infos := make(chan protocol.ServerInfo, 1)
			unsubscribe := client.OnServerInfo(func(info protocol.ServerInfo) {
				select {
				case infos <- info:
				default:
				}
			})
			defer unsubscribe()

			select {
			case info := <-infos:
				return cli.WriteValue(e.stdout, statusReport{
					Status:              client.Status(),
					ServerInfo:          info,
					InitialLoadComplete: client.InitialLoadComplete(),
				})
			case <-ctx.Done():
				return fmt.Errorf("no server info received (connection %s): %w", client.Status(), ctx.Err())
			}
		},
	}
}
