// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/labbox-foundation/labbox"
	"github.com/labbox-foundation/labbox/cmd/labbox/cli"
)

func (e *environment) appendCommand() *cli.Command {
	var globals globalFlags
	return &cli.Command{
		Name:        "append",
		Summary:     "Append messages to a subfeed",
		Description: "Append each JSON argument, in order, to a subfeed through the feed API.",
		Usage:       "labbox append FEED SUBFEED JSON... [flags]",
		Examples: []cli.Example{
			{Command: `labbox append - main '{"text": "hello"}' '{"text": "world"}'`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("append", pflag.ContinueOnError)
			globals.register(flagSet, 30*time.Second)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 3 {
				return fmt.Errorf("usage: labbox append FEED SUBFEED JSON... [flags]")
			}
			subfeedName, err := parseSubfeedName(args[1])
			if err != nil {
				return err
			}
			messages := make([]json.RawMessage, 0, len(args)-2)
			for index, arg := range args[2:] {
				if !json.Valid([]byte(arg)) {
					return fmt.Errorf("message %d is not valid JSON: %q", index+1, arg)
				}
				messages = append(messages, json.RawMessage(arg))
			}

			ctx, cancel := globals.commandContext()
			defer cancel()
			client, release, err := e.newClient(&globals)
			if err != nil {
				return err
			}
			defer release()
			if client.Subfeeds() == nil {
				return labbox.ErrNoFeedAPI
			}
			if err := client.Subfeeds().AppendMessages(ctx, parseFeed(args[0]), subfeedName, messages); err != nil {
				return err
			}
			e.logger.Info("appended messages", "count", len(messages))
			return nil
		},
	}
}
