// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/labbox-foundation/labbox/cmd/labbox/cli"
	"github.com/labbox-foundation/labbox/subfeed"
)

func (e *environment) followCommand() *cli.Command {
	var (
		globals globalFlags
		field   string
		count   int
	)
	return &cli.Command{
		Name:    "follow",
		Summary: "Stream a subfeed's messages",
		Description: "Replicate a subfeed and print every message, existing and new, one JSON document per line.\n" +
			"FEED is a feed URI, or - for the server's default feed. SUBFEED is a name or a JSON object.",
		Usage: "labbox follow FEED SUBFEED [flags]",
		Examples: []cli.Example{
			{Description: "Follow the default feed's main subfeed", Command: "labbox follow - main"},
			{Description: "Print the first ten message texts", Command: `labbox follow feed://abc '{"channel": 1}' --field text --count 10`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("follow", pflag.ContinueOnError)
			globals.register(flagSet, 0)
			flagSet.StringVar(&field, "field", "", "print only this gjson path of each message")
			flagSet.IntVar(&count, "count", 0, "exit after this many messages (0 follows forever)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: labbox follow FEED SUBFEED [flags]")
			}
			subfeedName, err := parseSubfeedName(args[1])
			if err != nil {
				return err
			}

			ctx, cancel := globals.commandContext()
			defer cancel()
			ctx, finish := context.WithCancel(ctx)
			defer finish()

			client, release, err := e.connect(ctx, &globals)
			if err != nil {
				return err
			}
			defer release()
			replica, err := client.Subscribe(parseFeed(args[0]), subfeedName)
			if err != nil {
				return err
			}
			defer replica.Cleanup()

			var (
				mu       sync.Mutex
				printed  int
				writeErr error
			)
			unsubscribe := subfeed.OnMessages(replica, func(messages []json.RawMessage) {
				mu.Lock()
				defer mu.Unlock()
				for _, message := range messages {
					if writeErr != nil || (count > 0 && printed >= count) {
						return
					}
					document := message
					if field != "" {
						selected := gjson.GetBytes(message, field)
						if !selected.Exists() {
							continue
						}
						document = json.RawMessage(selected.Raw)
					}
					if writeErr = cli.WriteJSON(e.stdout, document); writeErr != nil {
						finish()
						return
					}
					printed++
					if count > 0 && printed >= count {
						finish()
					}
				}
			})
			defer unsubscribe()

			<-ctx.Done()
			mu.Lock()
			defer mu.Unlock()
			if writeErr != nil {
				return writeErr
			}
			if count > 0 && printed < count && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timed out after %d of %d messages", printed, count)
			}
			return nil
		},
	}
}

// parseFeed maps "-" to the server's default feed.
func parseFeed(arg string) string {
	if arg == "-" {
		return ""
	}
	return arg
}

// parseSubfeedName accepts a plain name or a JSON object.
func parseSubfeedName(arg string) (any, error) {
	if !strings.HasPrefix(strings.TrimSpace(arg), "{") {
		return arg, nil
	}
	var name map[string]any
	if err := json.Unmarshal([]byte(arg), &name); err != nil {
		return nil, fmt.Errorf("subfeed name %q is not a JSON object: %w", arg, err)
	}
	return name, nil
}
