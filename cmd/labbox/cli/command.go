// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the labbox command tree. A node either groups
// Subcommands or has a Run; the root does the former, every leaf the
// latter.
type Command struct {
	Name string

	// Summary appears next to Name in the parent's command list.
	Summary string

	// Description heads the command's own help. Default: Summary.
	Description string

	// Usage replaces the generated "NAME [flags]" line.
	Usage string

	Examples []Example

	// Flags builds the command's flag set. It is called once per parse
	// and once per help rendering, so it must return a fresh set.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	Run func(args []string) error

	// Output receives help text for this command and its descendants.
	// Default: os.Stderr.
	Output io.Writer

	parent *Command
}

// Example is one annotated command line in help output.
type Example struct {
	Description string
	Command     string
}

var errSubcommandRequired = errors.New("subcommand required")

// Execute runs the command selected by args: help, a subcommand, or
// this command's Run with its flags parsed.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.output())
		return nil
	}
	if len(c.Subcommands) > 0 {
		return c.dispatch(args)
	}
	if c.Run == nil {
		return fmt.Errorf("%s: command has no action", c.fullName())
	}
	positional, err := c.parse(args)
	if err != nil {
		return err
	}
	return c.Run(positional)
}

func (c *Command) dispatch(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		c.PrintHelp(c.output())
		return errSubcommandRequired
	}
	name := args[0]
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub.Execute(args[1:])
		}
	}
	hint := ""
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		hint = fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return c.usageError(fmt.Sprintf("unknown command %q%s", name, hint))
}

// parse applies the command's flags to args and returns what remains.
func (c *Command) parse(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		message := err.Error()
		if strings.Contains(message, "unknown flag") {
			if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
				message += fmt.Sprintf(" (did you mean %s?)", suggestion)
			}
		}
		return nil, c.usageError(message)
	}
	return flagSet.Args(), nil
}

func (c *Command) usageError(message string) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	description := c.Description
	if description == "" {
		description = c.Summary
	}
	if description != "" {
		fmt.Fprintf(w, "%s\n\n", description)
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", c.usageLine())

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if defaults := c.Flags().FlagUsages(); defaults != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", defaults)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n\n", example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s COMMAND --help' for details on a command.\n", c.fullName())
	}
}

func (c *Command) usageLine() string {
	switch {
	case c.Usage != "":
		return c.Usage
	case len(c.Subcommands) > 0:
		return c.fullName() + " COMMAND [flags]"
	}
	return c.fullName() + " [flags]"
}

func (c *Command) output() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Output != nil {
			return command.Output
		}
	}
	return os.Stderr
}

func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}
