// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string
	var received []string
	root := &Command{
		Name: "labbox",
		Subcommands: []*Command{
			{Name: "status", Run: func(args []string) error { called = "status"; return nil }},
			{Name: "follow", Run: func(args []string) error {
				called = "follow"
				received = args
				return nil
			}},
		},
	}

	if err := root.Execute([]string{"follow", "feed://a", "main"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "follow" {
		t.Errorf("dispatched to %q, want follow", called)
	}
	if len(received) != 2 || received[0] != "feed://a" || received[1] != "main" {
		t.Errorf("args = %v, want [feed://a main]", received)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var timeout string
	var field string
	command := &Command{
		Name: "job",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("job", pflag.ContinueOnError)
			flagSet.StringVar(&timeout, "timeout", "30s", "job timeout")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				field = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--timeout", "5m", "add"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if timeout != "5m" || field != "add" {
		t.Errorf("timeout = %q, arg = %q", timeout, field)
	}
}

func TestExecuteSuggestions(t *testing.T) {
	root := &Command{
		Name: "labbox",
		Subcommands: []*Command{
			{Name: "status"},
			{Name: "follow"},
			{Name: "version"},
			{
				Name: "job",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("job", pflag.ContinueOnError)
					flagSet.String("kwargs", "{}", "keyword arguments")
					return flagSet
				},
				Run: func(args []string) error { return nil },
			},
		},
	}

	tests := []struct {
		name    string
		args    []string
		want    string
		exclude string
	}{
		{"near command", []string{"folow"}, `did you mean "follow"`, ""},
		{"distant command", []string{"zzzzzzz"}, "unknown command", "did you mean"},
		{"near flag", []string{"job", "--kwarg", "{}"}, "did you mean --kwargs", ""},
		{"distant flag", []string{"job", "--zzzzzzzzz"}, "--help", "did you mean"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := root.Execute(test.args)
			if err == nil {
				t.Fatal("Execute succeeded")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %q, want it to contain %q", err, test.want)
			}
			if test.exclude != "" && strings.Contains(err.Error(), test.exclude) {
				t.Errorf("error = %q, should not contain %q", err, test.exclude)
			}
		})
	}
}

func TestExecuteHelp(t *testing.T) {
	var out bytes.Buffer
	root := &Command{
		Name:    "labbox",
		Summary: "labbox client",
		Output:  &out,
		Subcommands: []*Command{
			{Name: "status", Summary: "show server info"},
			{
				Name:    "job",
				Summary: "run a job",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("job", pflag.ContinueOnError)
					flagSet.String("kwargs", "{}", "keyword arguments")
					return flagSet
				},
				Examples: []Example{{Description: "Add two numbers", Command: `labbox job add --kwargs '{"a":1}'`}},
				Run:      func(args []string) error { return nil },
			},
		},
	}

	for _, helpArg := range []string{"-h", "--help", "help"} {
		out.Reset()
		if err := root.Execute([]string{helpArg}); err != nil {
			t.Fatalf("Execute(%s): %v", helpArg, err)
		}
		if !strings.Contains(out.String(), "show server info") {
			t.Errorf("help for %s missing command listing:\n%s", helpArg, out.String())
		}
	}

	out.Reset()
	if err := root.Execute([]string{"job", "--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"labbox job [flags]", "--kwargs", "Add two numbers"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("job help missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := root.Execute(nil); err == nil {
		t.Error("Execute without a subcommand succeeded")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"follow", "follow", 0},
		{"folow", "follow", 1},
		{"stauts", "status", 2},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestWriteJSONCompactsPipedOutput(t *testing.T) {
	var out bytes.Buffer
	if err := WriteJSON(&out, []byte("{\n  \"a\": [1, 2]\n}")); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if out.String() != "{\"a\":[1,2]}\n" {
		t.Errorf("output = %q", out.String())
	}
	if err := WriteJSON(&out, []byte("{not json")); err == nil {
		t.Error("WriteJSON accepted invalid JSON")
	}
}
