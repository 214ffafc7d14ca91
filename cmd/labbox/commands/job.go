// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/labbox-foundation/labbox/cmd/labbox/cli"
	"github.com/labbox-foundation/labbox/hither"
)

func (e *environment) jobCommand() *cli.Command {
	var (
		globals globalFlags
		kwargs  string
		opts    string
		field   string
	)
	return &cli.Command{
		Name:        "job",
		Summary:     "Run one hither job and print its result",
		Description: "Create a hither job, wait for it to finish, and print the result as JSON.",
		Usage:       "labbox job FUNCTION [flags]",
		Examples: []cli.Example{
			{Description: "Call a registered function", Command: `labbox job add --kwargs '{"a": 1, "b": 2}'`},
			{Description: "Print one field of the result", Command: `labbox job describe --field stats.count`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("job", pflag.ContinueOnError)
			globals.register(flagSet, hither.DefaultResultTimeout)
			flagSet.StringVar(&kwargs, "kwargs", "{}", "keyword arguments as a JSON object")
			flagSet.StringVar(&opts, "opts", "", "job options as a JSON object, e.g. a job handler")
			flagSet.StringVar(&field, "field", "", "print only this gjson path of the result")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: labbox job FUNCTION [flags]")
			}
			spec := hither.JobSpec{FunctionName: args[0]}
			var err error
			if spec.Kwargs, err = parseObject("--kwargs", kwargs); err != nil {
				return err
			}
			if opts != "" {
				if spec.Options, err = parseObject("--opts", opts); err != nil {
					return err
				}
			}

			ctx, cancel := globals.commandContext()
			defer cancel()
			client, release, err := e.connect(ctx, &globals)
			if err != nil {
				return err
			}
			defer release()

			started := time.Now()
			job, err := client.CreateJob(ctx, spec)
			if err != nil {
				return err
			}
			result, err := job.Wait(ctx)
			if jobError, ok := hither.AsJobError(err); ok && jobError.Err == nil {
				return writeJobFailure(e, jobError)
			}
			if err != nil {
				return err
			}
			e.logger.Debug("job finished",
				"function", spec.FunctionName, "job_id", job.ID(), "elapsed", time.Since(started))
			return writeField(e, result, field)
		},
	}
}

// jobFailure is printed when the backend reports hitherJobError.
type jobFailure struct {
	Function    string          `json:"function"`
	JobID       string          `json:"job_id,omitempty"`
	Error       string          `json:"error"`
	RuntimeInfo json.RawMessage `json:"runtime_info,omitempty"`
}

func writeJobFailure(e *environment, jobError *hither.JobError) error {
	if err := cli.WriteValue(e.stdout, jobFailure{
		Function:    jobError.FunctionName,
		JobID:       string(jobError.JobID),
		Error:       jobError.Message,
		RuntimeInfo: jobError.RuntimeInfo,
	}); err != nil {
		return err
	}
	return &cli.ExitError{Code: cli.ExitJobFailed}
}

// parseObject decodes a flag value that must be a JSON object.
// Numbers decode as float64.
func parseObject(flag, value string) (map[string]any, error) {
	var object map[string]any
	if err := json.Unmarshal([]byte(value), &object); err != nil {
		return nil, fmt.Errorf("%s must be a JSON object: %w", flag, err)
	}
	if object == nil {
		object = map[string]any{}
	}
	return object, nil
}

// writeField prints document, or its gjson path when field is set.
func writeField(e *environment, document json.RawMessage, field string) error {
	if field == "" {
		return cli.WriteJSON(e.stdout, document)
	}
	selected := gjson.GetBytes(document, field)
	if !selected.Exists() {
		return fmt.Errorf("result has no field %q", field)
	}
	return cli.WriteJSON(e.stdout, []byte(selected.Raw))
}
