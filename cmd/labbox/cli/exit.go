// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "strconv"

// ExitJobFailed is the exit code of a command whose remote job ran and
// failed, as opposed to a command that could not run it.
const ExitJobFailed = 2

// ExitError ends the process with Code. The command has already written
// its report, so main prints nothing more.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return "exit status " + strconv.Itoa(e.Code) }

func (e *ExitError) ExitCode() int { return e.Code }
