// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree behind the labbox binary: pflag
// parsing per command, help output, near-miss suggestions for
// mistyped commands and flags, and the shared logger and JSON output
// helpers.
package cli
