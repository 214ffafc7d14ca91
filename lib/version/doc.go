// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for labbox binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X and default to "unknown" / "0.1.0-dev" in development
// builds and tests. [Info] is the one-line --version form, [Full] adds
// the Go toolchain and platform, and [UserAgent] is the identifier sent
// on WebSocket dials and feed API requests.
package version
