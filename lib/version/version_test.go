// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime, savedVersion := GitCommit, GitDirty, BuildTime, Version
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = savedCommit, savedDirty, savedTime, savedVersion
	})

	GitCommit, GitDirty, BuildTime, Version = "abc1234", "true", "2026-10-01T00:00:00Z", "1.2.3"
	if got, want := Info(), "1.2.3 (abc1234-dirty, 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "false"
	if got := Info(); strings.Contains(got, "dirty") {
		t.Errorf("Info() = %q, clean build reported dirty", got)
	}
	if !strings.HasPrefix(Full(), Info()) {
		t.Errorf("Full() does not start with Info()")
	}
	if got := UserAgent(); got != "labbox-client/1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}
