// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for commtrail
// packages.
//
// [SocketDir] creates a short-pathed temporary directory for Unix
// domain sockets: sun_path caps socket paths at 108 bytes, and
// t.TempDir() can exceed that under deeply nested build trees.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap channel
// operations in a wall-clock safety valve so a broken test hangs for
// seconds, not forever. They are the only sanctioned use of real
// timeouts in the suite; everything else injects lib/clock.
//
// All helpers fail the test directly; setup failures are not
// recoverable.
package testutil

import (
	"os"
	"testing"
)

// SocketDir creates a temporary directory directly under /tmp, short
// enough to host Unix domain socket files. Removed when the test
// completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "commtrail-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}
