// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the daemon
// and its CLI.
//
// Variables are injected at build time via -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/ginto-sandboxd/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// They default to "unknown" / "0.1.0-dev" in development builds and
// test runs.
package version
