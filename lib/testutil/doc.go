// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short-named temporary directory in /tmp for
// Unix domain sockets. sun_path is limited to 108 bytes, and
// t.TempDir() paths under deeply nested TMPDIRs exceed it.
//
// [RequireReceive] wraps the select-with-timeout safety valve so tests
// never hang on a channel that is never fed.
//
// [WriteScript] installs an executable shell script that stands in for
// the provisioning script. The daemon executes it directly through
// execve; the interpreter line is the only place a shell appears.
//
// [UniqueID] generates distinct identifiers for tests that share a
// directory or a server.
//
// All helpers call t.Fatalf on failure.
package testutil
