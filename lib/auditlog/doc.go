// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditlog manages the per-sandbox install logs.
//
// Every accepted create request appends to <dir>/install_<id>.log: a
// [Marker] line written by the daemon, followed by whatever the
// provisioning script prints for its whole lifetime (the file is the
// child's stdout and stderr). The daemon never truncates or deletes
// these files.
//
// [Store.Begin] takes an exclusive flock on the file before writing
// the marker. The caller keeps the [Entry] open until the child has
// been started, so two creates for the same identifier (from
// goroutines in this daemon or from any other process that honors the
// lock) never interleave their markers and launches. The child
// inherits the open file description, which is why [Entry.Close]
// releases the lock explicitly instead of relying on close.
package auditlog
