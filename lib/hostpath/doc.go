// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostpath validates caller-supplied host paths against an
// explicit allow-list of root directories.
//
// A [Policy] resolves the candidate to its canonical absolute form
// (every symlink and ".." resolved) before comparing it against the
// roots, so a path whose literal text starts with an allowed root but
// whose symlinks lead elsewhere is rejected. Containment is checked on
// path-component boundaries: the root /home admits /home and
// /home/alice, never /homeless.
//
// Every rejection is reported as [ErrNotPermitted]. The wrapped detail
// is meant for the daemon's own log; callers on the far side of the
// trust boundary must only ever see the bare sentinel so that nothing
// about the filesystem outside the allow-list leaks back.
package hostpath
