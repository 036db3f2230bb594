// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peercred captures the kernel-reported identity of the process
// on the far end of a Unix socket connection.
//
// [FromConn] reads SO_PEERCRED (pid, uid, gid) from an accepted
// connection. The values are recorded by the kernel at connect time and
// cannot be forged by the peer. [Executable] adds a best-effort lookup
// of the peer's binary through /proc/<pid>/exe; the peer may already
// have exited, so failure there is expected and not an error for the
// caller to act on.
//
// Credentials travel with the request through a context ([WithCred],
// [FromContext]) and are offered to an [Authorizer] before any side
// effect. [AllowAll] is the default; [AllowList] restricts requests to
// configured uids and gids.
//
// Only Linux supports SO_PEERCRED; on other platforms [FromConn]
// returns [ErrUnsupported].
package peercred
