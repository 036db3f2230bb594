// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandboxclient talks to ginto-sandboxd from an unprivileged
// process.
//
// The daemon has been deployed under several socket paths over time,
// so a [Client] walks a list of candidates ([DefaultSocketPaths]),
// skipping paths that do not exist and retrying each existing one a
// few times to ride out a daemon restart. A structured refusal from
// the daemon ends the search immediately and is returned as a
// [*ResponseError]; only transport failures move on to the next
// attempt.
package sandboxclient
