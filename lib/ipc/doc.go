// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the JSON messages exchanged over the daemon's
// Unix socket. The daemon (lib/sandboxd) and the client
// (lib/sandboxclient) both import this package so the wire types are
// defined once.
//
// A connection carries exactly one request document and one response
// line. The request is decoded by [DecodeRequest] into a typed
// [Request] whose fields keep their raw JSON so the daemon can tell an
// absent field from a falsy one from a non-string one without failing
// the whole decode. Key matching is exact (encoding/json's
// case-insensitive struct matching is not used for requests).
//
// Error strings in the Err* constants are part of the protocol:
// existing callers match on them.
package ipc
