// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records what the daemon launched and how each launch
// ended, as a CBOR sequence (RFC 8742) of [Record] values appended to
// one file.
//
// The install logs say what a provisioning script printed; the journal
// says who asked for it (peer credentials), which script binary ran
// (BLAKE3 digest), the child pid, and its exit status. Operators read
// it with "ginto-sandboxctl journal".
//
// Each record is encoded in memory and appended with a single write on
// an O_APPEND descriptor, serialized by a mutex. A crash can leave at
// most one truncated record at the tail, which [Read] reports as an
// error after delivering every complete record before it.
package journal
