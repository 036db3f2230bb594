// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the module's CBOR encoding configuration.
//
// Two serialization formats are used with a clear boundary:
//
//   - JSON for the external socket protocol spoken with unprivileged
//     callers (see lib/ipc). That format is fixed by existing clients.
//   - CBOR for on-disk records the daemon writes for itself, currently
//     the launch journal (see lib/journal).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2) so the
// same record always produces the same bytes, and times are written as
// RFC 3339 text so that `cbor diag` output of a journal is readable
// without tag decoding.
//
// Records are stored as a CBOR sequence (RFC 8742): items concatenated
// with no framing. [NewDecoder] reads them back one at a time.
package codec
