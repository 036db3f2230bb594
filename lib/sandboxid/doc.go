// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandboxid canonicalizes caller-supplied sandbox identifiers.
//
// A canonical identifier is used verbatim as a file name component
// (install_<id>.log) and as the machine name handed to the provisioning
// script, so it must be safe to embed in both without escaping. The
// canonical form matches ^[a-z0-9-]{1,64}$ and never starts or ends
// with a hyphen.
//
// [Sanitize] signals rejection by returning the empty string rather
// than an error: an identifier with nothing left after sanitization is
// an expected request shape the caller reports back to the peer, not
// an internal fault.
//
// This package has no dependencies on other packages in this module.
package sandboxid
