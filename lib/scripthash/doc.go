// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scripthash fingerprints the provisioning script the daemon
// executes.
//
// The daemon runs a fixed script as root on behalf of unprivileged
// callers. Recording the BLAKE3 digest of that script at startup, and
// in every launch record, lets a reviewer tell afterwards exactly which
// version of the script ran for a given sandbox, even if the file was
// replaced in place later.
//
//   - [HashFile] streams a file through BLAKE3 with constant memory
//   - [FormatDigest] renders a digest as lowercase hex for logs and
//     journal records
//   - [CheckExecutable] verifies the path is a regular executable file
package scripthash
