// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandboxd implements the privileged request dispatcher behind
// ginto-sandboxd.
//
// A [Server] accepts connections on a Unix stream socket (see
// [Listen]) and handles each one as a single exchange: one JSON
// request document in, one JSON response line out, connection closed.
// The only action is "create", which validates the caller's sandbox
// identifier and host path, appends a marker to the identifier's
// install log, starts the provisioning script with that log as its
// output, and replies with the child's pid without waiting for it.
//
// Every collaborator (path policy, audit store, launcher, journal,
// authorizer, clock, logger) is passed in through [Options]. Nothing in
// this package reads global configuration.
//
// Connections are handled by a bounded pool of workers. When every
// worker is busy the accept loop stops accepting and new clients wait
// in the kernel's listen backlog. A handler that panics is recovered
// and logged; no per-connection fault stops the accept loop.
package sandboxd
