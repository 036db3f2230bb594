// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spawn starts the provisioning script.
//
// The script is always invoked directly with an argument vector of
// exactly two entries after the program name (canonical sandbox id,
// validated host path). No shell is involved, so nothing in either
// argument is ever interpreted.
//
// The child gets /dev/null on stdin and the install log on stdout and
// stderr, and runs in its own session so it survives the daemon and
// receives no terminal signals meant for it. A goroutine per child
// blocks in Wait so finished children never linger as zombies; its
// result is logged and handed to the caller's exit callback.
package spawn
