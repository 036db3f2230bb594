// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// ExitCode returns the exit status carried by waitErr, the result of
// exec.Cmd.Wait. A nil error is 0. A child killed by a signal reports
// 128+signal, the shell convention. ok is false when waitErr is not an
// exit status at all (for example an I/O copy failure).
func ExitCode(waitErr error) (code int, ok bool) {
	if waitErr == nil {
		return 0, true
	}
	var exitError *exec.ExitError
	if !errors.As(waitErr, &exitError) {
		return -1, false
	}
	if status, isWait := exitError.Sys().(syscall.WaitStatus); isWait && status.Signaled() {
		return 128 + int(status.Signal()), true
	}
	return exitError.ExitCode(), true
}
