// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint and child-process helpers shared
// by the daemon and its CLI:
//
//   - [Fatal] reports an error to stderr and exits when the structured
//     logger may not be initialized yet.
//   - [ExitCode] turns the error from exec.Cmd.Wait into the numeric
//     status recorded for a finished provisioning script.
package process
