// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxd

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/ginto-sandboxd/lib/ipc"
	"github.com/bureau-foundation/ginto-sandboxd/lib/journal"
	"github.com/bureau-foundation/ginto-sandboxd/lib/peercred"
	"github.com/bureau-foundation/ginto-sandboxd/lib/sandboxid"
	"github.com/bureau-foundation/ginto-sandboxd/lib/spawn"
)

// create validates a create request and, when every check passes,
// starts the provisioning script. Validation failures never touch the
// filesystem. Operational failures are logged in full and reported to
// the caller only as ipc.ErrLaunchFailed.
func (s *Server) create(ctx context.Context, logger *slog.Logger, requestID string, request ipc.Request) ipc.Response {
	if !request.SandboxID.Present() || !request.HostPath.Present() {
		logger.Info("rejecting create: missing field")
		return ipc.Failure(ipc.ErrMissingFields)
	}

	// A non-string sandboxId leaves original empty, which sanitizes to
	// the empty identifier.
	original, _ := request.SandboxID.Text()
	id := sandboxid.Sanitize(original)
	if id == "" {
		logger.Info("rejecting create: sandbox id empty after sanitization",
			"original_sandbox_id", original)
		return ipc.Failure(ipc.ErrInvalidSandboxID)
	}
	logger = logger.With("sandbox_id", id)

	rawPath, isString := request.HostPath.Text()
	if !isString {
		logger.Info("rejecting create: host path is not a string")
		return ipc.Failure(ipc.ErrHostPathDenied)
	}
	hostPath, err := s.policy.Validate(rawPath)
	if err != nil {
		logger.Info("rejecting create: host path not permitted",
			"host_path", rawPath,
			"error", err,
		)
		return ipc.Failure(ipc.ErrHostPathDenied)
	}

	cred, known := peercred.FromContext(ctx)
	if err := s.authorizer.Authorize(ctx, ipc.ActionCreate, cred, known); err != nil {
		logger.Warn("rejecting create: peer not authorized", "error", err)
		return ipc.Failure(ipc.ErrNotAuthorized)
	}

	entry, err := s.audit.Begin(id)
	if err != nil {
		logger.Error("preparing install log failed", "error", err)
		return ipc.Failure(ipc.ErrLaunchFailed)
	}
	defer entry.Close()
	logPath := entry.Path()

	// The exit record must follow the launch record in the journal even
	// when the script finishes before Start's caller has recorded the
	// launch.
	launched := make(chan struct{})
	defer close(launched)
	pid, startErr := s.launcher.Start(spawn.Launch{
		SandboxID: id,
		HostPath:  hostPath,
		Output:    entry.File(),
	}, func(exit spawn.Exit) {
		<-launched
		exitCode := exit.Code
		record := journal.Record{
			Kind:      journal.KindExit,
			Time:      s.clock.Now().UTC(),
			RequestID: requestID,
			SandboxID: id,
			PID:       exit.PID,
			Log:       logPath,
			ExitCode:  &exitCode,
		}
		if exit.Err != nil {
			record.Error = exit.Err.Error()
		}
		s.record(logger, record)
	})
	if closeErr := entry.Close(); closeErr != nil {
		logger.Warn("releasing install log failed", "log", logPath, "error", closeErr)
	}
	if startErr != nil {
		logger.Error("starting provisioning script failed",
			"script", s.launcher.Script(),
			"host_path", hostPath,
			"log", logPath,
			"error", startErr,
		)
		return ipc.Failure(ipc.ErrLaunchFailed)
	}

	record := journal.Record{
		Kind:              journal.KindLaunch,
		Time:              s.clock.Now().UTC(),
		RequestID:         requestID,
		SandboxID:         id,
		OriginalSandboxID: original,
		HostPath:          hostPath,
		PID:               pid,
		Log:               logPath,
		Script:            s.launcher.Script(),
		ScriptDigest:      s.currentScriptDigest(),
	}
	if known {
		record.Peer = &cred
	}
	s.record(logger, record)

	logger.Info("provisioning script started",
		"pid", pid,
		"host_path", hostPath,
		"log", logPath,
	)
	return ipc.Response{
		OK:                true,
		PID:               pid,
		SandboxID:         id,
		OriginalSandboxID: original,
		Log:               logPath,
	}
}

// record appends to the journal when one is configured. A journal
// failure is logged and does not affect the caller's response.
func (s *Server) record(logger *slog.Logger, record journal.Record) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(record); err != nil {
		logger.Error("journal append failed", "kind", record.Kind, "error", err)
	}
}
