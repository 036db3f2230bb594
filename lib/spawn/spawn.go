// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/ginto-sandboxd/lib/clock"
	"github.com/bureau-foundation/ginto-sandboxd/lib/process"
)

// Launch describes one script invocation.
type Launch struct {
	SandboxID string
	HostPath  string

	// Output becomes the child's stdout and stderr. The child holds its
	// own reference; the caller may close Output once Start returns.
	Output *os.File
}

// Exit reports how a started child finished.
type Exit struct {
	SandboxID string
	PID       int

	// Code is the exit status, 128+signal for a signaled child, or -1
	// when Err is not an exit status.
	Code    int
	Err     error
	Elapsed time.Duration
}

// Spawner starts the fixed provisioning script and reaps its children.
type Spawner struct {
	script  string
	logger  *slog.Logger
	clock   clock.Clock
	reapers sync.WaitGroup
}

// New returns a Spawner for script. The path is used verbatim; it is
// not looked up in PATH. clk times each child; nil uses the real clock.
func New(script string, logger *slog.Logger, clk clock.Clock) *Spawner {
	if clk == nil {
		clk = clock.Real()
	}
	return &Spawner{script: script, logger: logger, clock: clk}
}

// Script returns the configured script path.
func (s *Spawner) Script() string { return s.script }

// Start launches the script and returns the child's pid without
// waiting for it. onExit, if non-nil, runs on the reaper goroutine
// after the child has been waited for.
func (s *Spawner) Start(launch Launch, onExit func(Exit)) (int, error) {
	if launch.Output == nil {
		return 0, errors.New("spawn: launch has no output file")
	}

	cmd := exec.Command(s.script, launch.SandboxID, launch.HostPath)
	cmd.Stdin = nil
	cmd.Stdout = launch.Output
	cmd.Stderr = launch.Output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	started := s.clock.Now()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", s.script, err)
	}
	pid := cmd.Process.Pid

	s.reapers.Add(1)
	go func() {
		defer s.reapers.Done()
		waitError := cmd.Wait()
		exitCode, _ := process.ExitCode(waitError)
		exit := Exit{
			SandboxID: launch.SandboxID,
			PID:       pid,
			Code:      exitCode,
			Err:       waitError,
			Elapsed:   s.clock.Now().Sub(started),
		}
		level := slog.LevelInfo
		if exitCode != 0 {
			level = slog.LevelWarn
		}
		s.logger.Log(context.Background(), level, "provisioning script exited",
			"sandbox_id", launch.SandboxID,
			"pid", pid,
			"exit_code", exitCode,
			"elapsed", exit.Elapsed,
			"error", waitError,
		)
		if onExit != nil {
			onExit(exit)
		}
	}()

	return pid, nil
}

// Wait blocks until every child started so far has been reaped. The
// daemon does not call it on shutdown; children outlive the daemon.
func (s *Spawner) Wait() {
	s.reapers.Wait()
}
