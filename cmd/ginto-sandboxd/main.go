// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ginto-sandboxd is the privileged sandbox provisioning daemon. It runs
// as root, listens on a local Unix socket, and for each validated
// create request starts the provisioning script with the canonical
// sandbox id and the resolved host path as its only arguments.
//
// Configuration comes from --config, then $GINTO_SANDBOXD_CONFIG, then
// built-in defaults. --socket and --script override the loaded values.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/ginto-sandboxd/lib/auditlog"
	"github.com/bureau-foundation/ginto-sandboxd/lib/clock"
	"github.com/bureau-foundation/ginto-sandboxd/lib/config"
	"github.com/bureau-foundation/ginto-sandboxd/lib/hostpath"
	"github.com/bureau-foundation/ginto-sandboxd/lib/journal"
	"github.com/bureau-foundation/ginto-sandboxd/lib/logging"
	"github.com/bureau-foundation/ginto-sandboxd/lib/peercred"
	"github.com/bureau-foundation/ginto-sandboxd/lib/process"
	"github.com/bureau-foundation/ginto-sandboxd/lib/sandboxd"
	"github.com/bureau-foundation/ginto-sandboxd/lib/scripthash"
	"github.com/bureau-foundation/ginto-sandboxd/lib/spawn"
	"github.com/bureau-foundation/ginto-sandboxd/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		scriptPath  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("ginto-sandboxd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config (default: $"+config.EnvConfigPath+", else built-in defaults)")
	flagSet.StringVar(&socketPath, "socket", "", "listen on this socket path instead of socket.path")
	flagSet.StringVar(&scriptPath, "script", "", "run this provisioning script instead of paths.script")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if showVersion {
		fmt.Printf("ginto-sandboxd %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Socket.Path = socketPath
	}
	if scriptPath != "" {
		cfg.Paths.Script = scriptPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Paths.ProcessLog,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("process log: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("ginto-sandboxd starting", version.LogAttrs()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// loadConfig reads the config named by the flag, then the environment,
// falling back to defaults when neither names a file.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// serve wires the daemon from cfg and runs it until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	digest := inspectScript(cfg.Paths.Script, logger)

	policy, err := hostpath.NewPolicy(cfg.HostPath.AllowedRoots)
	if err != nil {
		return fmt.Errorf("host path policy: %w", err)
	}

	launchJournal, err := journal.Open(cfg.Paths.Journal)
	if err != nil {
		return err
	}
	defer launchJournal.Close()

	realClock := clock.Real()
	server, err := sandboxd.NewServer(sandboxd.Options{
		Logger:          logger,
		Policy:          policy,
		Audit:           auditlog.NewStore(cfg.Paths.LogDir),
		Launcher:        spawn.New(cfg.Paths.Script, logger, realClock),
		Journal:         launchJournal,
		Authorizer:      authorizerFor(cfg.Authorization),
		Clock:           realClock,
		ScriptDigest:    digest,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		Workers:         cfg.Server.Workers,
	})
	if err != nil {
		return err
	}

	mode, err := cfg.SocketMode()
	if err != nil {
		return err
	}
	listener, err := sandboxd.Listen(sandboxd.ListenConfig{
		Path:  cfg.Socket.Path,
		Mode:  mode,
		Group: cfg.Socket.Group,
	})
	if err != nil {
		return err
	}

	logger.Info("daemon ready",
		"socket", cfg.Socket.Path,
		"log_dir", cfg.Paths.LogDir,
		"journal", cfg.Paths.Journal,
		"allowed_roots", policy.Roots(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx, listener)
	})
	group.Go(func() error {
		rehashOnHangup(groupCtx, cfg.Paths.Script, server, logger)
		return nil
	})
	err = group.Wait()

	logger.Info("ginto-sandboxd stopped")
	return err
}

// inspectScript checks the provisioning script and returns its digest.
// Problems are logged, not fatal: the daemon still starts, and each
// create fails until the script is fixed.
func inspectScript(path string, logger *slog.Logger) string {
	if err := scripthash.CheckExecutable(path); err != nil {
		logger.Warn("provisioning script is not usable", "script", path, "error", err)
		return ""
	}
	digest, err := scripthash.HashFile(path)
	if err != nil {
		logger.Warn("hashing provisioning script failed", "script", path, "error", err)
		return ""
	}
	formatted := scripthash.FormatDigest(digest)
	logger.Info("provisioning script", "script", path, "blake3", formatted)
	return formatted
}

// rehashOnHangup re-inspects the script on SIGHUP so the journal
// records the digest of the script that is actually installed.
func rehashOnHangup(ctx context.Context, script string, server *sandboxd.Server, logger *slog.Logger) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			server.SetScriptDigest(inspectScript(script, logger))
		}
	}
}

// authorizerFor returns the peer allow-list from cfg, or AllowAll when
// the config names no users or groups.
func authorizerFor(cfg config.AuthorizationConfig) peercred.Authorizer {
	if len(cfg.AllowedUIDs) == 0 && len(cfg.AllowedGIDs) == 0 {
		return peercred.AllowAll{}
	}
	return peercred.AllowList{UIDs: cfg.AllowedUIDs, GIDs: cfg.AllowedGIDs}
}
