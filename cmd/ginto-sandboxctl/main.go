// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ginto-sandboxctl is the operator CLI for ginto-sandboxd.
//
//	ginto-sandboxctl create [--socket PATH]... SANDBOX_ID HOST_PATH
//	ginto-sandboxctl journal [--file PATH] [--sandbox ID] [--diag]
//
// create sends one request exactly as the web application does and
// prints the daemon's reply. journal prints the launch journal as JSON
// lines (or CBOR diagnostic notation with --diag).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ginto-sandboxd/lib/codec"
	"github.com/bureau-foundation/ginto-sandboxd/lib/config"
	"github.com/bureau-foundation/ginto-sandboxd/lib/journal"
	"github.com/bureau-foundation/ginto-sandboxd/lib/process"
	"github.com/bureau-foundation/ginto-sandboxd/lib/sandboxclient"
	"github.com/bureau-foundation/ginto-sandboxd/lib/version"
)

const usage = `usage:
  ginto-sandboxctl create [--socket PATH]... SANDBOX_ID HOST_PATH
  ginto-sandboxctl journal [--file PATH] [--sandbox ID] [--diag]
  ginto-sandboxctl version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "create":
		return runCreate(ctx, args[1:], stdout, stderr)
	case "journal":
		return runJournal(args[1:], stdout)
	case "version", "--version":
		fmt.Fprintf(stdout, "ginto-sandboxctl %s\n", version.Info())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func runCreate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var sockets []string
	var verbose bool
	flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringArrayVar(&sockets, "socket", nil, "daemon socket to try (repeatable; default: the standard candidates)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log each connection attempt to stderr")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 2 {
		return fmt.Errorf("create takes SANDBOX_ID and HOST_PATH, got %d arguments", flagSet.NArg())
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	client := sandboxclient.New(logger, sockets...)
	response, err := client.Create(ctx, flagSet.Arg(0), flagSet.Arg(1))
	var refusal *sandboxclient.ResponseError
	if err != nil && !errors.As(err, &refusal) {
		return err
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetEscapeHTML(false)
	if encodeErr := encoder.Encode(response); encodeErr != nil {
		return encodeErr
	}
	return err
}

func runJournal(args []string, stdout io.Writer) error {
	var path, sandboxID string
	var diagnostic bool
	flagSet := pflag.NewFlagSet("journal", pflag.ContinueOnError)
	flagSet.StringVar(&path, "file", "", "journal file (default: paths.journal from the daemon config)")
	flagSet.StringVar(&sandboxID, "sandbox", "", "only show records for this canonical sandbox id")
	flagSet.BoolVar(&diagnostic, "diag", false, "print CBOR diagnostic notation instead of JSON")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path = cfg.Paths.Journal
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetEscapeHTML(false)
	return journal.ReadFile(path, func(record journal.Record) error {
		if sandboxID != "" && record.SandboxID != sandboxID {
			return nil
		}
		if !diagnostic {
			return encoder.Encode(record)
		}
		data, err := codec.Marshal(record)
		if err != nil {
			return err
		}
		notation, err := codec.Diagnose(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, notation)
		return err
	})
}
