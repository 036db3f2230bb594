// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/ginto-sandboxd/lib/auditlog"
	"github.com/bureau-foundation/ginto-sandboxd/lib/clock"
	"github.com/bureau-foundation/ginto-sandboxd/lib/ipc"
	"github.com/bureau-foundation/ginto-sandboxd/lib/journal"
	"github.com/bureau-foundation/ginto-sandboxd/lib/netutil"
	"github.com/bureau-foundation/ginto-sandboxd/lib/peercred"
	"github.com/bureau-foundation/ginto-sandboxd/lib/spawn"
)

const (
	// DefaultMaxRequestBytes caps one request document.
	DefaultMaxRequestBytes = 8192

	// DefaultReadTimeout bounds how long a client may take to send its
	// request after connecting.
	DefaultReadTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds writing the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultWorkers is the number of connections handled at once.
	DefaultWorkers = 4

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// PathValidator resolves a caller-supplied host path and decides
// whether it may be handed to the provisioning script.
// *hostpath.Policy implements it.
type PathValidator interface {
	Validate(raw string) (string, error)
}

// Launcher starts the provisioning script. *spawn.Spawner implements it.
type Launcher interface {
	Start(launch spawn.Launch, onExit func(spawn.Exit)) (int, error)
	Script() string
}

// Recorder appends launch and exit records. *journal.Journal
// implements it.
type Recorder interface {
	Append(record journal.Record) error
}

// Options configures a Server. Logger, Policy, Audit and Launcher are
// required.
type Options struct {
	Logger   *slog.Logger
	Policy   PathValidator
	Audit    *auditlog.Store
	Launcher Launcher

	// Journal records launches and exits. Nil disables journaling.
	Journal Recorder

	// Authorizer decides whether a peer may create sandboxes. Nil
	// allows every peer that can open the socket.
	Authorizer peercred.Authorizer

	// Clock timestamps journal records and paces accept retries. Nil
	// uses the real clock.
	Clock clock.Clock

	// ScriptDigest is the BLAKE3 digest of the provisioning script
	// recorded with each launch. Empty when the script could not be
	// hashed at startup.
	ScriptDigest string

	// MaxRequestBytes, ReadTimeout, WriteTimeout and Workers fall back
	// to the Default* constants when zero.
	MaxRequestBytes int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Workers         int
}

// Server handles create requests on a Unix socket.
type Server struct {
	logger       *slog.Logger
	policy       PathValidator
	audit        *auditlog.Store
	launcher     Launcher
	journal      Recorder
	authorizer   peercred.Authorizer
	clock        clock.Clock
	scriptDigest atomic.Value

	maxRequestBytes int64
	readTimeout     time.Duration
	writeTimeout    time.Duration
	workers         int
}

// NewServer validates options and returns a Server.
func NewServer(options Options) (*Server, error) {
	var errs []error
	if options.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}
	if options.Policy == nil {
		errs = append(errs, errors.New("path policy is required"))
	}
	if options.Audit == nil {
		errs = append(errs, errors.New("audit store is required"))
	}
	if options.Launcher == nil {
		errs = append(errs, errors.New("launcher is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("sandboxd: %w", errors.Join(errs...))
	}

	server := &Server{
		logger:          options.Logger,
		policy:          options.Policy,
		audit:           options.Audit,
		launcher:        options.Launcher,
		journal:         options.Journal,
		authorizer:      options.Authorizer,
		clock:           options.Clock,
		maxRequestBytes: int64(options.MaxRequestBytes),
		readTimeout:     options.ReadTimeout,
		writeTimeout:    options.WriteTimeout,
		workers:         options.Workers,
	}
	server.scriptDigest.Store(options.ScriptDigest)
	if server.authorizer == nil {
		server.authorizer = peercred.AllowAll{}
	}
	if server.clock == nil {
		server.clock = clock.Real()
	}
	if server.maxRequestBytes <= 0 {
		server.maxRequestBytes = DefaultMaxRequestBytes
	}
	if server.readTimeout <= 0 {
		server.readTimeout = DefaultReadTimeout
	}
	if server.writeTimeout <= 0 {
		server.writeTimeout = DefaultWriteTimeout
	}
	if server.workers <= 0 {
		server.workers = DefaultWorkers
	}
	return server, nil
}

// SetScriptDigest replaces the digest recorded with later launches,
// after the provisioning script has been re-hashed.
func (s *Server) SetScriptDigest(digest string) {
	s.scriptDigest.Store(digest)
}

func (s *Server) currentScriptDigest() string {
	digest, _ := s.scriptDigest.Load().(string)
	return digest
}

// Serve accepts connections on listener until ctx is cancelled, then
// closes the listener, waits for in-flight requests, and returns nil.
// Children already started keep running.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()
	defer listener.Close()

	var handlers errgroup.Group
	handlers.SetLimit(s.workers)

	s.logger.Info("accepting requests",
		"address", listener.Addr().String(),
		"workers", s.workers,
		"script", s.launcher.Script(),
	)

	backoff := minAcceptBackoff
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			level := slog.LevelError
			if netutil.IsTemporaryAcceptError(err) {
				level = slog.LevelWarn
			}
			s.logger.Log(ctx, level, "accept failed", "error", err, "retry_in", backoff)
			select {
			case <-s.clock.After(backoff):
			case <-ctx.Done():
			}
			backoff = min(backoff*2, maxAcceptBackoff)
			continue
		}
		backoff = minAcceptBackoff

		handlers.Go(func() error {
			s.handleConnection(ctx, conn)
			return nil
		})
	}

	handlers.Wait()
	s.logger.Info("stopped accepting requests")
	return nil
}

var (
	errTrailingData  = errors.New("unexpected data after request document")
	errEmptyDocument = errors.New("request contains only whitespace")
	errInvalidUTF8   = errors.New("request is not valid UTF-8")
)

// handleConnection processes one request-response exchange.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID)
	started := s.clock.Now()

	responded := false
	reply := func(response ipc.Response) {
		responded = true
		s.writeResponse(conn, logger, response)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("request handler panicked",
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			if !responded {
				reply(ipc.Failure(ipc.ErrInternal))
			}
		}
	}()

	if unixConn, ok := conn.(*net.UnixConn); ok {
		cred, err := peercred.FromConn(unixConn)
		if err != nil {
			logger.Debug("peer credentials unavailable", "error", err)
		} else {
			ctx = peercred.WithCred(ctx, cred)
			logger = logger.With("peer", cred)
		}
	}

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	raw, err := s.readRequest(conn)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			logger.Debug("client closed without sending a request")
			return
		case !errors.Is(err, io.ErrUnexpectedEOF) && netutil.IsExpectedCloseError(err):
			logger.Debug("connection ended before a request arrived", "error", err)
			return
		}
		logger.Info("rejecting malformed request", "error", err)
		reply(ipc.Failure(ipc.ErrInvalidJSON))
		return
	}
	if !utf8.Valid(raw) {
		logger.Info("rejecting malformed request", "error", errInvalidUTF8)
		reply(ipc.Failure(ipc.ErrInvalidJSON))
		return
	}

	request, err := ipc.DecodeRequest(raw)
	if err != nil {
		logger.Info("rejecting malformed request", "error", err)
		reply(ipc.Failure(ipc.ErrInvalidJSON))
		return
	}

	var response ipc.Response
	switch action := request.ActionName(); action {
	case ipc.ActionCreate:
		response = s.create(ctx, logger, requestID, request)
	default:
		logger.Info("rejecting unknown action", "action", action)
		response = ipc.Failure(ipc.ErrUnknownAction)
	}
	reply(response)
	logger.Debug("request handled", "ok", response.OK, "elapsed", s.clock.Now().Sub(started))
}

// readRequest reads exactly one JSON document of at most
// maxRequestBytes. The client need not close its write side; anything
// beyond the document that has already arrived must be whitespace.
// io.EOF is returned only when the client sent nothing at all.
func (s *Server) readRequest(conn net.Conn) (json.RawMessage, error) {
	counter := &countingReader{reader: io.LimitReader(conn, s.maxRequestBytes)}
	decoder := json.NewDecoder(counter)
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) && counter.count > 0 {
			return nil, errEmptyDocument
		}
		return nil, err
	}
	rest, err := io.ReadAll(decoder.Buffered())
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		return nil, errTrailingData
	}
	return raw, nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	reader io.Reader
	count  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.count += int64(n)
	return n, err
}

// writeResponse sends one response line. Failures are logged at debug
// level when the client has simply gone away.
func (s *Server) writeResponse(conn net.Conn, logger *slog.Logger, response ipc.Response) {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := ipc.WriteResponse(conn, response); err != nil {
		if netutil.IsExpectedCloseError(err) {
			logger.Debug("client went away before the response was written", "error", err)
			return
		}
		logger.Warn("writing response failed", "error", err)
	}
}
