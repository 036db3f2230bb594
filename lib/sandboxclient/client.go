// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/bureau-foundation/ginto-sandboxd/lib/ipc"
	"github.com/bureau-foundation/ginto-sandboxd/lib/sandboxid"
)

// DefaultSocketPaths are tried in order.
var DefaultSocketPaths = []string{
	"/run/ginto-sandboxd.sock",
	"/run/sandboxd.sock",
	"/run/ginto/sandboxd.sock",
}

const (
	DefaultAttempts        = 3
	DefaultDialTimeout     = 600 * time.Millisecond
	DefaultRetryDelay      = 200 * time.Millisecond
	DefaultResponseTimeout = 5 * time.Second
)

// ErrNoDaemon is returned when no candidate socket produced a response.
var ErrNoDaemon = errors.New("no sandbox daemon reachable")

// ResponseError is a refusal reported by the daemon.
type ResponseError struct {
	SocketPath string
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("sandbox daemon at %s refused request: %s", e.SocketPath, e.Message)
}

// Client sends requests to the daemon. The zero value is not usable;
// call New.
type Client struct {
	SocketPaths     []string
	Attempts        int
	DialTimeout     time.Duration
	RetryDelay      time.Duration
	ResponseTimeout time.Duration
	Logger          *slog.Logger
}

// New returns a Client with the default candidates and timings. When
// socketPaths is non-empty it replaces the default candidate list.
func New(logger *slog.Logger, socketPaths ...string) *Client {
	if len(socketPaths) == 0 {
		socketPaths = DefaultSocketPaths
	}
	return &Client{
		SocketPaths:     socketPaths,
		Attempts:        DefaultAttempts,
		DialTimeout:     DefaultDialTimeout,
		RetryDelay:      DefaultRetryDelay,
		ResponseTimeout: DefaultResponseTimeout,
		Logger:          logger,
	}
}

// Create asks the daemon to provision sandboxID at hostPath. The id is
// canonicalized locally as well so the daemon's reply can be checked
// against it; the caller's spelling travels as originalSandboxId.
func (c *Client) Create(ctx context.Context, sandboxID, hostPath string) (ipc.Response, error) {
	payload, err := json.Marshal(ipc.CreateRequest{
		Action:            ipc.ActionCreate,
		SandboxID:         sandboxid.Sanitize(sandboxID),
		OriginalSandboxID: sandboxID,
		HostPath:          hostPath,
	})
	if err != nil {
		return ipc.Response{}, fmt.Errorf("encoding create request: %w", err)
	}
	return c.do(ctx, append(payload, '\n'))
}

func (c *Client) do(ctx context.Context, payload []byte) (ipc.Response, error) {
	var attemptErrors []error
	for _, socketPath := range c.SocketPaths {
		if _, err := os.Stat(socketPath); err != nil {
			continue
		}
		for attempt := 1; attempt <= c.Attempts; attempt++ {
			response, err := c.roundTrip(ctx, socketPath, payload)
			if err == nil {
				if !response.OK {
					return response, &ResponseError{SocketPath: socketPath, Message: response.Error}
				}
				return response, nil
			}
			if ctx.Err() != nil {
				return ipc.Response{}, ctx.Err()
			}
			c.Logger.Debug("sandbox daemon attempt failed",
				"socket", socketPath,
				"attempt", attempt,
				"error", err,
			)
			attemptErrors = append(attemptErrors, fmt.Errorf("%s attempt %d: %w", socketPath, attempt, err))

			select {
			case <-time.After(c.RetryDelay):
			case <-ctx.Done():
				return ipc.Response{}, ctx.Err()
			}
		}
	}
	if len(attemptErrors) == 0 {
		return ipc.Response{}, fmt.Errorf("%w: none of %v exist", ErrNoDaemon, c.SocketPaths)
	}
	return ipc.Response{}, fmt.Errorf("%w: %w", ErrNoDaemon, errors.Join(attemptErrors...))
}

// roundTrip sends one request on a fresh connection and reads the
// single response line. The write side is left open.
func (c *Client) roundTrip(ctx context.Context, socketPath string, payload []byte) (ipc.Response, error) {
	dialer := net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return ipc.Response{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.ResponseTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write(payload); err != nil {
		return ipc.Response{}, fmt.Errorf("sending request: %w", err)
	}
	return ipc.ReadResponse(conn)
}
