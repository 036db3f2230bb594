// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/ginto-sandboxd/lib/ipc"
	"github.com/bureau-foundation/ginto-sandboxd/lib/testutil"
)

func testClient(paths ...string) *Client {
	client := New(slog.New(slog.NewTextHandler(io.Discard, nil)), paths...)
	client.RetryDelay = time.Millisecond
	client.ResponseTimeout = testutil.Timeout
	return client
}

// fakeDaemon answers each connection with reply(request line). A nil
// reply closes the connection without answering.
func fakeDaemon(t *testing.T, socketPath string, reply func(line string) *ipc.Response) <-chan string {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	requests := make(chan string, 16)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			line, _ := bufio.NewReader(conn).ReadString('\n')
			requests <- line
			if response := reply(line); response != nil {
				ipc.WriteResponse(conn, *response)
			}
			conn.Close()
		}
	}()
	return requests
}

func TestCreateSendsCanonicalAndOriginalID(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "ginto-sandboxd.sock")
	requests := fakeDaemon(t, socketPath, func(string) *ipc.Response {
		return &ipc.Response{OK: true, PID: 77, SandboxID: "my-box", OriginalSandboxID: "My Box", Log: "/var/log/x"}
	})

	response, err := testClient(socketPath).Create(context.Background(), "My Box", "/home/alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if response.PID != 77 || response.SandboxID != "my-box" {
		t.Errorf("response = %+v", response)
	}

	line := testutil.RequireReceive(t, requests, testutil.Timeout, "waiting for request")
	var request ipc.CreateRequest
	if err := json.Unmarshal([]byte(line), &request); err != nil {
		t.Fatalf("decoding request %q: %v", line, err)
	}
	want := ipc.CreateRequest{Action: "create", SandboxID: "my-box", OriginalSandboxID: "My Box", HostPath: "/home/alice"}
	if request != want {
		t.Errorf("request = %+v, want %+v", request, want)
	}
}

func TestCreateSkipsMissingCandidates(t *testing.T) {
	directory := testutil.SocketDir(t)
	live := filepath.Join(directory, "live.sock")
	fakeDaemon(t, live, func(string) *ipc.Response { return &ipc.Response{OK: true, PID: 1} })

	client := testClient(filepath.Join(directory, "absent.sock"), live)
	if _, err := client.Create(context.Background(), "box", "/srv"); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestCreateRetriesAndMovesOn(t *testing.T) {
	directory := testutil.SocketDir(t)

	stalePath := filepath.Join(directory, "stale.sock")
	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: stalePath, Net: "unix"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	stale.SetUnlinkOnClose(false)
	stale.Close()

	silentPath := filepath.Join(directory, "silent.sock")
	silentRequests := fakeDaemon(t, silentPath, func(string) *ipc.Response { return nil })

	livePath := filepath.Join(directory, "live.sock")
	fakeDaemon(t, livePath, func(string) *ipc.Response { return &ipc.Response{OK: true, PID: 9} })

	response, err := testClient(stalePath, silentPath, livePath).Create(context.Background(), "box", "/srv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if response.PID != 9 {
		t.Errorf("response = %+v, want the live daemon's", response)
	}
	if got := len(silentRequests); got != DefaultAttempts {
		t.Errorf("silent daemon saw %d attempts, want %d", got, DefaultAttempts)
	}
}

func TestCreateReturnsRefusal(t *testing.T) {
	directory := testutil.SocketDir(t)
	first := filepath.Join(directory, "first.sock")
	firstRequests := fakeDaemon(t, first, func(string) *ipc.Response {
		failure := ipc.Failure(ipc.ErrHostPathDenied)
		return &failure
	})
	second := filepath.Join(directory, "second.sock")
	secondRequests := fakeDaemon(t, second, func(string) *ipc.Response { return &ipc.Response{OK: true} })

	_, err := testClient(first, second).Create(context.Background(), "box", "/etc")
	var refusal *ResponseError
	if !errors.As(err, &refusal) {
		t.Fatalf("Create error = %v, want *ResponseError", err)
	}
	if refusal.Message != ipc.ErrHostPathDenied || refusal.SocketPath != first {
		t.Errorf("refusal = %+v", refusal)
	}
	if len(firstRequests) != 1 || len(secondRequests) != 0 {
		t.Errorf("refusal was retried: first=%d second=%d", len(firstRequests), len(secondRequests))
	}
}

func TestCreateNoDaemon(t *testing.T) {
	directory := testutil.SocketDir(t)
	_, err := testClient(filepath.Join(directory, "a.sock"), filepath.Join(directory, "b.sock")).
		Create(context.Background(), "box", "/srv")
	if !errors.Is(err, ErrNoDaemon) {
		t.Errorf("error = %v, want ErrNoDaemon", err)
	}
}
