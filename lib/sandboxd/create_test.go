// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxd

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/ginto-sandboxd/lib/auditlog"
	"github.com/bureau-foundation/ginto-sandboxd/lib/ipc"
	"github.com/bureau-foundation/ginto-sandboxd/lib/journal"
	"github.com/bureau-foundation/ginto-sandboxd/lib/peercred"
)

func createRequest(sandboxID, hostPath any) map[string]any {
	request := map[string]any{"action": ipc.ActionCreate}
	if sandboxID != nil {
		request["sandboxId"] = sandboxID
	}
	if hostPath != nil {
		request["hostPath"] = hostPath
	}
	return request
}

func readJournal(t *testing.T, path string) []journal.Record {
	t.Helper()
	var records []journal.Record
	if err := journal.ReadFile(path, func(record journal.Record) error {
		records = append(records, record)
		return nil
	}); err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	return records
}

func TestCreateStartsScript(t *testing.T) {
	f := startServer(t, `printf 'id=%s path=%s\n' "$1" "$2"`+"\n", nil)
	hostPath := filepath.Join(f.allowedRoot, "project")

	response := send(t, f.socketPath, map[string]any{
		"action":            "create",
		"sandboxId":         "My_Sandbox!!ID",
		"originalSandboxId": "ignored",
		"hostPath":          hostPath + "/../project/.",
	})

	wantLog := filepath.Join(f.logDir, "install_my-sandbox-id.log")
	if !response.OK {
		t.Fatalf("create failed: %+v", response)
	}
	if response.PID <= 0 {
		t.Errorf("pid = %d, want a real pid", response.PID)
	}
	if response.SandboxID != "my-sandbox-id" {
		t.Errorf("sandboxId = %q, want my-sandbox-id", response.SandboxID)
	}
	if response.OriginalSandboxID != "My_Sandbox!!ID" {
		t.Errorf("originalSandboxId = %q, want the raw input", response.OriginalSandboxID)
	}
	if response.Log != wantLog {
		t.Errorf("log = %q, want %q", response.Log, wantLog)
	}

	// The marker is on disk by the time the response has been read.
	data, err := os.ReadFile(wantLog)
	if err != nil {
		t.Fatalf("reading install log: %v", err)
	}
	if !strings.HasPrefix(string(data), auditlog.Marker) {
		t.Errorf("install log does not start with the marker: %q", data)
	}

	f.spawner.Wait()
	data, err = os.ReadFile(wantLog)
	if err != nil {
		t.Fatalf("reading install log: %v", err)
	}
	want := auditlog.Marker + "id=my-sandbox-id path=" + hostPath + "\n"
	if string(data) != want {
		t.Errorf("install log = %q, want %q", data, want)
	}

	records := readJournal(t, f.journalPath)
	if len(records) != 2 {
		t.Fatalf("journal has %d records, want 2: %+v", len(records), records)
	}
	launch, exit := records[0], records[1]
	if launch.Kind != journal.KindLaunch || launch.PID != response.PID || launch.SandboxID != "my-sandbox-id" {
		t.Errorf("launch record = %+v", launch)
	}
	if launch.HostPath != hostPath || launch.OriginalSandboxID != "My_Sandbox!!ID" || launch.ScriptDigest != "test-digest" {
		t.Errorf("launch record = %+v", launch)
	}
	if !launch.Time.Equal(epoch) {
		t.Errorf("launch time = %v, want the injected clock's %v", launch.Time, epoch)
	}
	if launch.Peer == nil || launch.Peer.UID != uint32(os.Getuid()) || launch.Peer.PID != int32(os.Getpid()) {
		t.Errorf("launch peer = %+v, want this test process", launch.Peer)
	}
	if exit.Kind != journal.KindExit || exit.RequestID != launch.RequestID || exit.PID != launch.PID {
		t.Errorf("exit record = %+v, want it to match launch %+v", exit, launch)
	}
	if exit.ExitCode == nil || *exit.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", exit.ExitCode)
	}
	if launch.RequestID == "" {
		t.Error("launch record has no request id")
	}
}

func TestCreateRejections(t *testing.T) {
	f := startServer(t, "touch \"$0.ran\"\n", nil)

	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(f.allowedRoot, "escape")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}
	sibling := f.allowedRoot + "evil"
	if err := os.Mkdir(sibling, 0o755); err != nil {
		t.Fatalf("creating sibling: %v", err)
	}
	project := filepath.Join(f.allowedRoot, "project")

	tests := []struct {
		name    string
		request map[string]any
		want    string
	}{
		{"missing hostPath", createRequest("abc", nil), ipc.ErrMissingFields},
		{"missing sandboxId", createRequest(nil, project), ipc.ErrMissingFields},
		{"empty sandboxId", createRequest("", project), ipc.ErrMissingFields},
		{"null hostPath", map[string]any{"action": "create", "sandboxId": "abc", "hostPath": nil}, ipc.ErrMissingFields},
		{"false sandboxId", createRequest(false, project), ipc.ErrMissingFields},
		{"zero sandboxId", createRequest(0, project), ipc.ErrMissingFields},
		{"punctuation-only sandboxId", createRequest("!!!", project), ipc.ErrInvalidSandboxID},
		{"hyphen-only sandboxId", createRequest("---", project), ipc.ErrInvalidSandboxID},
		{"numeric sandboxId", createRequest(42, project), ipc.ErrInvalidSandboxID},
		{"object sandboxId", createRequest(map[string]any{"a": 1}, project), ipc.ErrInvalidSandboxID},
		{"etc passwd", createRequest("abc", "/etc/passwd"), ipc.ErrHostPathDenied},
		{"relative path", createRequest("abc", "project"), ipc.ErrHostPathDenied},
		{"dotdot escape", createRequest("abc", f.allowedRoot+"/../"), ipc.ErrHostPathDenied},
		{"symlink escape", createRequest("abc", filepath.Join(f.allowedRoot, "escape")), ipc.ErrHostPathDenied},
		{"prefix sibling", createRequest("abc", sibling), ipc.ErrHostPathDenied},
		{"missing parent", createRequest("abc", filepath.Join(f.allowedRoot, "absent", "child")), ipc.ErrHostPathDenied},
		{"numeric hostPath", createRequest("abc", 7), ipc.ErrHostPathDenied},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := send(t, f.socketPath, test.request)
			if response.OK || response.Error != test.want {
				t.Errorf("response = %+v, want error %q", response, test.want)
			}
			if response.PID != 0 || response.Log != "" {
				t.Errorf("failure response carries success fields: %+v", response)
			}
		})
	}

	if entries, err := os.ReadDir(f.logDir); err == nil && len(entries) > 0 {
		t.Errorf("rejected requests wrote install logs: %v", entries)
	}
	if _, err := os.Stat(filepath.Join(f.scriptDir, "create.sh.ran")); err == nil {
		t.Error("provisioning script ran for a rejected request")
	}
	if records := readJournal(t, f.journalPath); len(records) != 0 {
		t.Errorf("rejected requests were journaled: %+v", records)
	}
}

func TestCreateAcceptsAllowedRootItself(t *testing.T) {
	f := startServer(t, "exit 0\n", nil)

	response := send(t, f.socketPath, createRequest("root", f.allowedRoot))
	if !response.OK {
		t.Fatalf("create on the allowed root failed: %+v", response)
	}
}

func TestCreateAcceptsDirectoryTheScriptWillCreate(t *testing.T) {
	f := startServer(t, "mkdir \"$2\"\n", nil)
	clients := filepath.Join(f.allowedRoot, "clients")
	if err := os.Mkdir(clients, 0o755); err != nil {
		t.Fatalf("creating clients dir: %v", err)
	}
	hostPath := filepath.Join(clients, "new-box")

	response := send(t, f.socketPath, createRequest("new-box", hostPath))
	if !response.OK {
		t.Fatalf("create for a not-yet-created directory failed: %+v", response)
	}
	f.spawner.Wait()
	if info, err := os.Stat(hostPath); err != nil || !info.IsDir() {
		t.Errorf("provisioning script did not receive %s: %v", hostPath, err)
	}
}

func TestConcurrentCreatesSameID(t *testing.T) {
	f := startServer(t, "echo \"child-$$\"\n", nil)
	project := filepath.Join(f.allowedRoot, "project")

	const requests = 8
	responses := make(chan ipc.Response, requests)
	var group sync.WaitGroup
	for i := 0; i < requests; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			response, err := trySend(f.socketPath, createRequest("Same Box", project))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			responses <- response
		}()
	}
	group.Wait()
	close(responses)

	if len(responses) != requests {
		t.Fatalf("%d of %d creates completed", len(responses), requests)
	}
	pids := make(map[int]bool)
	for response := range responses {
		if !response.OK {
			t.Fatalf("create failed: %+v", response)
		}
		pids[response.PID] = true
	}
	if len(pids) != requests {
		t.Errorf("got %d distinct pids, want %d", len(pids), requests)
	}

	f.spawner.Wait()
	data, err := os.ReadFile(filepath.Join(f.logDir, "install_same-box.log"))
	if err != nil {
		t.Fatalf("reading install log: %v", err)
	}

	markers := 0
	children := make(map[int]bool)
	for _, line := range strings.SplitAfter(string(data), "\n") {
		switch {
		case line == "":
		case line == auditlog.Marker:
			markers++
		case strings.HasPrefix(line, "child-") && strings.HasSuffix(line, "\n"):
			pid, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(line, "child-"), "\n"))
			if err != nil {
				t.Errorf("corrupt child line %q", line)
				continue
			}
			children[pid] = true
		default:
			t.Errorf("interleaved or corrupt line %q", line)
		}
	}
	if markers != requests {
		t.Errorf("found %d intact markers, want %d", markers, requests)
	}
	for pid := range pids {
		if !children[pid] {
			t.Errorf("no output from child %d", pid)
		}
	}
}

// denyAll records what it was asked and refuses.
type denyAll struct {
	mu    sync.Mutex
	calls []peercred.Cred
	known []bool
}

func (d *denyAll) Authorize(_ context.Context, _ string, cred peercred.Cred, known bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, cred)
	d.known = append(d.known, known)
	return peercred.ErrDenied
}

func TestCreateAuthorizerDenies(t *testing.T) {
	authorizer := &denyAll{}
	f := startServer(t, "exit 0\n", func(options *Options) {
		options.Authorizer = authorizer
	})

	response := send(t, f.socketPath, createRequest("box", filepath.Join(f.allowedRoot, "project")))
	if response.OK || response.Error != ipc.ErrNotAuthorized {
		t.Errorf("response = %+v, want not authorized", response)
	}
	if _, err := os.Stat(filepath.Join(f.logDir, "install_box.log")); err == nil {
		t.Error("denied request wrote an install log")
	}

	authorizer.mu.Lock()
	defer authorizer.mu.Unlock()
	if len(authorizer.calls) != 1 {
		t.Fatalf("authorizer called %d times, want 1", len(authorizer.calls))
	}
	if !authorizer.known[0] || authorizer.calls[0].UID != uint32(os.Getuid()) {
		t.Errorf("authorizer saw cred %+v known=%v, want this process", authorizer.calls[0], authorizer.known[0])
	}
}

func TestCreateLaunchFailureIsGeneric(t *testing.T) {
	f := startServer(t, "exit 0\n", nil)
	if err := os.Remove(filepath.Join(f.scriptDir, "create.sh")); err != nil {
		t.Fatalf("removing script: %v", err)
	}

	response := send(t, f.socketPath, createRequest("box", filepath.Join(f.allowedRoot, "project")))
	if response.OK || response.Error != ipc.ErrLaunchFailed {
		t.Errorf("response = %+v, want %q", response, ipc.ErrLaunchFailed)
	}
	if strings.Contains(response.Error, f.scriptDir) {
		t.Errorf("error leaks the script path: %q", response.Error)
	}
	if records := readJournal(t, f.journalPath); len(records) != 0 {
		t.Errorf("failed launch was journaled as a launch: %+v", records)
	}
}

func TestCreateLogDirUnavailable(t *testing.T) {
	f := startServer(t, "exit 0\n", nil)
	if err := os.WriteFile(f.logDir, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("blocking log dir: %v", err)
	}

	response := send(t, f.socketPath, createRequest("box", filepath.Join(f.allowedRoot, "project")))
	if response.OK || response.Error != ipc.ErrLaunchFailed {
		t.Errorf("response = %+v, want %q", response, ipc.ErrLaunchFailed)
	}
}
