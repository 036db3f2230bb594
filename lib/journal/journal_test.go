// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/ginto-sandboxd/lib/peercred"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func readAll(t *testing.T, path string) []Record {
	t.Helper()
	var records []Record
	if err := ReadFile(path, func(record Record) error {
		records = append(records, record)
		return nil
	}); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return records
}

func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "journal.cbor")
	journal, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	exitCode := 3
	launch := Record{
		Kind:              KindLaunch,
		Time:              epoch,
		RequestID:         "req-1",
		SandboxID:         "my-box",
		OriginalSandboxID: "My_Box",
		HostPath:          "/home/alice/project",
		PID:               4242,
		Log:               "/var/log/ginto-sandboxd/install_my-box.log",
		Script:            "/opt/create.sh",
		ScriptDigest:      "abcd",
		Peer:              &peercred.Cred{PID: 99, UID: 1000, GID: 1000, Executable: "/usr/bin/php"},
	}
	exit := Record{
		Kind:      KindExit,
		Time:      epoch.Add(time.Minute),
		RequestID: "req-1",
		SandboxID: "my-box",
		PID:       4242,
		ExitCode:  &exitCode,
	}
	for _, record := range []Record{launch, exit} {
		if err := journal.Append(record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records := readAll(t, path)
	if len(records) != 2 {
		t.Fatalf("read %d records, want 2", len(records))
	}

	got := records[0]
	if got.Kind != KindLaunch || got.PID != 4242 || got.SandboxID != "my-box" || got.OriginalSandboxID != "My_Box" {
		t.Errorf("launch record = %+v", got)
	}
	if !got.Time.Equal(epoch) {
		t.Errorf("launch time = %v, want %v", got.Time, epoch)
	}
	if got.Peer == nil || *got.Peer != *launch.Peer {
		t.Errorf("launch peer = %+v, want %+v", got.Peer, launch.Peer)
	}
	if got.ExitCode != nil {
		t.Errorf("launch record has exit code %d", *got.ExitCode)
	}

	got = records[1]
	if got.Kind != KindExit || got.ExitCode == nil || *got.ExitCode != 3 {
		t.Errorf("exit record = %+v", got)
	}
	if got.Peer != nil {
		t.Errorf("exit record has peer %+v", got.Peer)
	}
}

func TestAppendAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.cbor")
	for _, id := range []string{"first", "second"} {
		journal, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := journal.Append(Record{Kind: KindLaunch, Time: epoch, SandboxID: id}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		journal.Close()
	}

	records := readAll(t, path)
	if len(records) != 2 || records[0].SandboxID != "first" || records[1].SandboxID != "second" {
		t.Errorf("records = %+v", records)
	}
}

func TestAppendAfterClose(t *testing.T) {
	journal, err := Open(filepath.Join(t.TempDir(), "journal.cbor"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	journal.Close()
	if err := journal.Append(Record{Kind: KindLaunch}); err == nil {
		t.Error("Append after Close succeeded")
	}
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.cbor")
	journal, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const writers = 8
	const perWriter = 25
	var group sync.WaitGroup
	for writer := 0; writer < writers; writer++ {
		writer := writer
		group.Add(1)
		go func() {
			defer group.Done()
			for index := 0; index < perWriter; index++ {
				if err := journal.Append(Record{Kind: KindLaunch, Time: epoch, PID: writer*1000 + index}); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}()
	}
	group.Wait()
	journal.Close()

	if records := readAll(t, path); len(records) != writers*perWriter {
		t.Errorf("read %d records, want %d", len(records), writers*perWriter)
	}
}

func TestReadTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.cbor")
	journal, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	journal.Append(Record{Kind: KindLaunch, Time: epoch, SandboxID: "whole"})
	journal.Append(Record{Kind: KindLaunch, Time: epoch, SandboxID: "torn"})
	journal.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var delivered []string
	err = Read(bytes.NewReader(data[:len(data)-3]), func(record Record) error {
		delivered = append(delivered, record.SandboxID)
		return nil
	})
	if err == nil {
		t.Fatal("Read of a truncated journal returned nil")
	}
	if len(delivered) != 1 || delivered[0] != "whole" {
		t.Errorf("delivered %v before the error, want [whole]", delivered)
	}
}

func TestReadEmpty(t *testing.T) {
	calls := 0
	if err := Read(bytes.NewReader(nil), func(Record) error { calls++; return nil }); err != nil {
		t.Fatalf("Read(empty): %v", err)
	}
	if calls != 0 {
		t.Errorf("fn called %d times for an empty journal", calls)
	}
}
