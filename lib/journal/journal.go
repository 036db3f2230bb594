// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bureau-foundation/ginto-sandboxd/lib/codec"
	"github.com/bureau-foundation/ginto-sandboxd/lib/peercred"
)

// Kind distinguishes launch records from exit records.
type Kind string

const (
	// KindLaunch is written when a provisioning script has started.
	KindLaunch Kind = "launch"
	// KindExit is written when a started script has been reaped.
	KindExit Kind = "exit"
)

// Record is one journal entry. Launch and exit records for the same
// child share RequestID and PID.
type Record struct {
	Kind              Kind           `cbor:"kind" json:"kind"`
	Time              time.Time      `cbor:"time" json:"time"`
	RequestID         string         `cbor:"request_id" json:"request_id"`
	SandboxID         string         `cbor:"sandbox_id" json:"sandbox_id"`
	OriginalSandboxID string         `cbor:"original_sandbox_id,omitempty" json:"original_sandbox_id,omitempty"`
	HostPath          string         `cbor:"host_path,omitempty" json:"host_path,omitempty"`
	PID               int            `cbor:"pid,omitempty" json:"pid,omitempty"`
	Log               string         `cbor:"log,omitempty" json:"log,omitempty"`
	Script            string         `cbor:"script,omitempty" json:"script,omitempty"`
	ScriptDigest      string         `cbor:"script_digest,omitempty" json:"script_digest,omitempty"`
	Peer              *peercred.Cred `cbor:"peer,omitempty" json:"peer,omitempty"`
	ExitCode          *int           `cbor:"exit_code,omitempty" json:"exit_code,omitempty"`
	Error             string         `cbor:"error,omitempty" json:"error,omitempty"`
}

// Journal appends records to a file.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens (creating if needed) the journal at path for appending.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{file: file, path: path}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append encodes record and appends it.
func (j *Journal) Append(record Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding journal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return fmt.Errorf("journal %s is closed", j.path)
	}
	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("appending to journal %s: %w", j.path, err)
	}
	return nil
}

// Close closes the journal. Later appends fail.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Read decodes records from r in order and calls fn for each. It stops
// at the first error from fn or from decoding; a clean end of input
// returns nil.
func Read(r io.Reader, fn func(Record) error) error {
	decoder := codec.NewDecoder(r)
	for index := 0; ; index++ {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding journal record %d: %w", index, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

// ReadFile is Read over the file at path.
func ReadFile(path string, fn func(Record) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer file.Close()
	return Read(file, fn)
}
