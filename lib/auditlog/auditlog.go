// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/ginto-sandboxd/lib/sandboxid"
)

// Marker is written once per accepted request, in a single write.
const Marker = "=== create request received ===\n"

const (
	dirMode  os.FileMode = 0o750
	fileMode os.FileMode = 0o640
)

// Store owns the install log directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on
// first use.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the log directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the install log path for a canonical identifier.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, "install_"+id+".log")
}

// Entry is an install log opened and locked for one request.
type Entry struct {
	file *os.File
	path string
}

// File returns the open log, suitable as a child's stdout and stderr.
func (e *Entry) File() *os.File { return e.file }

// Path returns the log's path.
func (e *Entry) Path() string { return e.path }

// Close releases the lock and the daemon's descriptor. A child started
// with the file keeps its own reference and continues appending.
// Calling Close again is a no-op.
func (e *Entry) Close() error {
	if e.file == nil {
		return nil
	}
	unlockErr := flock(e.file, unix.LOCK_UN)
	closeErr := e.file.Close()
	e.file = nil
	return errors.Join(unlockErr, closeErr)
}

// Begin opens the install log for id in append mode, blocks until it
// holds an exclusive lock on it, and appends the marker. id must be a
// canonical identifier; anything else is refused so no caller can
// steer the path outside the directory.
func (s *Store) Begin(id string) (*Entry, error) {
	if !sandboxid.Valid(id) {
		return nil, fmt.Errorf("refusing install log for non-canonical id %q", id)
	}
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", s.dir, err)
	}

	path := s.Path(id)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, fileMode)
	if err != nil {
		return nil, fmt.Errorf("opening install log: %w", err)
	}
	if err := flock(file, unix.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("locking install log %s: %w", path, err)
	}

	entry := &Entry{file: file, path: path}
	if _, err := file.WriteString(Marker); err != nil {
		entry.Close()
		return nil, fmt.Errorf("writing marker to %s: %w", path, err)
	}
	return entry, nil
}

func flock(file *os.File, how int) error {
	for {
		err := unix.Flock(int(file.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}
