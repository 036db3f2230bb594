// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxd

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"
)

// ListenConfig describes the daemon's socket.
type ListenConfig struct {
	Path string

	// Mode is applied with chmod after bind.
	Mode os.FileMode

	// Group, when non-empty, is a group name or numeric gid the socket
	// is chowned to.
	Group string
}

// Listen binds the Unix socket described by config. The parent
// directory is created if needed. A leftover socket from a previous
// run is removed, but Listen refuses to remove anything that is not a
// socket or a socket another process is still serving. Closing the
// returned listener unlinks the socket file.
func Listen(config ListenConfig) (*net.UnixListener, error) {
	socketDir := filepath.Dir(config.Path)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory %s: %w", socketDir, err)
	}

	if err := removeStaleSocket(config.Path); err != nil {
		return nil, err
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: config.Path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", config.Path, err)
	}

	if err := os.Chmod(config.Path, config.Mode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	if config.Group != "" {
		gid, err := LookupGroupID(config.Group)
		if err != nil {
			listener.Close()
			return nil, err
		}
		if err := os.Chown(config.Path, -1, gid); err != nil {
			listener.Close()
			return nil, fmt.Errorf("setting socket group: %w", err)
		}
	}

	return listener, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking socket path %s: %w", path, err)
	}
	if info.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("socket path %s exists and is not a socket", path)
	}

	if conn, err := net.DialTimeout("unix", path, 500*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use by another process", path)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	return nil
}

// LookupGroupID resolves a group name or numeric gid.
func LookupGroupID(group string) (int, error) {
	if gid, err := strconv.Atoi(group); err == nil {
		if gid < 0 {
			return 0, fmt.Errorf("invalid gid %d", gid)
		}
		return gid, nil
	}
	entry, err := user.LookupGroup(group)
	if err != nil {
		return 0, fmt.Errorf("looking up socket group %q: %w", group, err)
	}
	gid, err := strconv.Atoi(entry.Gid)
	if err != nil {
		return 0, fmt.Errorf("group %q has non-numeric gid %q", group, entry.Gid)
	}
	return gid, nil
}
