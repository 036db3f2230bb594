// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package peercred

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// FromConn reads SO_PEERCRED from a Unix socket connection and fills in
// the peer executable when it is readable.
func FromConn(conn *net.UnixConn) (Cred, error) {
	if conn == nil {
		return Cred{}, fmt.Errorf("nil connection")
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return Cred{}, fmt.Errorf("raw connection: %w", err)
	}

	var ucred *unix.Ucred
	var sockoptErr error
	controlErr := rawConn.Control(func(fd uintptr) {
		ucred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return Cred{}, fmt.Errorf("controlling raw connection: %w", controlErr)
	}
	if sockoptErr != nil {
		return Cred{}, fmt.Errorf("getsockopt SO_PEERCRED: %w", sockoptErr)
	}
	if ucred == nil || ucred.Pid <= 0 {
		return Cred{}, fmt.Errorf("SO_PEERCRED returned no peer process")
	}

	cred := Cred{PID: ucred.Pid, UID: ucred.Uid, GID: ucred.Gid}
	if executable, err := Executable(cred.PID); err == nil {
		cred.Executable = executable
	}
	return cred, nil
}
