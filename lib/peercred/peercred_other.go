// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package peercred

import "net"

// FromConn is unavailable without SO_PEERCRED.
func FromConn(*net.UnixConn) (Cred, error) {
	return Cred{}, ErrUnsupported
}
