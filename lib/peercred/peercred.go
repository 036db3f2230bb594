// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peercred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
)

// ErrUnsupported is returned by FromConn on platforms without SO_PEERCRED.
var ErrUnsupported = errors.New("peer credentials not supported on this platform")

// ErrDenied is wrapped by Authorizer implementations that refuse a peer.
var ErrDenied = errors.New("peer not authorized")

// Cred is the identity of a connected peer. Executable is empty when
// /proc/<pid>/exe could not be read.
type Cred struct {
	PID        int32  `cbor:"pid" json:"pid"`
	UID        uint32 `cbor:"uid" json:"uid"`
	GID        uint32 `cbor:"gid" json:"gid"`
	Executable string `cbor:"exe,omitempty" json:"exe,omitempty"`
}

// LogValue renders the credential as a slog group.
func (c Cred) LogValue() slog.Value {
	attributes := []slog.Attr{
		slog.Int("pid", int(c.PID)),
		slog.Uint64("uid", uint64(c.UID)),
		slog.Uint64("gid", uint64(c.GID)),
	}
	if c.Executable != "" {
		attributes = append(attributes, slog.String("exe", c.Executable))
	}
	return slog.GroupValue(attributes...)
}

// Executable returns the path of the binary running as pid.
func Executable(pid int32) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	path, err := os.Readlink("/proc/" + strconv.Itoa(int(pid)) + "/exe")
	if err != nil {
		return "", fmt.Errorf("reading executable of pid %d: %w", pid, err)
	}
	return path, nil
}

type contextKey struct{}

// WithCred returns a context carrying cred.
func WithCred(ctx context.Context, cred Cred) context.Context {
	return context.WithValue(ctx, contextKey{}, cred)
}

// FromContext returns the credential stored by WithCred. The boolean is
// false when the connection's credentials could not be captured.
func FromContext(ctx context.Context) (Cred, bool) {
	cred, ok := ctx.Value(contextKey{}).(Cred)
	return cred, ok
}

// Authorizer decides whether a peer may perform an action. known is
// false when the peer's credentials could not be captured.
type Authorizer interface {
	Authorize(ctx context.Context, action string, cred Cred, known bool) error
}

// AllowAll authorizes every peer. Access control then rests entirely on
// the socket's filesystem permissions.
type AllowAll struct{}

// Authorize always returns nil.
func (AllowAll) Authorize(context.Context, string, Cred, bool) error { return nil }

// AllowList authorizes peers whose uid is in UIDs or whose gid is in
// GIDs. Peers with unknown credentials are refused. uid 0 is always
// allowed.
type AllowList struct {
	UIDs []uint32
	GIDs []uint32
}

// Authorize implements Authorizer.
func (a AllowList) Authorize(_ context.Context, action string, cred Cred, known bool) error {
	if !known {
		return fmt.Errorf("%w: %s from peer with unknown credentials", ErrDenied, action)
	}
	if cred.UID == 0 || slices.Contains(a.UIDs, cred.UID) || slices.Contains(a.GIDs, cred.GID) {
		return nil
	}
	return fmt.Errorf("%w: %s from uid %d gid %d", ErrDenied, action, cred.UID, cred.GID)
}
