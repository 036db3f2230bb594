// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostpath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotPermitted is returned (wrapped) for every rejected path.
var ErrNotPermitted = errors.New("hostPath not permitted")

// DefaultRoots is the allow-list used when no roots are configured.
var DefaultRoots = []string{"/home", "/var", "/srv"}

// Policy is an immutable allow-list of root directories. Safe for
// concurrent use.
type Policy struct {
	roots []string
}

// NewPolicy builds a Policy from roots. Each root must be absolute.
// Roots that exist are resolved through symlinks so that comparisons
// happen in the same canonical namespace as resolved candidates; roots
// that do not exist are kept in cleaned form (they can never match a
// resolved path, which is the safe outcome). The filesystem root "/"
// is refused because it would turn the allow-list into allow-all.
func NewPolicy(roots []string) (*Policy, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one allowed root is required")
	}

	policy := &Policy{roots: make([]string, 0, len(roots))}
	for _, root := range roots {
		if !filepath.IsAbs(root) {
			return nil, fmt.Errorf("allowed root %q is not absolute", root)
		}
		cleaned := filepath.Clean(root)
		if cleaned == "/" {
			return nil, fmt.Errorf("allowed root %q would permit the entire filesystem", root)
		}
		if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
			cleaned = resolved
		}
		policy.roots = append(policy.roots, cleaned)
	}
	return policy, nil
}

// Roots returns a copy of the effective (resolved) roots.
func (p *Policy) Roots() []string {
	roots := make([]string, len(p.roots))
	copy(roots, p.roots)
	return roots
}

// Validate resolves raw and returns its canonical absolute form if it
// lies within one of the allowed roots. The parent directory must
// exist; the final component may not exist yet, since the provisioning
// script creates it. Missing parents, dangling symlinks and permission
// errors are rejections.
func (p *Policy) Validate(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotPermitted)
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return "", fmt.Errorf("%w: path contains NUL byte", ErrNotPermitted)
	}
	// The daemon's working directory means nothing to the caller.
	if !filepath.IsAbs(raw) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrNotPermitted, raw)
	}

	resolved, err := resolve(raw)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %q: %v", ErrNotPermitted, raw, err)
	}

	for _, root := range p.roots {
		if within(resolved, root) {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("%w: %q resolves to %q outside allowed roots", ErrNotPermitted, raw, resolved)
}

// resolve follows every symlink in path. Only the last component is
// allowed to be absent.
func resolve(path string) (string, error) {
	trimmed := strings.TrimRight(path, string(filepath.Separator))
	name := filepath.Base(trimmed)
	if trimmed == "" || name == "." || name == ".." {
		return filepath.EvalSymlinks(path)
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(trimmed))
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(parent, name)

	info, err := os.Lstat(candidate)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return candidate, nil
	case err != nil:
		return "", err
	case info.Mode()&fs.ModeSymlink != 0:
		return filepath.EvalSymlinks(candidate)
	}
	return candidate, nil
}

// within reports whether path equals root or lies below it.
func within(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
