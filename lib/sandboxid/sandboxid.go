// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandboxid

import (
	"strings"
)

// MaxLength is the maximum length in bytes of a canonical identifier.
const MaxLength = 64

// Sanitize returns the canonical form of raw, or "" when nothing
// usable remains. The transform lower-cases raw, collapses every
// maximal run of characters outside [a-z0-9-] into a single hyphen,
// trims leading and trailing hyphens, and truncates to MaxLength.
// Sanitize is pure and idempotent: Sanitize(Sanitize(s)) ==
// Sanitize(s) for every s.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	lowered := strings.ToLower(raw)

	var builder strings.Builder
	builder.Grow(len(lowered))
	inRun := false
	for _, r := range lowered {
		if isAllowed(r) {
			builder.WriteRune(r)
			inRun = false
			continue
		}
		if !inRun {
			builder.WriteByte('-')
			inRun = true
		}
	}

	canonical := strings.Trim(builder.String(), "-")
	if len(canonical) > MaxLength {
		// Every byte is ASCII at this point, so slicing cannot split
		// a rune. Trim again: the cut may land just after a hyphen.
		canonical = strings.TrimRight(canonical[:MaxLength], "-")
	}
	return canonical
}

// Valid reports whether id is already in canonical form.
func Valid(id string) bool {
	if id == "" || len(id) > MaxLength {
		return false
	}
	if id[0] == '-' || id[len(id)-1] == '-' {
		return false
	}
	for _, r := range id {
		if !isAllowed(r) {
			return false
		}
	}
	return true
}

func isAllowed(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
}
