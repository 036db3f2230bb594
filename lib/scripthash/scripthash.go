// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scripthash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// HashFile computes the BLAKE3 digest of the file at path.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FormatDigest returns the hex encoding of digest.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// CheckExecutable returns a precise error when path is not a regular
// file with at least one execute bit set.
func CheckExecutable(path string) error {
	if path == "" {
		return fmt.Errorf("script path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("script at %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("script at %q is not a regular file (mode %s)", path, info.Mode())
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("script at %q is not executable (mode %s)", path, info.Mode())
	}
	return nil
}
