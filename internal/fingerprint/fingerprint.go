// SPDX-License-Identifier: MPL-2.0

// Package fingerprint computes content digests used to decide whether a
// module's bytes changed since the last successful load.
package fingerprint

import (
	"errors"
	"fmt"
	"os"

	"github.com/opencontainers/go-digest"
)

// ErrEmptyPath is returned when ReadFile is called without a path.
var ErrEmptyPath = errors.New("fingerprint: empty path")

// Of returns the SHA-256 digest of data.
func Of(data []byte) digest.Digest {
	return digest.Canonical.FromBytes(data)
}

// ReadFile reads the file at path once and returns its digest together with
// the bytes that were hashed. Callers must load from the returned bytes, not
// re-read the file, so the digest always describes what was loaded.
func ReadFile(path string) (digest.Digest, []byte, error) {
	if path == "" {
		return "", nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("fingerprint: read %s: %w", path, err)
	}

	return Of(data), data, nil
}

// Equal reports whether a and b describe the same content. The zero digest
// never equals anything, including another zero digest.
func Equal(a, b digest.Digest) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b
}
