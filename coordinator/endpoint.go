// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// socketPrefix and socketSuffix frame the digest in the socket file
// name: foreman-<8 hex chars>.sock. These are protocol constants —
// changing them strands running instances on the old name.
const (
	socketPrefix = "foreman-"
	socketSuffix = ".sock"
)

// digestLength is the number of hex characters of the path digest kept
// in the socket name. Eight hex characters (32 bits) keeps names short
// while making accidental collisions negligible for the handful of
// codebases a single user works on; the hello handshake catches the
// residual case (see ErrWrongCodebase).
const digestLength = 8

// maxSocketPathLength is the portable limit on a Unix socket path
// (sun_path is 108 bytes on Linux, 104 on the BSDs; use the smaller).
const maxSocketPathLength = 104

// endpointDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// codebase paths. Domain separation keeps these digests from colliding
// with any other BLAKE3 use of the same input. The bytes are the ASCII
// domain name zero-padded to 32, readable in hex dumps.
var endpointDomainKey = [32]byte{
	'f', 'o', 'r', 'e', 'm', 'a', 'n', '.', 'e', 'n', 'd', 'p', 'o', 'i', 'n', 't',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Endpoint identifies the leader socket for one codebase. It carries
// both the socket path (where to probe and claim) and the canonical
// codebase path (what the hello handshake verifies).
type Endpoint struct {
	// CodebasePath is the absolute, symlink-resolved codebase path.
	CodebasePath string

	// SocketPath is the Unix socket path derived from CodebasePath.
	// Identical for every instance and every restart against the same
	// codebase.
	SocketPath string
}

// ResolveEndpoint derives the endpoint for a codebase. The path is
// canonicalized (absolute, symlinks resolved) before hashing so that
// every instance reaches the same socket no matter how it spelled the
// path. runtimeDir may be empty, in which case DefaultRuntimeDir is
// used.
func ResolveEndpoint(codebasePath, runtimeDir string) (Endpoint, error) {
	absolute, err := filepath.Abs(codebasePath)
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolving codebase path %q: %w", codebasePath, err)
	}
	canonical, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return Endpoint{}, fmt.Errorf("canonicalizing codebase path %q: %w", absolute, err)
	}

	if runtimeDir == "" {
		runtimeDir = DefaultRuntimeDir()
	}

	socketPath := filepath.Join(runtimeDir, SocketName(canonical))
	if len(socketPath) > maxSocketPathLength {
		return Endpoint{}, fmt.Errorf("socket path %q exceeds the %d-byte limit; set a shorter runtime_dir", socketPath, maxSocketPathLength)
	}

	return Endpoint{
		CodebasePath: canonical,
		SocketPath:   socketPath,
	}, nil
}

// SocketName maps a canonical codebase path to its socket file name.
// Pure: same input always yields the same name, with no I/O. The
// digest is the first digestLength hex characters of the keyed BLAKE3
// hash of the path.
func SocketName(canonicalPath string) string {
	hasher, err := blake3.NewKeyed(endpointDomainKey[:])
	if err != nil {
		panic("coordinator: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(canonicalPath))
	digest := hasher.Sum(nil)
	return socketPrefix + hex.EncodeToString(digest)[:digestLength] + socketSuffix
}

// DefaultRuntimeDir returns the per-user socket directory:
// $XDG_RUNTIME_DIR/foreman when set, otherwise /tmp/foreman-<uid>.
// Both locations are on local filesystems that allow Unix sockets and
// are namespaced to the user, which is the trust boundary.
func DefaultRuntimeDir() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "foreman")
	}
	return fmt.Sprintf("/tmp/foreman-%d", os.Getuid())
}
