// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockSuffix names the sidecar lock file next to each endpoint socket.
const lockSuffix = ".lock"

// endpointLock is an exclusive file lock serializing the two operations
// that may change what the socket path refers to: removing a stale
// socket file and binding a fresh one. A dial refused while holding the
// lock is conclusive evidence of staleness — no claimant can bind until
// the lock is released — so the subsequent unlink can never hit a live
// leader's freshly bound socket. Without it, a follower descheduled
// between observing the refusal and unlinking could delete a socket
// that another claimant bound in the meantime, seating two leaders.
//
// The lock file is never removed; flock state vanishes with the
// descriptor, so leftover files from crashed processes are inert.
type endpointLock struct {
	file *os.File
}

// lockEndpoint takes the exclusive lock for the endpoint, creating the
// runtime directory and lock file as needed. Blocks while another local
// process holds it; holders only ever dial, unlink, and bind under it,
// so the wait is bounded by a few syscalls.
func lockEndpoint(endpoint Endpoint) (*endpointLock, error) {
	if err := os.MkdirAll(filepath.Dir(endpoint.SocketPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating runtime directory: %w", err)
	}

	file, err := os.OpenFile(endpoint.SocketPath+lockSuffix, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening endpoint lock: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("locking endpoint %s: %w", endpoint.SocketPath, err)
	}
	return &endpointLock{file: file}, nil
}

// unlock releases the lock. Closing the descriptor drops the flock.
func (l *endpointLock) unlock() {
	l.file.Close()
}
