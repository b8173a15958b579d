// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Claim attempts to take ownership of the endpoint by binding its
// socket. This is the election's tie-break: bind(2) on a Unix socket
// is atomic and fails with EADDRINUSE if the path already exists, so
// exactly one concurrent claimant can win.
//
// Returns (listener, true, nil) when the claim succeeds, (nil, false,
// nil) when another instance holds or just claimed the endpoint — the
// caller should re-probe against the winner — and a non-nil error for
// environmental failures (bad permissions, unusable runtime dir).
//
// Claim never removes an existing socket file: a live leader's socket
// must not be unlinked out from under it. Stale files are removed by
// Probe, which is the only place with evidence of staleness (a refused
// connection). The bind happens under the endpoint lock, so it cannot
// interleave with a concurrent prober's stale-file removal.
func Claim(endpoint Endpoint) (net.Listener, bool, error) {
	lock, err := lockEndpoint(endpoint)
	if err != nil {
		return nil, false, err
	}
	defer lock.unlock()

	listener, err := net.Listen("unix", endpoint.SocketPath)
	if err == nil {
		return listener, true, nil
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("claiming endpoint %s: %w", endpoint.SocketPath, err)
}
