// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ProbeOutcome classifies an election probe.
type ProbeOutcome int

const (
	// ProbeReachable means a live leader answered; the caller should
	// take the client role on the returned connection.
	ProbeReachable ProbeOutcome = iota

	// ProbeAbsent means nothing answers at the endpoint; the caller
	// should attempt to claim it.
	ProbeAbsent
)

// String returns the outcome name for logging.
func (o ProbeOutcome) String() string {
	switch o {
	case ProbeReachable:
		return "reachable"
	case ProbeAbsent:
		return "absent"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Probe attempts to reach a live leader at the endpoint within
// timeout.
//
// Outcomes:
//   - (conn, ProbeReachable, nil): a leader answered. The connection
//     has not yet been verified by the hello handshake.
//   - (nil, ProbeAbsent, nil): no socket file, connection refused, or
//     the connect attempt timed out. A refused connection means the
//     file outlived its process (the previous leader was killed before
//     it could unlink), so the stale file is removed here — this is
//     the only place with evidence of staleness. A timeout is treated
//     as absent without removing anything: the claim's atomic bind
//     arbitrates if a slow leader is in fact alive.
//   - (nil, 0, err): an environmental failure worth surfacing.
func Probe(ctx context.Context, endpoint Endpoint, timeout time.Duration) (net.Conn, ProbeOutcome, error) {
	conn, err := dialEndpoint(ctx, endpoint, timeout)
	if err == nil {
		return conn, ProbeReachable, nil
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return removeStale(ctx, endpoint, timeout)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return nil, ProbeAbsent, nil
	case errors.Is(err, context.DeadlineExceeded), isDialTimeout(err):
		return nil, ProbeAbsent, nil
	}
	return nil, 0, fmt.Errorf("probing endpoint %s: %w", endpoint.SocketPath, err)
}

// removeStale unlinks a socket file that refused a connection. The
// refusal was observed without the endpoint lock held, so by now
// another claimant may have removed the stale file and bound a live
// socket at the same path — unlinking on the old observation would
// delete the new leader's socket. Re-dial under the lock: binds only
// happen while holding it, so a refusal seen here cannot be overtaken
// by a concurrent claim, and the unlink is safe.
func removeStale(ctx context.Context, endpoint Endpoint, timeout time.Duration) (net.Conn, ProbeOutcome, error) {
	lock, err := lockEndpoint(endpoint)
	if err != nil {
		return nil, 0, err
	}
	defer lock.unlock()

	conn, err := dialEndpoint(ctx, endpoint, timeout)
	if err == nil {
		// A new leader claimed the endpoint between the two dials.
		return conn, ProbeReachable, nil
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		if removeErr := os.Remove(endpoint.SocketPath); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, 0, fmt.Errorf("removing stale socket %s: %w", endpoint.SocketPath, removeErr)
		}
		return nil, ProbeAbsent, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return nil, ProbeAbsent, nil
	case errors.Is(err, context.DeadlineExceeded), isDialTimeout(err):
		return nil, ProbeAbsent, nil
	}
	return nil, 0, fmt.Errorf("probing endpoint %s: %w", endpoint.SocketPath, err)
}

func dialEndpoint(ctx context.Context, endpoint Endpoint, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "unix", endpoint.SocketPath)
}

// isDialTimeout reports whether err is the dialer's own timeout (as
// opposed to the caller's context expiring).
func isDialTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
