// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"errors"
	"fmt"
)

// ErrLeaderLost indicates that the connection to the current leader
// failed while a request was in flight or pending. The request was not
// silently retried: the leader's in-memory state is gone and the
// request may have had partial effects there, so the caller decides
// whether to resubmit once a new leader is elected.
var ErrLeaderLost = errors.New("leader connection lost")

// ErrNoLeader indicates that no leader could be reached or elected
// within the configured retry budget. Retryable: a later call may
// succeed once some instance claims the endpoint.
var ErrNoLeader = errors.New("no leader available")

// ErrWrongCodebase indicates that the instance answering at the
// derived socket path serves a different codebase. This is the
// truncated-digest collision case: two distinct paths hashed to the
// same endpoint name. Not retryable.
var ErrWrongCodebase = errors.New("endpoint serves a different codebase")

// DispatchError is a failure reported by the registry itself, passed
// through from the leader verbatim. It is a domain-level error, not a
// transport failure: the connection remains usable and the request was
// fully processed.
type DispatchError struct {
	Message string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed: %s", e.Message)
}

// IsRetryable reports whether err is a transport-level failure that a
// caller may retry once a leader is available again. Domain-level
// dispatch errors and codebase mismatches are not retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLeaderLost) || errors.Is(err, ErrNoLeader)
}
