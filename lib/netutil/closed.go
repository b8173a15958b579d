// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small networking helpers shared by the
// coordinator's server and client roles.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. These occur during ordinary teardown when one side disconnects
// and the other side's in-flight read or write fails as a result.
//
// A leader that exits abruptly produces ECONNRESET and EPIPE on its
// clients instead of EOF. All four are expected and should not be
// logged as errors — connection loss is an anticipated failure mode
// that triggers re-election, not a defect.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
