// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"fmt"
	"net"
	"time"

	"github.com/foreman-dev/foreman/lib/codec"
)

// The hello exchange runs once per connection, before any request.
// The socket name is only an 8-hex-character digest of the codebase
// path, so address equality alone does not prove both sides mean the
// same codebase. The client states its canonical path outright and the
// server compares it against its own; a mismatch is rejected before
// the connection can carry a single request.

// helloFrame is the client's opening message.
type helloFrame struct {
	Codebase string `cbor:"codebase"`
}

// helloVerdict is the server's answer.
type helloVerdict struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
}

// clientHello identifies this instance's codebase to the server and
// waits for the verdict. Returns ErrWrongCodebase when the server
// serves a different path.
func clientHello(conn net.Conn, endpoint Endpoint, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting handshake deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	if err := codec.NewEncoder(conn).Encode(helloFrame{Codebase: endpoint.CodebasePath}); err != nil {
		return fmt.Errorf("writing hello: %w", err)
	}

	var verdict helloVerdict
	if err := codec.NewDecoder(conn).Decode(&verdict); err != nil {
		return fmt.Errorf("reading hello verdict: %w", err)
	}
	if !verdict.OK {
		return fmt.Errorf("%w: %s", ErrWrongCodebase, verdict.Error)
	}
	return nil
}

// serverHello reads the client's hello and verifies the codebase path.
// On mismatch it writes a rejection verdict and returns an error; the
// caller closes the connection.
func serverHello(conn net.Conn, endpoint Endpoint, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting handshake deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	var hello helloFrame
	if err := codec.NewDecoder(conn).Decode(&hello); err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}

	if hello.Codebase != endpoint.CodebasePath {
		message := fmt.Sprintf("this endpoint serves %s, not %s", endpoint.CodebasePath, hello.Codebase)
		_ = codec.NewEncoder(conn).Encode(helloVerdict{OK: false, Error: message})
		return fmt.Errorf("%w: client wants %s", ErrWrongCodebase, hello.Codebase)
	}

	if err := codec.NewEncoder(conn).Encode(helloVerdict{OK: true}); err != nil {
		return fmt.Errorf("writing hello verdict: %w", err)
	}
	return nil
}
