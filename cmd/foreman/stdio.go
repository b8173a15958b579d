// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/foreman-dev/foreman/coordinator"
)

// maxLineSize bounds one upstream request line. Matches the transport
// layer's appetite: a request bigger than this has no business on a
// line-oriented protocol.
const maxLineSize = 8 * 1024 * 1024

// caller routes one opaque request payload. Satisfied by
// *coordinator.Coordinator; narrowed to an interface so the stdio loop
// is testable without running elections.
type caller interface {
	Call(ctx context.Context, payload []byte) ([]byte, error)
}

// frontend is the upstream-facing request loop: one JSON object per
// line in on input, one JSON object per line out on output. Payload
// semantics stay opaque here — only transport-level failures are
// translated into error replies.
type frontend struct {
	caller caller
	input  io.Reader
	output io.Writer
	logger *slog.Logger
}

// errorReply is the frontend's translation of a routing failure.
// Retryable marks leader-unavailability: the caller may resubmit once
// a new leader is elected. Requests that were in flight when the
// leader died are never replayed automatically — the dead leader may
// have applied them partially, so resubmission is the caller's call.
type errorReply struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// run processes requests until input reaches EOF or ctx is cancelled.
// Requests are handled one at a time in arrival order, matching the
// line protocol's implicit ordering contract.
func (f *frontend) run(ctx context.Context) error {
	scanner := bufio.NewScanner(f.input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	writer := bufio.NewWriter(f.output)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer across lines; the payload
		// outlives this iteration once handed to the coordinator.
		payload := append([]byte(nil), line...)

		reply := f.process(ctx, payload)
		if _, err := writer.Write(reply); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading upstream requests: %w", err)
	}
	return nil
}

// process routes one payload and renders the reply line. Domain errors
// pass through with the registry's message; transport errors become
// retryable replies.
func (f *frontend) process(ctx context.Context, payload []byte) []byte {
	result, err := f.caller.Call(ctx, payload)
	if err == nil {
		return result
	}

	var dispatchErr *coordinator.DispatchError
	switch {
	case errors.As(err, &dispatchErr):
		return encodeReply(errorReply{Error: dispatchErr.Message})
	case coordinator.IsRetryable(err):
		f.logger.Warn("leader unavailable for request", "error", err)
		return encodeReply(errorReply{Error: "leader unavailable, retry", Retryable: true})
	default:
		f.logger.Error("request failed", "error", err)
		return encodeReply(errorReply{Error: err.Error()})
	}
}

// encodeReply marshals an error reply. errorReply contains only
// strings and bools, so marshaling cannot fail.
func encodeReply(reply errorReply) []byte {
	encoded, err := json.Marshal(reply)
	if err != nil {
		panic("frontend: marshaling error reply failed: " + err.Error())
	}
	return encoded
}
