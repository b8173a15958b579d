// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/foreman-dev/foreman/coordinator"
)

// stubCaller replies per payload: registered payloads return their
// canned result or error, everything else echoes.
type stubCaller struct {
	results map[string][]byte
	errors  map[string]error
	calls   []string
}

func (s *stubCaller) Call(ctx context.Context, payload []byte) ([]byte, error) {
	s.calls = append(s.calls, string(payload))
	if err, ok := s.errors[string(payload)]; ok {
		return nil, err
	}
	if result, ok := s.results[string(payload)]; ok {
		return result, nil
	}
	return payload, nil
}

func runFrontend(t *testing.T, caller caller, input string) []string {
	t.Helper()
	var output strings.Builder
	f := &frontend{
		caller: caller,
		input:  strings.NewReader(input),
		output: &output,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	if err := f.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimRight(output.String(), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

func TestFrontendPassesResponsesThrough(t *testing.T) {
	stub := &stubCaller{
		results: map[string][]byte{
			`{"action":"ping"}`: []byte(`{"ok":true,"data":{"pong":true}}`),
		},
	}

	lines := runFrontend(t, stub, `{"action":"ping"}`+"\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0] != `{"ok":true,"data":{"pong":true}}` {
		t.Errorf("reply = %s", lines[0])
	}
}

func TestFrontendOneReplyPerLineInOrder(t *testing.T) {
	stub := &stubCaller{}
	input := `{"n":1}` + "\n" + `{"n":2}` + "\n" + `{"n":3}` + "\n"

	lines := runFrontend(t, stub, input)
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	for i, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if lines[i] != want {
			t.Errorf("line %d = %s, want %s", i, lines[i], want)
		}
	}
}

func TestFrontendSkipsBlankLines(t *testing.T) {
	stub := &stubCaller{}
	lines := runFrontend(t, stub, "\n  \n"+`{"n":1}`+"\n\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if len(stub.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(stub.calls))
	}
}

func TestFrontendDomainErrorPassesMessageThrough(t *testing.T) {
	stub := &stubCaller{
		errors: map[string]error{
			`{"action":"task.status","id":"t9"}`: &coordinator.DispatchError{Message: `task "t9" not found`},
		},
	}

	lines := runFrontend(t, stub, `{"action":"task.status","id":"t9"}`+"\n")
	var reply errorReply
	if err := json.Unmarshal([]byte(lines[0]), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.OK {
		t.Error("domain error reply marked ok")
	}
	if reply.Error != `task "t9" not found` {
		t.Errorf("Error = %q", reply.Error)
	}
	if reply.Retryable {
		t.Error("domain error marked retryable")
	}
}

func TestFrontendLeaderLossIsRetryable(t *testing.T) {
	stub := &stubCaller{
		errors: map[string]error{
			`{"action":"ping"}`: fmt.Errorf("forwarding: %w", coordinator.ErrLeaderLost),
		},
	}

	lines := runFrontend(t, stub, `{"action":"ping"}`+"\n")
	var reply errorReply
	if err := json.Unmarshal([]byte(lines[0]), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.OK || !reply.Retryable {
		t.Errorf("reply = %+v, want retryable error", reply)
	}
}

func TestFrontendUnclassifiedErrorIsNotRetryable(t *testing.T) {
	stub := &stubCaller{
		errors: map[string]error{
			`{"action":"ping"}`: errors.New("socket exploded"),
		},
	}

	lines := runFrontend(t, stub, `{"action":"ping"}`+"\n")
	var reply errorReply
	if err := json.Unmarshal([]byte(lines[0]), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.Retryable {
		t.Error("unclassified error marked retryable")
	}
	if !strings.Contains(reply.Error, "socket exploded") {
		t.Errorf("Error = %q", reply.Error)
	}
}

func TestFrontendEOFEndsRunCleanly(t *testing.T) {
	if lines := runFrontend(t, &stubCaller{}, ""); lines != nil {
		t.Errorf("output on empty input: %v", lines)
	}
}
