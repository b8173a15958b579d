// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foreman-dev/foreman/lib/clock"
)

// ActionFunc processes one request for a specific action. The raw
// parameter is the full JSON request (including the "action" field);
// handlers decode their action-specific fields from it.
//
// Return a value to include in the success response, or an error for a
// failure response. A nil value yields {"ok": true} with no data.
type ActionFunc func(ctx context.Context, raw json.RawMessage) (any, error)

// response is the envelope for successful dispatches. Failures never
// reach this type: they travel as Go errors and become protocol error
// responses in the transport layer.
type response struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// Registry is the in-memory task table and worker directory. New
// registers the built-in actions; additional ones can be added with
// Handle before the first Dispatch.
type Registry struct {
	logger   *slog.Logger
	clock    clock.Clock
	handlers map[string]ActionFunc

	// mu protects tasks, workers, and nextTaskID.
	mu         sync.Mutex
	tasks      map[string]*Task
	workers    map[string]*Worker
	nextTaskID uint64
}

// New creates a registry with the built-in actions registered. A nil
// clk uses the real clock.
func New(logger *slog.Logger, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	r := &Registry{
		logger:   logger,
		clock:    clk,
		handlers: make(map[string]ActionFunc),
		tasks:    make(map[string]*Task),
		workers:  make(map[string]*Worker),
	}

	r.Handle("ping", r.handlePing)
	r.Handle("task.register", r.handleTaskRegister)
	r.Handle("task.update", r.handleTaskUpdate)
	r.Handle("task.status", r.handleTaskStatus)
	r.Handle("task.list", r.handleTaskList)
	r.Handle("worker.announce", r.handleWorkerAnnounce)
	r.Handle("worker.list", r.handleWorkerList)

	return r
}

// Handle registers a handler for the given action name. Panics if the
// action is already registered.
func (r *Registry) Handle(action string, handler ActionFunc) {
	if _, exists := r.handlers[action]; exists {
		panic(fmt.Sprintf("registry: duplicate handler for action %q", action))
	}
	r.handlers[action] = handler
}

// Dispatch routes one raw JSON request to its action handler and
// returns the encoded success envelope. Errors (malformed request,
// unknown action, handler failure) are returned as Go errors for the
// transport layer to surface as error responses.
func (r *Registry) Dispatch(ctx context.Context, payload []byte) ([]byte, error) {
	var header struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if header.Action == "" {
		return nil, fmt.Errorf("missing required field: action")
	}

	handler, exists := r.handlers[header.Action]
	if !exists {
		return nil, fmt.Errorf("unknown action %q", header.Action)
	}

	result, err := handler(ctx, payload)
	if err != nil {
		r.logger.Debug("action failed", "action", header.Action, "error", err)
		return nil, err
	}

	encoded, err := json.Marshal(response{OK: true, Data: result})
	if err != nil {
		return nil, fmt.Errorf("encoding response for %q: %w", header.Action, err)
	}
	return encoded, nil
}

// handlePing answers liveness checks without touching any state.
func (r *Registry) handlePing(ctx context.Context, raw json.RawMessage) (any, error) {
	return map[string]bool{"pong": true}, nil
}
