// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Worker is one announced instance. The directory is advisory: it
// tells operators who is attached to this codebase right now. Entries
// vanish with the leader and reappear as workers re-announce against
// its successor.
type Worker struct {
	Name        string    `json:"name"`
	PID         int       `json:"pid"`
	AnnouncedAt time.Time `json:"announced_at"`
}

func (r *Registry) handleWorkerAnnounce(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Name string `json:"name"`
		PID  int    `json:"pid"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid worker.announce request: %w", err)
	}
	if params.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-announcing refreshes the timestamp. Expected after takeover.
	worker := &Worker{
		Name:        params.Name,
		PID:         params.PID,
		AnnouncedAt: r.clock.Now(),
	}
	r.workers[params.Name] = worker

	r.logger.Info("worker announced", "worker", params.Name, "pid", params.PID)
	return *worker, nil
}

func (r *Registry) handleWorkerList(ctx context.Context, raw json.RawMessage) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workers := make([]Worker, 0, len(r.workers))
	for _, worker := range r.workers {
		workers = append(workers, *worker)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].Name < workers[j].Name
	})
	return workers, nil
}
