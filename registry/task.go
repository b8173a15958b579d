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

// TaskStatus is a task's position in its lifecycle.
type TaskStatus string

const (
	// TaskPending means registered but not picked up.
	TaskPending TaskStatus = "pending"
	// TaskRunning means a worker is on it.
	TaskRunning TaskStatus = "running"
	// TaskDone is terminal success.
	TaskDone TaskStatus = "done"
	// TaskFailed is terminal failure.
	TaskFailed TaskStatus = "failed"
)

// valid reports whether s is a known status.
func (s TaskStatus) valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskDone, TaskFailed:
		return true
	}
	return false
}

// terminal reports whether s admits no further transitions.
func (s TaskStatus) terminal() bool {
	return s == TaskDone || s == TaskFailed
}

// Task is one registered unit of work.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Owner     string     `json:"owner,omitempty"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r *Registry) handleTaskRegister(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid task.register request: %w", err)
	}
	if params.Title == "" {
		return nil, fmt.Errorf("missing required field: title")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := params.ID
	if id == "" {
		// Generated IDs share a namespace with explicit ones: keep
		// advancing past any id a caller already took.
		for {
			r.nextTaskID++
			id = fmt.Sprintf("t%d", r.nextTaskID)
			if _, exists := r.tasks[id]; !exists {
				break
			}
		}
	} else if _, exists := r.tasks[id]; exists {
		return nil, fmt.Errorf("task %q already registered", id)
	}

	now := r.clock.Now()
	task := &Task{
		ID:        id,
		Title:     params.Title,
		Owner:     params.Owner,
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[id] = task

	r.logger.Info("task registered", "task", id, "owner", params.Owner)
	return *task, nil
}

func (r *Registry) handleTaskUpdate(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		ID     string     `json:"id"`
		Status TaskStatus `json:"status"`
		Owner  string     `json:"owner"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid task.update request: %w", err)
	}
	if params.ID == "" {
		return nil, fmt.Errorf("missing required field: id")
	}
	if !params.Status.valid() {
		return nil, fmt.Errorf("unknown status %q", params.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[params.ID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", params.ID)
	}
	if task.Status.terminal() {
		return nil, fmt.Errorf("task %q is already %s", params.ID, task.Status)
	}

	task.Status = params.Status
	if params.Owner != "" {
		task.Owner = params.Owner
	}
	task.UpdatedAt = r.clock.Now()

	r.logger.Info("task updated", "task", task.ID, "status", task.Status)
	return *task, nil
}

func (r *Registry) handleTaskStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid task.status request: %w", err)
	}
	if params.ID == "" {
		return nil, fmt.Errorf("missing required field: id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[params.ID]
	if !exists {
		return nil, fmt.Errorf("task %q not found", params.ID)
	}
	return *task, nil
}

func (r *Registry) handleTaskList(ctx context.Context, raw json.RawMessage) (any, error) {
	var params struct {
		Status TaskStatus `json:"status"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid task.list request: %w", err)
	}
	if params.Status != "" && !params.Status.valid() {
		return nil, fmt.Errorf("unknown status %q", params.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if params.Status != "" && task.Status != params.Status {
			continue
		}
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}
