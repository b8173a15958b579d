// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the leader's in-memory state: the task table
// and the worker directory for one codebase. It is the domain
// collaborator behind the coordinator — the coordinator routes opaque
// payloads to it without interpreting them.
//
// Requests are JSON objects with an "action" field routing to a
// registered handler, mirroring the socket protocol's action dispatch.
// All state lives in memory and dies with the leader process; after a
// takeover the new leader starts empty and workers re-announce.
//
// Registry is safe for concurrent dispatch: the coordinator's server
// runs one receive loop per connection with no cross-connection
// serialization.
package registry
