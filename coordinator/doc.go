// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator elects a single leader among the foreman
// instances working against the same codebase and routes requests to
// it.
//
// Every instance derives the same Unix socket path from the codebase's
// canonical location, then races to bind it. The winner becomes the
// server: it owns the in-memory registry and answers requests from all
// other instances. The losers become clients: they hold one persistent
// connection to the leader and forward every request over it. When the
// leader dies, its socket becomes claimable again; each surviving
// client re-runs the election and exactly one of them takes over.
//
// The package provides building blocks (endpoint resolution, probe,
// claim, server, client) plus the Coordinator, which composes them
// into the role state machine:
//
//	Start ──probe reachable──▶ Client ──connection lost──▶ Start
//	Start ──claim won────────▶ Server (terminal for the process)
//
// Leadership has no persisted record. Owning the endpoint means having
// the socket bound; a crash releases it implicitly, which is exactly
// how takeover is detected. Registry state dies with the leader, and
// callers decide whether to resubmit in-flight requests after a
// takeover.
package coordinator
