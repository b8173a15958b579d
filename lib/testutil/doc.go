// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for foreman packages.
package testutil
