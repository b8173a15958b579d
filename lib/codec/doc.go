// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes CBOR encoding configuration. All wire
// traffic between foreman instances goes through this package so that
// encoding options (deterministic output, string map keys) are set in
// exactly one place.
package codec
