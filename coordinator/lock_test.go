// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"os"
	"testing"
	"time"

	"github.com/foreman-dev/foreman/lib/testutil"
)

func TestLockEndpointCreatesRuntimeDirAndLockFile(t *testing.T) {
	endpoint := testEndpoint(t)

	lock, err := lockEndpoint(endpoint)
	if err != nil {
		t.Fatalf("lockEndpoint: %v", err)
	}
	defer lock.unlock()

	if _, err := os.Stat(endpoint.SocketPath + lockSuffix); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

func TestLockEndpointIsExclusive(t *testing.T) {
	endpoint := testEndpoint(t)

	first, err := lockEndpoint(endpoint)
	if err != nil {
		t.Fatalf("lockEndpoint: %v", err)
	}

	// A second holder blocks until the first releases. flock is
	// per-descriptor, so two locks in one process still exclude each
	// other.
	acquired := make(chan *endpointLock, 1)
	go func() {
		second, err := lockEndpoint(endpoint)
		if err != nil {
			t.Errorf("second lockEndpoint: %v", err)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(100 * time.Millisecond):
	}

	first.unlock()
	second := testutil.RequireReceive(t, acquired, 5*time.Second, "second lock after release")
	second.unlock()
}
