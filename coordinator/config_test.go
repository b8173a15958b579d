// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foreman.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	path := writeConfigFile(t, `
runtime_dir: /run/user/1000/foreman
probe_timeout: 250ms
election_attempts: 3
compression_threshold: 4096
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.RuntimeDir != "/run/user/1000/foreman" {
		t.Errorf("RuntimeDir = %q", config.RuntimeDir)
	}
	if config.ProbeTimeout != 250*time.Millisecond {
		t.Errorf("ProbeTimeout = %v, want 250ms", config.ProbeTimeout)
	}
	if config.ElectionAttempts != 3 {
		t.Errorf("ElectionAttempts = %d, want 3", config.ElectionAttempts)
	}
	if config.CompressionThreshold != 4096 {
		t.Errorf("CompressionThreshold = %d, want 4096", config.CompressionThreshold)
	}

	// Untouched fields keep their defaults.
	defaults := DefaultConfig()
	if config.RequestTimeout != defaults.RequestTimeout {
		t.Errorf("RequestTimeout = %v, want default %v", config.RequestTimeout, defaults.RequestTimeout)
	}
	if config.BackoffBase != defaults.BackoffBase {
		t.Errorf("BackoffBase = %v, want default %v", config.BackoffBase, defaults.BackoffBase)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, "probe_timeoutt: 250ms\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}

func TestLoadConfigRejectsMalformedDuration(t *testing.T) {
	path := writeConfigFile(t, "probe_timeout: fast\n")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
	if !strings.Contains(err.Error(), "fast") {
		t.Errorf("error %q does not name the bad value", err)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"zero probe timeout", "probe_timeout: 0s\n"},
		{"zero attempts", "election_attempts: 0\n"},
		{"backoff max below base", "backoff_base: 1s\nbackoff_max: 100ms\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.contents)
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
