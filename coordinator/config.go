// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the coordination tunables. Loaded from a single YAML
// file when one is given; there is no automatic discovery of config
// files, so behavior is deterministic and auditable. All fields have
// working defaults — a config file is optional.
type Config struct {
	// RuntimeDir is the directory holding endpoint sockets. Empty
	// means the per-user default (see DefaultRuntimeDir).
	RuntimeDir string

	// ProbeTimeout bounds the election probe's connect attempt. Kept
	// short: the probe targets a local socket, so anything beyond a
	// few hundred milliseconds means the leader is not answering.
	ProbeTimeout time.Duration

	// HandshakeTimeout bounds the hello exchange after a successful
	// probe (write hello, read verdict).
	HandshakeTimeout time.Duration

	// RequestTimeout bounds a client's wait for the response to one
	// forwarded request. Sized to the registry's expected latency,
	// not the transport's.
	RequestTimeout time.Duration

	// WriteTimeout bounds individual frame writes on both roles.
	WriteTimeout time.Duration

	// ElectionAttempts caps one election round: probe/claim cycles
	// before giving up and surfacing ErrNoLeader to callers.
	ElectionAttempts int

	// BackoffBase is the first retry delay within an election round.
	// Subsequent delays double, with jitter, up to BackoffMax.
	BackoffBase time.Duration

	// BackoffMax caps the per-attempt retry delay.
	BackoffMax time.Duration

	// CompressionThreshold is the payload size in bytes above which
	// frames are zstd-compressed. Zero or negative disables
	// compression.
	CompressionThreshold int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:         500 * time.Millisecond,
		HandshakeTimeout:     5 * time.Second,
		RequestTimeout:       30 * time.Second,
		WriteTimeout:         10 * time.Second,
		ElectionAttempts:     5,
		BackoffBase:          50 * time.Millisecond,
		BackoffMax:           time.Second,
		CompressionThreshold: 64 * 1024,
	}
}

// duration wraps time.Duration so config files can write "500ms" or
// "2s" instead of nanosecond integers. yaml.v3 has no native duration
// support.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar like \"500ms\", got %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig is the YAML shape of Config. Pointer fields distinguish
// "absent, keep the default" from an explicit zero.
type fileConfig struct {
	RuntimeDir           *string   `yaml:"runtime_dir"`
	ProbeTimeout         *duration `yaml:"probe_timeout"`
	HandshakeTimeout     *duration `yaml:"handshake_timeout"`
	RequestTimeout       *duration `yaml:"request_timeout"`
	WriteTimeout         *duration `yaml:"write_timeout"`
	ElectionAttempts     *int      `yaml:"election_attempts"`
	BackoffBase          *duration `yaml:"backoff_base"`
	BackoffMax           *duration `yaml:"backoff_max"`
	CompressionThreshold *int      `yaml:"compression_threshold"`
}

// LoadConfig reads a YAML config file and applies it over the
// defaults. Unknown keys are rejected so typos fail loudly instead of
// silently running with defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var file fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	config := DefaultConfig()
	if file.RuntimeDir != nil {
		config.RuntimeDir = *file.RuntimeDir
	}
	if file.ProbeTimeout != nil {
		config.ProbeTimeout = time.Duration(*file.ProbeTimeout)
	}
	if file.HandshakeTimeout != nil {
		config.HandshakeTimeout = time.Duration(*file.HandshakeTimeout)
	}
	if file.RequestTimeout != nil {
		config.RequestTimeout = time.Duration(*file.RequestTimeout)
	}
	if file.WriteTimeout != nil {
		config.WriteTimeout = time.Duration(*file.WriteTimeout)
	}
	if file.ElectionAttempts != nil {
		config.ElectionAttempts = *file.ElectionAttempts
	}
	if file.BackoffBase != nil {
		config.BackoffBase = time.Duration(*file.BackoffBase)
	}
	if file.BackoffMax != nil {
		config.BackoffMax = time.Duration(*file.BackoffMax)
	}
	if file.CompressionThreshold != nil {
		config.CompressionThreshold = *file.CompressionThreshold
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return config, nil
}

// Validate checks that all tunables are in usable ranges.
func (c Config) Validate() error {
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %v", c.ProbeTimeout)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive, got %v", c.HandshakeTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout)
	}
	if c.ElectionAttempts < 1 {
		return fmt.Errorf("election_attempts must be at least 1, got %d", c.ElectionAttempts)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive, got %v", c.BackoffBase)
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("backoff_max (%v) must be at least backoff_base (%v)", c.BackoffMax, c.BackoffBase)
	}
	return nil
}
