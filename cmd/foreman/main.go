// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Foreman coordinates the instances of a development tool working
// against one codebase so that exactly one of them holds the task
// registry in memory while the rest transparently forward to it.
//
// Each instance reads JSON requests line by line on stdin and writes
// one JSON response line per request on stdout. Whether the response
// was computed locally (this instance is the leader) or forwarded over
// the leader's Unix socket is invisible to the upstream protocol.
// Logs go to stderr; stdout belongs to the protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/foreman-dev/foreman/coordinator"
	"github.com/foreman-dev/foreman/registry"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var codebasePath string
	var configPath string
	var runtimeDir string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("foreman", pflag.ContinueOnError)
	flagSet.StringVar(&codebasePath, "codebase", ".", "codebase directory to coordinate for")
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $FOREMAN_CONFIG if set)")
	flagSet.StringVar(&runtimeDir, "runtime-dir", "", "directory for endpoint sockets (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("foreman %s\n", version)
		return nil
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if configPath == "" {
		configPath = os.Getenv("FOREMAN_CONFIG")
	}
	config := coordinator.DefaultConfig()
	if configPath != "" {
		config, err = coordinator.LoadConfig(configPath)
		if err != nil {
			return err
		}
	}
	if runtimeDir != "" {
		config.RuntimeDir = runtimeDir
	}

	endpoint, err := coordinator.ResolveEndpoint(codebasePath, config.RuntimeDir)
	if err != nil {
		return err
	}

	logger.Info("starting foreman",
		"version", version,
		"codebase", endpoint.CodebasePath,
		"socket", endpoint.SocketPath,
	)

	reg := registry.New(logger.With("component", "registry"), nil)
	coord := coordinator.New(endpoint, reg, config, logger.With("component", "coordinator"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coordDone := make(chan error, 1)
	go func() {
		coordDone <- coord.Run(ctx)
	}()

	front := &frontend{
		caller: coord,
		input:  os.Stdin,
		output: os.Stdout,
		logger: logger.With("component", "frontend"),
	}
	frontDone := make(chan error, 1)
	go func() {
		frontDone <- front.run(ctx)
	}()

	select {
	case err := <-coordDone:
		// Coordination ended (retry budget exhausted or fatal
		// mismatch); the stdin loop has nothing left to route to.
		cancel()
		return err
	case err := <-frontDone:
		// Upstream closed stdin. Cancel coordination and wait for it
		// to release the endpoint before exiting.
		cancel()
		<-coordDone
		return err
	}
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
