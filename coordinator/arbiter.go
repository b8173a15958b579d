// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/foreman-dev/foreman/lib/clock"
)

// Role is the instance's current position in the election state
// machine. Owned exclusively by the Coordinator; nothing else reads or
// writes it ad hoc.
type Role int

const (
	// RoleStarting means the instance is between elections: probing,
	// claiming, or backing off.
	RoleStarting Role = iota

	// RoleClient means the instance forwards requests to the current
	// leader over one persistent connection.
	RoleClient

	// RoleServer means the instance is the leader. Terminal: a server
	// never demotes itself while alive; the role ends with the
	// process, which implicitly releases the endpoint.
	RoleServer
)

// String returns the role name for logging.
func (r Role) String() string {
	switch r {
	case RoleStarting:
		return "starting"
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Coordinator runs the election state machine for one instance:
//
//	Starting ──probe reachable, hello ok──▶ Client
//	Starting ──probe absent, claim won────▶ Server (terminal)
//	Client   ──connection lost────────────▶ Starting
//
// Run drives the transitions; Call routes one request through
// whichever role is current (local dispatch as server, forwarding as
// client, bounded wait while starting).
type Coordinator struct {
	endpoint   Endpoint
	dispatcher Dispatcher
	config     Config
	logger     *slog.Logger
	clock      clock.Clock

	// mu protects role, client, settled, and roleSettled.
	mu     sync.Mutex
	role   Role
	client *ClientConn

	// roleSettled closes when the role leaves Starting; remade on
	// each transition back. Callers blocked in Call wait on it instead
	// of polling.
	roleSettled chan struct{}
	settled     bool
}

// New creates a coordinator for the endpoint. dispatcher is the local
// registry, used directly when this instance wins the election and
// reachable through the leader otherwise. A nil clk uses the real
// clock.
func New(endpoint Endpoint, dispatcher Dispatcher, config Config, logger *slog.Logger, clk clock.Clock) *Coordinator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Coordinator{
		endpoint:    endpoint,
		dispatcher:  dispatcher,
		config:      config,
		logger:      logger,
		clock:       clk,
		role:        RoleStarting,
		roleSettled: make(chan struct{}),
	}
}

// Role returns the current role.
func (c *Coordinator) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Run drives the state machine until ctx is cancelled or an election
// round exhausts its retry budget. Becoming the server is terminal:
// Run then blocks in the server's accept loop for the rest of the
// process's life. As a client, Run watches the leader connection and
// re-enters the election when it drops.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		listener, conn, err := c.elect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if listener != nil {
			server := NewServer(c.endpoint, listener, c.dispatcher, c.config, c.logger)
			c.transition(RoleServer, nil)
			return server.Serve(ctx)
		}

		client := NewClientConn(conn, c.config, c.logger)
		c.transition(RoleClient, client)
		c.logger.Info("following leader", "socket", c.endpoint.SocketPath)

		select {
		case <-ctx.Done():
			client.Close()
			return nil
		case <-client.Done():
			c.transition(RoleStarting, nil)
			c.logger.Info("leader lost, re-entering election")
		}
	}
}

// elect runs bounded probe/claim rounds and returns either a claimed
// listener (this instance won) or a hello-verified connection to the
// winner. Exhausting the budget returns ErrNoLeader; a codebase
// mismatch returns ErrWrongCodebase, which no amount of retrying can
// fix.
func (c *Coordinator) elect(ctx context.Context) (net.Listener, net.Conn, error) {
	for attempt := 1; attempt <= c.config.ElectionAttempts; attempt++ {
		if attempt > 1 {
			delay := computeBackoff(attempt-1, c.config.BackoffBase, c.config.BackoffMax, rand.Float64())
			c.logger.Debug("election backoff", "attempt", attempt, "delay", delay)
			select {
			case <-c.clock.After(delay):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		conn, outcome, err := Probe(ctx, c.endpoint, c.config.ProbeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			c.logger.Warn("probe failed", "error", err)
			continue
		}

		if outcome == ProbeReachable {
			if err := clientHello(conn, c.endpoint, c.config.HandshakeTimeout); err != nil {
				conn.Close()
				if errors.Is(err, ErrWrongCodebase) {
					return nil, nil, err
				}
				// The leader may have died between accept and hello.
				c.logger.Debug("hello failed, retrying election", "error", err)
				continue
			}
			return nil, conn, nil
		}

		listener, claimed, err := Claim(c.endpoint)
		if err != nil {
			return nil, nil, err
		}
		if claimed {
			return listener, nil, nil
		}
		// Lost the claim race; the next iteration probes the winner.
		c.logger.Debug("claim lost to concurrent claimant", "attempt", attempt)
	}
	return nil, nil, fmt.Errorf("election failed after %d attempts: %w", c.config.ElectionAttempts, ErrNoLeader)
}

// Call routes one opaque request payload: local dispatch when this
// instance is the leader, forwarding when it is a client. While an
// election is in progress, Call waits for a role — bounded by ctx and
// the request timeout — rather than failing immediately, so a takeover
// window does not turn every upstream request into an error.
func (c *Coordinator) Call(ctx context.Context, payload []byte) ([]byte, error) {
	for {
		c.mu.Lock()
		role := c.role
		client := c.client
		settled := c.roleSettled
		c.mu.Unlock()

		switch role {
		case RoleServer:
			return c.dispatchLocal(ctx, payload)
		case RoleClient:
			return client.Call(ctx, payload)
		}

		select {
		case <-settled:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.config.RequestTimeout):
			return nil, fmt.Errorf("election unresolved after %v: %w", c.config.RequestTimeout, ErrNoLeader)
		}
	}
}

// dispatchLocal serves a request on the leader's own upstream path,
// without touching the socket. Registry failures are wrapped as
// DispatchError for symmetry with the forwarded path.
func (c *Coordinator) dispatchLocal(ctx context.Context, payload []byte) ([]byte, error) {
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}
	result, err := c.dispatcher.Dispatch(ctx, payload)
	if err != nil {
		return nil, &DispatchError{Message: err.Error()}
	}
	return result, nil
}

// transition moves the state machine to role. The settled channel
// closes when leaving Starting and is remade when re-entering it.
func (c *Coordinator) transition(role Role, client *ClientConn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.role = role
	c.client = client

	if role == RoleStarting {
		if c.settled {
			c.roleSettled = make(chan struct{})
			c.settled = false
		}
		return
	}
	if !c.settled {
		close(c.roleSettled)
		c.settled = true
	}
}

// computeBackoff returns the delay before retry number attempt
// (1-based count of completed attempts): exponential from base, capped
// at max, with ±50% jitter so instances that lost the same leader do
// not re-probe in lockstep. unit must be in [0, 1).
func computeBackoff(attempt int, base, max time.Duration, unit float64) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jittered := time.Duration(float64(delay) * (0.5 + unit))
	if jittered > max {
		jittered = max
	}
	return jittered
}
