// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/foreman-dev/foreman/lib/codec"
	"github.com/foreman-dev/foreman/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testConfig returns tunables scaled for tests: everything local and
// fast, retries cheap.
func testConfig() Config {
	config := DefaultConfig()
	config.ProbeTimeout = 250 * time.Millisecond
	config.HandshakeTimeout = 2 * time.Second
	config.RequestTimeout = 2 * time.Second
	config.WriteTimeout = 2 * time.Second
	config.BackoffBase = time.Millisecond
	config.BackoffMax = 10 * time.Millisecond
	return config
}

// testEndpoint creates a throwaway codebase directory and resolves its
// endpoint inside a short-path socket directory.
func testEndpoint(t *testing.T) Endpoint {
	t.Helper()
	dir := testutil.SocketDir(t)
	codebase := filepath.Join(dir, "repo")
	if err := os.Mkdir(codebase, 0o755); err != nil {
		t.Fatalf("creating codebase dir: %v", err)
	}
	endpoint, err := ResolveEndpoint(codebase, dir)
	if err != nil {
		t.Fatalf("ResolveEndpoint: %v", err)
	}
	return endpoint
}

// echoDispatcher returns the request payload unchanged.
func echoDispatcher() Dispatcher {
	return DispatchFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})
}

// startServer claims the endpoint and serves it until the test ends.
// Fails the test if the endpoint is already claimed.
func startServer(t *testing.T, endpoint Endpoint, dispatcher Dispatcher, config Config) context.CancelFunc {
	t.Helper()

	listener, claimed, err := Claim(endpoint)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Fatalf("endpoint %s already claimed", endpoint.SocketPath)
	}

	server := NewServer(endpoint, listener, dispatcher, config, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "server shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return cancel
}

// dialLeader probes the endpoint, completes the hello, and wraps the
// connection in a ClientConn.
func dialLeader(t *testing.T, endpoint Endpoint, config Config) *ClientConn {
	t.Helper()
	conn, outcome, err := Probe(context.Background(), endpoint, config.ProbeTimeout)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if outcome != ProbeReachable {
		t.Fatalf("probe outcome = %v, want reachable", outcome)
	}
	if err := clientHello(conn, endpoint, config.HandshakeTimeout); err != nil {
		t.Fatalf("clientHello: %v", err)
	}
	return NewClientConn(conn, config, testLogger())
}

// rawDial connects without the hello exchange, for tests that drive
// the wire protocol by hand.
func rawDial(t *testing.T, endpoint Endpoint) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", endpoint.SocketPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dialing %s: %v", endpoint.SocketPath, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// fakeLeader owns the endpoint socket but speaks only as much protocol
// as its handler implements. Used to simulate leaders that die at
// awkward moments.
type fakeLeader struct {
	listener net.Listener

	// mu guards conns, the accepted connections, so stop and crash can
	// sever them the way a dead process's closed fds would.
	mu    sync.Mutex
	conns []net.Conn
}

// frameStream wraps one hello-completed connection for a fake leader
// handler. The decoder and encoder persist across frames, so pipelined
// requests are never lost to decoder buffering.
type frameStream struct {
	net.Conn
	decoder *codec.Decoder
	encoder *codec.Encoder
}

func (s *frameStream) read(target any) error { return s.decoder.Decode(target) }
func (s *frameStream) write(value any) error { return s.encoder.Encode(value) }

// startFakeLeader claims the endpoint and runs handler on each
// accepted connection. The handler receives hello-completed
// connections.
func startFakeLeader(t *testing.T, endpoint Endpoint, handler func(stream *frameStream)) *fakeLeader {
	t.Helper()

	listener, claimed, err := Claim(endpoint)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Fatalf("endpoint %s already claimed", endpoint.SocketPath)
	}

	leader := &fakeLeader{listener: listener}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			leader.mu.Lock()
			leader.conns = append(leader.conns, conn)
			leader.mu.Unlock()
			go func() {
				defer conn.Close()
				if err := serverHello(conn, endpoint, 2*time.Second); err != nil {
					return
				}
				handler(&frameStream{
					Conn:    conn,
					decoder: codec.NewDecoder(conn),
					encoder: codec.NewEncoder(conn),
				})
			}()
		}
	}()

	t.Cleanup(func() { leader.stop() })
	return leader
}

// closeConns severs every accepted connection, as the kernel would
// when the owning process dies.
func (l *fakeLeader) closeConns() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conn := range l.conns {
		conn.Close()
	}
	l.conns = nil
}

// stop closes the listener, unlinking the socket (net's default for
// Unix listeners).
func (l *fakeLeader) stop() {
	l.listener.Close()
	l.closeConns()
}

// crash closes the listener without unlinking the socket file,
// reproducing what a killed process leaves behind.
func (l *fakeLeader) crash() {
	if unixListener, ok := l.listener.(*net.UnixListener); ok {
		unixListener.SetUnlinkOnClose(false)
	}
	l.listener.Close()
	l.closeConns()
}

// readFrame decodes one value from conn into target with a deadline.
func readFrame(t *testing.T, conn net.Conn, target any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := codec.NewDecoder(conn).Decode(target); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	conn.SetReadDeadline(time.Time{})
}

// writeFrame encodes one value to conn.
func writeFrame(t *testing.T, conn net.Conn, value any) {
	t.Helper()
	if err := codec.NewEncoder(conn).Encode(value); err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
}
