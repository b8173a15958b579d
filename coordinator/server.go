// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/foreman-dev/foreman/lib/codec"
	"github.com/foreman-dev/foreman/lib/netutil"
)

// Dispatcher is the registry boundary: the server hands it one decoded
// request payload and writes back whatever it returns. Implementations
// must be safe for concurrent calls — every connection has its own
// receive loop, and nothing serializes dispatches across connections.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte) ([]byte, error)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Dispatch calls f.
func (f DispatchFunc) Dispatch(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// Server is the leader role. It owns the claimed listener, accepts
// connections from client-role instances, and runs one receive loop
// per connection: decode a request, dispatch it, write the response,
// repeat. Connections are fully independent — one client's teardown
// or decode failure never touches a sibling connection or the
// listener.
type Server struct {
	endpoint   Endpoint
	listener   net.Listener
	dispatcher Dispatcher
	config     Config
	logger     *slog.Logger

	// activeConnections tracks in-flight receive loops so Serve can
	// drain them on shutdown.
	activeConnections sync.WaitGroup
}

// NewServer wraps a successfully claimed listener. The caller keeps
// responsibility for running Serve; nothing listens until then.
func NewServer(endpoint Endpoint, listener net.Listener, dispatcher Dispatcher, config Config, logger *slog.Logger) *Server {
	return &Server{
		endpoint:   endpoint,
		listener:   listener,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger,
	}
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting, closes active connections, and unlinks the socket. The
// unlink runs only on this intentional-shutdown path: a crash skips it
// by definition, leaving the socket claimable, which is how the next
// election detects leader death.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		s.listener.Close()
		os.Remove(s.endpoint.SocketPath)
	}()

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	s.logger.Info("serving endpoint",
		"socket", s.endpoint.SocketPath,
		"codebase", s.endpoint.CodebasePath,
	)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	s.logger.Info("endpoint released", "socket", s.endpoint.SocketPath)
	return nil
}

// handleConnection runs one connection's lifecycle: peer check, hello
// exchange, then the receive loop. Any exit path closes only this
// connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Close the connection when the server shuts down so the receive
	// loop's blocking read unblocks.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if err := checkPeerCredentials(conn); err != nil {
		s.logger.Warn("rejecting connection", "error", err)
		return
	}

	if err := serverHello(conn, s.endpoint, s.config.HandshakeTimeout); err != nil {
		if !netutil.IsExpectedCloseError(err) {
			s.logger.Warn("hello failed", "error", err)
		}
		return
	}

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	for {
		var request requestFrame
		if err := decoder.Decode(&request); err != nil {
			// A CBOR-level decode failure leaves the stream position
			// unknown, so the connection cannot be recovered. Close
			// it; siblings are unaffected.
			if !netutil.IsExpectedCloseError(err) && ctx.Err() == nil {
				s.logger.Warn("unrecoverable frame corruption, closing connection", "error", err)
			}
			return
		}

		response := s.handleRequest(ctx, request)
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := encoder.Encode(response); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Warn("writing response failed", "error", err)
			}
			return
		}
		conn.SetWriteDeadline(time.Time{})
	}
}

// handleRequest dispatches one decoded frame and builds its response.
// Payload-level problems (bad encoding tag, corrupt compressed data)
// are recoverable: they yield an error response on the same
// connection, not a teardown.
func (s *Server) handleRequest(ctx context.Context, request requestFrame) responseFrame {
	payload, err := decodePayload(request.Payload, request.Enc)
	if err != nil {
		return responseFrame{
			ID:    request.ID,
			OK:    false,
			Error: fmt.Sprintf("invalid request payload: %v", err),
		}
	}

	result, err := s.dispatcher.Dispatch(ctx, payload)
	if err != nil {
		s.logger.Debug("dispatch failed", "error", err)
		return responseFrame{
			ID:    request.ID,
			OK:    false,
			Error: err.Error(),
		}
	}

	encoded, encoding := encodePayload(result, s.config.CompressionThreshold)
	return responseFrame{
		ID:      request.ID,
		OK:      true,
		Payload: encoded,
		Enc:     encoding,
	}
}
