// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/foreman-dev/foreman/lib/codec"
	"github.com/foreman-dev/foreman/lib/netutil"
)

// ClientConn is the client role's connection to the current leader.
// One instance holds exactly one ClientConn at a time; every upstream
// request is forwarded through it and awaits the correlated response.
//
// A reader goroutine owns the receive side and demultiplexes responses
// by ID. When any read or write fails, the connection transitions to
// dead exactly once: Done() closes, every pending call fails with
// ErrLeaderLost, and further Calls are refused. The caller (the
// coordinator) watches Done to trigger re-election; ClientConn itself
// never retries.
type ClientConn struct {
	conn    net.Conn
	config  Config
	logger  *slog.Logger
	encoder *codec.Encoder

	// writeMu serializes frame writes; Calls from concurrent upstream
	// callers share the one connection.
	writeMu sync.Mutex

	// mu protects pending and nextID.
	mu      sync.Mutex
	pending map[uint64]chan responseFrame
	nextID  uint64

	// dead closes exactly once when the connection is lost or closed.
	dead     chan struct{}
	deadOnce sync.Once
}

// NewClientConn takes ownership of an established, hello-verified
// connection and starts its reader. Close releases it.
func NewClientConn(conn net.Conn, config Config, logger *slog.Logger) *ClientConn {
	client := &ClientConn{
		conn:    conn,
		config:  config,
		logger:  logger,
		encoder: codec.NewEncoder(conn),
		pending: make(map[uint64]chan responseFrame),
		dead:    make(chan struct{}),
	}
	go client.readLoop()
	return client
}

// Done returns a channel that closes when the connection is lost. The
// coordinator selects on it to detect leader death.
func (c *ClientConn) Done() <-chan struct{} {
	return c.dead
}

// Close tears the connection down. Pending calls fail with
// ErrLeaderLost.
func (c *ClientConn) Close() error {
	c.fail()
	return nil
}

// Call forwards one opaque request payload to the leader and returns
// the response payload. Blocks until the response arrives, ctx is
// cancelled, the configured request timeout expires, or the connection
// is lost — never indefinitely.
//
// A domain-level failure from the registry comes back as a
// *DispatchError; transport loss comes back as ErrLeaderLost. A
// response arriving after the call has given up is discarded, never
// misattributed to a later request.
func (c *ClientConn) Call(ctx context.Context, payload []byte) ([]byte, error) {
	select {
	case <-c.dead:
		return nil, ErrLeaderLost
	default:
	}

	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	id, responseCh := c.register()
	defer c.unregister(id)

	encoded, encoding := encodePayload(payload, c.config.CompressionThreshold)
	frame := requestFrame{ID: id, Payload: encoded, Enc: encoding}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.encoder.Encode(frame)
	c.conn.SetWriteDeadline(time.Time{})
	c.writeMu.Unlock()
	if err != nil {
		c.fail()
		return nil, fmt.Errorf("%w: %v", ErrLeaderLost, err)
	}

	select {
	case response := <-responseCh:
		if !response.OK {
			return nil, &DispatchError{Message: response.Error}
		}
		result, err := decodePayload(response.Payload, response.Enc)
		if err != nil {
			return nil, fmt.Errorf("decoding response payload: %w", err)
		}
		return result, nil
	case <-c.dead:
		return nil, ErrLeaderLost
	case <-ctx.Done():
		return nil, fmt.Errorf("awaiting response from leader: %w", ctx.Err())
	}
}

// register allocates a correlation ID and its response channel.
func (c *ClientConn) register() (uint64, chan responseFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	// Buffered so the reader never blocks on a caller that already
	// gave up.
	ch := make(chan responseFrame, 1)
	c.pending[id] = ch
	return id, ch
}

// unregister drops a pending entry. After this, a late response to id
// is discarded by the reader.
func (c *ClientConn) unregister(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// readLoop owns the receive side: decode response frames and hand each
// to its waiting call. Exits on the first read error, marking the
// connection dead.
func (c *ClientConn) readLoop() {
	decoder := codec.NewDecoder(c.conn)
	for {
		var response responseFrame
		if err := decoder.Decode(&response); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.logger.Debug("leader connection read failed", "error", err)
			}
			c.fail()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[response.ID]
		if ok {
			delete(c.pending, response.ID)
		}
		c.mu.Unlock()

		if !ok {
			// The call was cancelled or timed out; drop the response.
			c.logger.Debug("discarding response for abandoned request", "id", response.ID)
			continue
		}
		ch <- response
	}
}

// fail marks the connection dead exactly once. Pending calls observe
// the closed dead channel and return ErrLeaderLost.
func (c *ClientConn) fail() {
	c.deadOnce.Do(func() {
		close(c.dead)
		c.conn.Close()
	})
}
