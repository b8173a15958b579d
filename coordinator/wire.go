// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Wire frames. Every value on a connection is a single CBOR map; CBOR
// is self-delimiting, so no length prefix is needed. After the hello
// exchange, the client writes requestFrame values and the server
// answers each with one responseFrame carrying the same ID.
//
// The ID is a per-connection counter. The server processes one request
// at a time per connection, so responses arrive in request order for a
// serial caller — but the ID makes correlation explicit, letting a
// client keep several requests in flight on one connection without
// any risk of misattribution.

// requestFrame carries one opaque domain call to the leader.
type requestFrame struct {
	ID      uint64 `cbor:"id"`
	Payload []byte `cbor:"payload"`
	Enc     uint8  `cbor:"enc,omitempty"`
}

// responseFrame carries the registry's verdict for one request. OK
// false means the registry rejected the call (a domain error, not a
// transport failure); Error holds its message.
type responseFrame struct {
	ID      uint64 `cbor:"id"`
	OK      bool   `cbor:"ok"`
	Error   string `cbor:"error,omitempty"`
	Payload []byte `cbor:"payload,omitempty"`
	Enc     uint8  `cbor:"enc,omitempty"`
}

// Payload encoding tags. Protocol constants: changing a value breaks
// mixed-version talk across a takeover.
const (
	encodingNone uint8 = 0
	encodingZstd uint8 = 1
)

// Shared zstd coder instances. EncodeAll and DecodeAll on these are
// safe for concurrent use, so one of each serves every connection
// without repeated initialization cost.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("coordinator: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("coordinator: zstd decoder initialization failed: " + err.Error())
	}
}

// encodePayload compresses data when it exceeds threshold and the
// compressed form is actually smaller. Payloads here are JSON-like
// text, zstd's strong case. Returns the bytes to put on the wire and
// the encoding tag. A non-positive threshold disables compression.
func encodePayload(data []byte, threshold int) ([]byte, uint8) {
	if threshold <= 0 || len(data) <= threshold {
		return data, encodingNone
	}
	compressed := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	if len(compressed) >= len(data) {
		return data, encodingNone
	}
	return compressed, encodingZstd
}

// decodePayload reverses encodePayload. An unknown tag is a decode
// error local to the carrying frame, not a stream corruption.
func decodePayload(data []byte, encoding uint8) ([]byte, error) {
	switch encoding {
	case encodingNone:
		return data, nil
	case encodingZstd:
		decompressed, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
		return decompressed, nil
	default:
		return nil, fmt.Errorf("unknown payload encoding %d", encoding)
	}
}
