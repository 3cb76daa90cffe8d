// Package framing cuts a chunked byte stream into discrete packets for the
// telemetry decoder. Chunk boundaries carry no meaning on stream transports:
// USB/TCP reads may split or merge packets arbitrarily, while a BLE
// notification is already one packet.
package framing

import (
	"errors"
	"fmt"

	"loralink/pkg/telemetry"
)

// Policy selects how inbound chunks map to packet boundaries.
type Policy string

const (
	// WholeChunk treats every inbound chunk as one complete packet. Used
	// when the transport is already packetized (one BLE notification = one
	// packet). No buffering across calls.
	WholeChunk Policy = "chunk"

	// DelimitedStream accumulates chunks and scans for packet boundaries:
	// a balanced-brace scan for JSON, fixed-length accumulation for binary.
	DelimitedStream Policy = "stream"
)

// DefaultMaxBuffer caps the delimited-stream accumulation buffer. A stream
// that never produces a recognizable boundary is discarded at this size.
const DefaultMaxBuffer = 4096

// ErrBufferOverflow reports that the accumulation buffer exceeded its cap
// and was discarded. The stream keeps being framed afterwards.
var ErrBufferOverflow = errors.New("framing buffer overflow")

// Framer converts inbound chunks into zero or more framed packets. Push is
// not safe for concurrent use; the connection owner serializes calls.
type Framer interface {
	// Push appends one chunk and returns every packet completed by it.
	// Packets already recognized are returned even when Push also returns
	// an error.
	Push(data []byte, sig *telemetry.Signal) ([]telemetry.RawPacket, error)

	// Reset discards any buffered partial packet. Called on disconnect: a
	// partial packet never survives a reconnection boundary.
	Reset()
}

// New returns a framer for the given policy.
func New(policy Policy, opts ...StreamOption) (Framer, error) {
	switch policy {
	case WholeChunk:
		return NewWholeChunk(), nil
	case DelimitedStream:
		return NewStream(opts...), nil
	default:
		return nil, fmt.Errorf("unknown framing policy %q", policy)
	}
}
