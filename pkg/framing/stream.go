package framing

import (
	"fmt"
	"time"

	"loralink/pkg/telemetry"
)

type stream struct {
	buf        []byte
	max        int
	binarySize int
	now        func() time.Time
}

type StreamOption func(*stream)

// WithMaxBuffer overrides the accumulation cap.
func WithMaxBuffer(n int) StreamOption {
	return func(s *stream) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithBinarySize sets the expected binary packet length. The default is the
// bare 17-byte layout; a checksummed link uses telemetry.BinarySizeCRC.
func WithBinarySize(n int) StreamOption {
	return func(s *stream) {
		if n > 0 {
			s.binarySize = n
		}
	}
}

// NewStream returns the delimited-stream framer for USB/TCP byte streams.
func NewStream(opts ...StreamOption) Framer {
	s := &stream{
		max:        DefaultMaxBuffer,
		binarySize: telemetry.BinarySize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *stream) Push(data []byte, sig *telemetry.Signal) ([]telemetry.RawPacket, error) {
	s.buf = append(s.buf, data...)

	var out []telemetry.RawPacket
	for {
		n := s.scan()
		if n <= 0 {
			break
		}
		out = append(out, telemetry.RawPacket{
			Bytes:      append([]byte(nil), s.buf[:n]...),
			Signal:     sig,
			ReceivedAt: s.now(),
		})
		s.buf = s.buf[n:]
	}

	if len(s.buf) > s.max {
		size := len(s.buf)
		s.buf = nil
		return out, fmt.Errorf("%w: %d bytes buffered without a packet boundary", ErrBufferOverflow, size)
	}
	return out, nil
}

func (s *stream) Reset() {
	s.buf = nil
}

// scan returns the length of the next complete packet at the head of the
// buffer, or 0 if none is complete yet. A leading '{' selects the JSON
// balanced-brace rule; anything else is fixed-length binary. No byte is
// ever skipped: a whitespace-valued byte is a legitimate binary payload
// byte, so the sender must not pad between stream packets.
func (s *stream) scan() int {
	if len(s.buf) == 0 {
		return 0
	}
	if s.buf[0] == '{' {
		return scanJSON(s.buf)
	}
	if len(s.buf) >= s.binarySize {
		return s.binarySize
	}
	return 0
}

// scanJSON finds the index past the brace that balances buf[0]. Braces
// inside JSON strings do not count; backslash escapes are honored.
func scanJSON(buf []byte) int {
	depth := 0
	inString := false
	escaped := false
	for i, b := range buf {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return 0
}
