package framing

import (
	"time"

	"loralink/pkg/telemetry"
)

type wholeChunk struct {
	now func() time.Time
}

// NewWholeChunk returns the packetized-transport framer: every non-empty
// chunk is emitted as one packet, nothing is buffered.
func NewWholeChunk() Framer {
	return &wholeChunk{now: time.Now}
}

func (w *wholeChunk) Push(data []byte, sig *telemetry.Signal) ([]telemetry.RawPacket, error) {
	if len(data) == 0 {
		return nil, nil
	}
	pkt := telemetry.RawPacket{
		Bytes:      append([]byte(nil), data...),
		Signal:     sig,
		ReceivedAt: w.now(),
	}
	return []telemetry.RawPacket{pkt}, nil
}

func (w *wholeChunk) Reset() {}
