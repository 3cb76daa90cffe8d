// Package engine fans decoded telemetry out to every consumer: the JSONL
// log, the MQTT publisher, the websocket bridge, and the status tracker.
package engine

import (
	"context"

	"loralink/pkg/telemetry"
)

const (
	// broadcastBuf absorbs record bursts from the link while subscribers
	// are being registered or drained.
	broadcastBuf = 256

	// defaultClientBuf is the per-subscriber buffer; a subscriber that
	// falls further behind loses records rather than stalling the rest.
	defaultClientBuf = 100
)

type Hub struct {
	broadcast  chan telemetry.Record
	register   chan chan telemetry.Record
	unregister chan chan telemetry.Record
	clients    map[chan telemetry.Record]struct{}
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan telemetry.Record, broadcastBuf),
		register:   make(chan chan telemetry.Record),
		unregister: make(chan chan telemetry.Record),
		clients:    make(map[chan telemetry.Record]struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case rec := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- rec:
				default:
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan telemetry.Record {
	return h.SubscribeWithBuffer(defaultClientBuf)
}

// SubscribeWithBuffer registers a subscriber with its own buffer size, for
// consumers with known drain rates.
func (h *Hub) SubscribeWithBuffer(size int) chan telemetry.Record {
	if size <= 0 {
		size = defaultClientBuf
	}
	ch := make(chan telemetry.Record, size)
	h.register <- ch
	return ch
}

func (h *Hub) Unsubscribe(ch chan telemetry.Record) {
	h.unregister <- ch
}

func (h *Hub) Publish(rec telemetry.Record) {
	h.broadcast <- rec
}
