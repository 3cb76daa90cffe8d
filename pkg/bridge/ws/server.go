// Package ws is the live-telemetry websocket bridge. A map UI subscribes
// and receives every decoded record as a JSON frame.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"loralink/pkg/engine"
	"loralink/pkg/telemetry"
)

type Config struct {
	Addr    string
	Name    string
	SendBuf int
}

func DefaultConfig() Config {
	return Config{
		Addr:    "127.0.0.1:8765",
		Name:    "loralink",
		SendBuf: 64,
	}
}

// HelloMsg is the first frame sent to every client.
type HelloMsg struct {
	Op        string `json:"op"`
	Name      string `json:"name"`
	SessionID string `json:"session_id"`
}

// TelemetryMsg carries one decoded record.
type TelemetryMsg struct {
	Op     string           `json:"op"`
	Record telemetry.Record `json:"record"`
}

type Server struct {
	cfg     Config
	hub     *engine.Hub
	log     zerolog.Logger
	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewServer(cfg Config, hub *engine.Hub, log zerolog.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaults.SendBuf
	}
	return &Server{
		cfg:     cfg,
		hub:     hub,
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Run serves websocket clients and pumps hub records to them until ctx
// ends.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	c := &client{
		conn: conn,
		send: make(chan []byte, s.cfg.SendBuf),
	}
	s.addClient(c)

	hello := HelloMsg{
		Op:        "hello",
		Name:      s.cfg.Name,
		SessionID: fmt.Sprintf("%d", time.Now().UTC().UnixNano()),
	}
	if err := conn.WriteJSON(hello); err != nil {
		c.close()
		s.removeClient(c)
		return
	}

	go c.writeLoop()
	c.readLoop()

	c.close()
	s.removeClient(c)
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan telemetry.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(rec)
		}
	}
}

func (s *Server) broadcast(rec telemetry.Record) {
	payload, err := json.Marshal(TelemetryMsg{Op: "telemetry", Record: rec})
	if err != nil {
		return
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.trySend(payload)
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (c *client) trySend(payload []byte) {
	select {
	case c.send <- payload:
	default:
		// Slow client: drop the frame rather than stall the pipeline.
	}
}

func (c *client) writeLoop() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *client) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
