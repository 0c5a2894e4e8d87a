package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/persona"
	"github.com/wonny/cryptopredict/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// StreamHub pushes guest projections of default-context runs to websocket subscribers.
// It is a contracts.RunPublisher.
// ⭐ SSOT: 실시간 분석 스트림은 여기서만
type StreamHub struct {
	adapter  *persona.Adapter
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

var _ contracts.RunPublisher = (*StreamHub)(nil)

// NewStreamHub creates an empty hub
func NewStreamHub(adapter *persona.Adapter, log *logger.Logger) *StreamHub {
	return &StreamHub{
		adapter: adapter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  log.Component("stream"),
		clients: make(map[*streamClient]struct{}),
	}
}

// Clients returns the number of connected subscribers
func (h *StreamHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishRun broadcasts the guest projection of a run.
// Runs over personal watchlists are never streamed.
func (h *StreamHub) PublishRun(ctx context.Context, run *contracts.EvaluationRun) error {
	if run == nil || !run.Scope.IsDefault {
		return nil
	}

	view, err := h.adapter.Project(ctx, run, contracts.PersonaGuest)
	if err != nil {
		return fmt.Errorf("stream projection: %w", err)
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("stream encode: %w", err)
	}

	h.broadcast(payload)
	return nil
}

func (h *StreamHub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// 느린 구독자는 끊는다
			h.logger.Warn("Dropping slow stream subscriber")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the connection and holds it until the client leaves
// GET /api/stream
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.WithField("clients", h.Clients()).Debug("Stream subscriber connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames and detects disconnects
func (h *StreamHub) readPump(c *streamClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every subscriber
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
