// Package websocket pushes scored-lead notices to connected coordinator
// dashboards. Clients subscribe to priority tiers and receive a notice each
// time a lead in one of those tiers is stored.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/neuroreach/intake/internal/platform/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// AllTiers subscribes a client to every tier.
const AllTiers = "*"

// ClientMessage changes a client's tier subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Tiers  []string `json:"tiers"`
}

// Client is one dashboard connection.
type Client struct {
	ID    string
	Tiers map[string]struct{}
	Send  chan []byte
}

func newClient(tiers []string) *Client {
	c := &Client{
		ID:    uuid.NewString(),
		Tiers: make(map[string]struct{}),
		Send:  make(chan []byte, sendBuffer),
	}
	for _, t := range tiers {
		c.Tiers[normalizeTier(t)] = struct{}{}
	}
	if len(c.Tiers) == 0 {
		c.Tiers[AllTiers] = struct{}{}
	}
	return c
}

func (c *Client) wants(tier string) bool {
	_, all := c.Tiers[AllTiers]
	_, ok := c.Tiers[tier]
	return all || ok
}

func normalizeTier(t string) string {
	t = strings.TrimSpace(t)
	if t == AllTiers {
		return t
	}
	return strings.ToUpper(t)
}

// Hub tracks connected clients. It satisfies events.Publisher so it can sit
// next to the Kafka publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*Client]struct{}), logger: logger}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes c and closes its Send channel. It is safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
}

// ProcessMessage applies a subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Tiers {
			c.Tiers[normalizeTier(t)] = struct{}{}
		}
	case "unsubscribe":
		for _, t := range msg.Tiers {
			delete(c.Tiers, normalizeTier(t))
		}
	}
}

// PublishLeadScored sends e to every client subscribed to its tier. A client
// whose buffer is full misses the notice rather than stalling ingestion.
func (h *Hub) PublishLeadScored(_ context.Context, e events.LeadScored) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(e.Tier) {
			continue
		}
		select {
		case c.Send <- data:
		default:
			h.logger.Warn().Str("client_id", c.ID).Msg("dashboard client too slow, notice dropped")
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.Send)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// -- HTTP handler --

// Handler upgrades dashboard requests to WebSocket connections.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts upgrades from the given browser origins. Requests
// without an Origin header (non-browser clients) are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				_, wildcard := allowed["*"]
				return ok || wildcard
			},
		},
	}
}

// Stream serves GET /leads/stream?tier=HOT,MEDIUM.
func (h *Handler) Stream(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	var tiers []string
	if q := c.QueryParam("tier"); q != "" {
		tiers = strings.Split(q, ",")
	}
	client := newClient(tiers)
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(c *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(c)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(c, msg)
	}
}

func (h *Handler) writePump(c *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
