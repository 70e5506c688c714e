package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/sofico/sofico_wallet/internal/auth"
	"github.com/sofico/sofico_wallet/internal/metrics"
	"github.com/sofico/sofico_wallet/internal/notification"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub pushes balance events from the Redis events channel to the websocket connections of
// the wallet owner.
type Hub struct {
	cache   *redis.Client
	channel string
	secret  []byte
	logger  *slog.Logger

	upgrader websocket.Upgrader
	ready    chan struct{}

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub constructs a hub. Connections authenticate with the same JWT secret as the API.
func NewHub(cache *redis.Client, channel string, secret []byte, logger *slog.Logger) *Hub {
	return &Hub{
		cache:   cache,
		channel: channel,
		secret:  secret,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ready:   make(chan struct{}),
		clients: make(map[string]map[*client]struct{}),
	}
}

// Ready is closed once the Redis subscription is confirmed.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Run consumes the events channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.cache.Subscribe(ctx, h.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}
	close(h.ready)
	h.logger.Info("realtime hub subscribed", slog.String("channel", h.channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var event notification.BalanceChanged
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil || event.UserID == "" {
				h.logger.Warn("dropping malformed event", slog.Any("error", err))
				continue
			}
			h.Deliver(event.UserID, []byte(msg.Payload))
		}
	}
}

// Deliver queues payload for every connection of userID and returns how many accepted it.
// Connections with a full buffer are skipped.
func (h *Hub) Deliver(userID string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			h.logger.Warn("realtime client too slow, dropping event", slog.String("user_id", userID))
		}
	}
	return delivered
}

// Connections returns the number of open connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Handler returns the HTTP handler serving /ws and /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if authz := r.Header.Get("Authorization"); token == "" && len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		token = strings.TrimSpace(authz[7:])
	}
	p, err := auth.ParseToken(token, h.secret)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{userID: p.UserID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

// readPump discards client messages and keeps the read deadline alive with pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
