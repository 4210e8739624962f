package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/crowdfund-ton/backend/internal/auth"
	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/ton"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WSHub streams operation status and campaign activity to operators. A
// connection may narrow the stream to one campaign with ?campaign=<id>.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.Mutex
	connections map[*websocket.Conn]string
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[*websocket.Conn]string),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	for _, ch := range []string{events.ChannelOperations, events.ChannelCampaigns} {
		if err := h.subscriber.Subscribe(ctx, ch, h.broadcast); err != nil {
			h.log.Error("ws hub subscribe failed", zap.String("channel", ch), zap.Error(err))
		}
	}
}

// wants reports whether a connection filtered on campaign gets event.
func wants(campaign string, event events.Event) bool {
	if campaign == "" {
		return true
	}
	id, _ := event.Payload["campaign_id"].(string)
	return id == campaign
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	// writes on a conn must not interleave across subscriber goroutines
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, campaign := range h.connections {
		if wants(campaign, event) {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	if _, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr); err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	campaign := ""
	if v := conn.Query("campaign"); v != "" {
		id, ok := ton.CanonicalID(v)
		if !ok {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid campaign"}`))
			conn.Close()
			return
		}
		campaign = id
	}

	h.mu.Lock()
	h.connections[conn] = campaign
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.connections, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
