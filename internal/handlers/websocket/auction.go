package websocket

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openbid/auction-server/internal/auction"
	"github.com/openbid/auction-server/internal/auth"
	"github.com/openbid/auction-server/internal/database"
)

// Authenticator resolves the identity of an incoming connection. The session
// system itself lives outside this core.
type Authenticator interface {
	Authenticate(r *http.Request) (auth.Identity, error)
}

type AuctionHandler struct {
	db             database.Service
	engine         *auction.Engine
	hub            *Hub
	auth           Authenticator
	maxMessageSize int64
}

const defaultMaxMessageSize = 4096

func NewAuctionHandler(db database.Service, engine *auction.Engine, hub *Hub, authenticator Authenticator, maxMessageSize int64) *AuctionHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	return &AuctionHandler{
		db:             db,
		engine:         engine,
		hub:            hub,
		auth:           authenticator,
		maxMessageSize: maxMessageSize,
	}
}

// Hub exposes the fan-out hub so it can be wired as the engine's notifier.
func (h *AuctionHandler) Hub() *Hub {
	return h.hub
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleAuctionWebSocket authenticates the request and upgrades it to a
// WebSocket connection.
func (h *AuctionHandler) HandleAuctionWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authenticate(r)
	if err != nil {
		log.Error("Invalid session: ", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), identity.Email)
	if err != nil {
		log.Error("User not found: ", err)
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	conn.SetReadLimit(h.maxMessageSize)

	client := &Client{
		ID:          user.ID,
		Name:        user.Name,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		RateLimiter: rate.NewLimiter(1, 3),
	}

	go client.WriteMessages()
	go func() {
		client.ReadMessages(h.HandleMessage)
		h.hub.RemoveClient(client)
		client.Close()
	}()
}
