package websocket

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/openbid/auction-server/pkg/types"
)

// Hub tracks which clients are watching which auction. Watchers explicitly
// join and leave per-auction rooms; membership does not survive a reconnect.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*Client]bool // key: auctionID
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

func (h *Hub) Join(auctionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[auctionID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[auctionID] = room
	}
	room[client] = true
	log.Debugf("Client %s joined auction %s", client.ID, auctionID)
}

func (h *Hub) Leave(auctionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[auctionID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

// RemoveClient drops the client from every room it joined.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	for auctionID, room := range h.rooms {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

// Watchers returns the number of clients in an auction's room.
func (h *Hub) Watchers(auctionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[auctionID])
}

// Broadcast sends a message to every client watching the auction.
func (h *Hub) Broadcast(auctionID string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[auctionID] {
		if !client.TrySend(message) {
			// Slow or disconnected client, drop it from every room so no
			// later broadcast writes to its closed channel.
			h.removeLocked(client)
			client.Close()
		}
	}
}

// displayName resolves a bidder's name from the room membership, falling back
// to the raw id when the bidder is no longer connected.
func (h *Hub) displayName(auctionID, bidderID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[auctionID] {
		if client.ID == bidderID {
			return client.Name
		}
	}
	return bidderID
}

// BidAccepted broadcasts the new auction state to the auction's watchers.
func (h *Hub) BidAccepted(auction types.Auction, bid types.Bid) {
	h.Broadcast(auction.ID, encodeMessage("bid_accepted", bidAcceptedPayload{
		AuctionID:  auction.ID,
		CurrentBid: auction.CurrentBid,
		BidderName: h.displayName(auction.ID, bid.BidderID),
		Bid:        bid,
	}))
}

// AuctionEnded announces the winner to the auction's watchers.
func (h *Hub) AuctionEnded(auction types.Auction) {
	h.Broadcast(auction.ID, encodeMessage("auction_end", auctionEndPayload{
		AuctionID:  auction.ID,
		WinnerID:   auction.WinnerID,
		FinalPrice: auction.CurrentBid,
	}))
}
