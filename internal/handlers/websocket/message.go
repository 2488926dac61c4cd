package websocket

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"

	apperrors "github.com/openbid/auction-server/pkg/errors"
	"github.com/openbid/auction-server/pkg/types"
)

type Message struct {
	Type string          `json:"type"`           // Type of the message (e.g., "bid", "join")
	Data json.RawMessage `json:"data,omitempty"` // Payload of the message
}

type joinPayload struct {
	AuctionID string `json:"auction_id"`
}

type bidPayload struct {
	AuctionID string `json:"auction_id"`
	Amount    int    `json:"amount"`
}

type bidAcceptedPayload struct {
	AuctionID  string    `json:"auction_id"`
	CurrentBid int       `json:"current_bid"`
	BidderName string    `json:"bidder_name"`
	Bid        types.Bid `json:"bid"`
}

type bidRejectedPayload struct {
	Reason  apperrors.Reason `json:"reason"`
	Message string           `json:"message"`
}

type auctionEndPayload struct {
	AuctionID  string  `json:"auction_id"`
	WinnerID   *string `json:"winner_id,omitempty"`
	FinalPrice int     `json:"final_price"`
}

func encodeMessage(msgType string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("Error marshalling message payload: ", err)
		return apperrors.New(apperrors.ReasonInternal, "Internal server error").ToJSON()
	}
	raw, err := json.Marshal(&Message{Type: msgType, Data: data})
	if err != nil {
		log.Error("Error marshalling message: ", err)
		return apperrors.New(apperrors.ReasonInternal, "Internal server error").ToJSON()
	}
	return raw
}

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HandleMessage routes the message based on its type.
func (h *AuctionHandler) HandleMessage(client *Client, rawMessage []byte) {
	if !client.RateLimiter.Allow() {
		log.Warnf("Rate limit exceeded for client %s", client.ID)
		client.TrySend(apperrors.New(apperrors.ReasonBadMessage, "Rate limit exceeded").ToJSON())
		return
	}

	msg, err := ParseMessage(rawMessage)
	if err != nil {
		log.Infof("Invalid message from client %s: %v", client.ID, err)
		client.TrySend(apperrors.New(apperrors.ReasonBadMessage, "Invalid message format").ToJSON())
		return
	}

	switch msg.Type {
	case "join":
		h.handleJoinMessage(client, msg.Data)
	case "leave":
		h.handleLeaveMessage(client, msg.Data)
	case "bid":
		h.handleBidMessage(client, msg.Data)
	default:
		log.Debugf("Unknown message type from client %s: %s", client.ID, msg.Type)
		client.TrySend(apperrors.New(apperrors.ReasonBadMessage, "Unknown message type").ToJSON())
	}
}

func (h *AuctionHandler) handleJoinMessage(client *Client, data json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.AuctionID == "" {
		client.TrySend(apperrors.New(apperrors.ReasonBadMessage, "Invalid join message").ToJSON())
		return
	}
	h.hub.Join(payload.AuctionID, client)
}

func (h *AuctionHandler) handleLeaveMessage(client *Client, data json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.AuctionID == "" {
		client.TrySend(apperrors.New(apperrors.ReasonBadMessage, "Invalid leave message").ToJSON())
		return
	}
	h.hub.Leave(payload.AuctionID, client)
}

// handleBidMessage runs one submission through the acceptance protocol.
// Acceptance is broadcast to the room by the engine's notifier; rejections
// go back to the submitting client only.
func (h *AuctionHandler) handleBidMessage(client *Client, data json.RawMessage) {
	var payload bidPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.AuctionID == "" {
		client.TrySend(apperrors.New(apperrors.ReasonBadMessage, "Invalid bid message").ToJSON())
		return
	}

	_, _, err := h.engine.PlaceBid(context.Background(), payload.AuctionID, client.ID, payload.Amount)
	if err != nil {
		reason := apperrors.ReasonOf(err)
		if reason == apperrors.ReasonInternal {
			log.Error("Error placing bid", "client", client.ID, "auction", payload.AuctionID, "error", err)
			client.TrySend(apperrors.New(apperrors.ReasonInternal, "Internal server error").ToJSON())
			return
		}
		client.TrySend(encodeMessage("bid_rejected", bidRejectedPayload{
			Reason:  reason,
			Message: err.Error(),
		}))
	}
}
