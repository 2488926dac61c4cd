package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbid/auction-server/pkg/types"
)

func newFakeClient(id, name string) *Client {
	return &Client{ID: id, Name: name, Send: make(chan []byte, 8)}
}

func TestHubRooms(t *testing.T) {
	hub := NewHub()
	alice := newFakeClient("u1", "Alice")
	bob := newFakeClient("u2", "Bob")

	hub.Join("a1", alice)
	hub.Join("a1", bob)
	hub.Join("a2", bob)
	require.Equal(t, 2, hub.Watchers("a1"))
	require.Equal(t, 1, hub.Watchers("a2"))

	hub.Broadcast("a1", []byte("hello"))
	require.Equal(t, "hello", string(<-alice.Send))
	require.Equal(t, "hello", string(<-bob.Send))

	// Leaving one room does not affect the other.
	hub.Leave("a1", bob)
	hub.Broadcast("a1", []byte("again"))
	require.Equal(t, "again", string(<-alice.Send))
	require.Empty(t, bob.Send)

	hub.RemoveClient(bob)
	require.Equal(t, 0, hub.Watchers("a2"))
	require.Equal(t, 1, hub.Watchers("a1"))
}

// A client that cannot keep up is dropped from every room it joined, so no
// later broadcast can hit its closed send channel.
func TestHubDropsSlowClientEverywhere(t *testing.T) {
	hub := NewHub()
	slow := &Client{ID: "u1", Name: "Slow", Send: make(chan []byte, 1)}
	hub.Join("a1", slow)
	hub.Join("a2", slow)

	hub.Broadcast("a1", []byte("one"))
	hub.Broadcast("a1", []byte("two")) // buffer full, client dropped

	require.Equal(t, 0, hub.Watchers("a1"))
	require.Equal(t, 0, hub.Watchers("a2"))
	require.False(t, slow.TrySend([]byte("late")))
	require.NotPanics(t, func() { hub.Broadcast("a2", []byte("three")) })
}

func TestHubBidAcceptedPayload(t *testing.T) {
	hub := NewHub()
	alice := newFakeClient("u1", "Alice")
	hub.Join("a1", alice)

	bidder := "u1"
	hub.BidAccepted(types.Auction{ID: "a1", CurrentBid: 150, CurrentBidderID: &bidder},
		types.Bid{ID: "b1", AuctionID: "a1", BidderID: "u1", Amount: 150})

	var msg Message
	require.NoError(t, json.Unmarshal(<-alice.Send, &msg))
	require.Equal(t, "bid_accepted", msg.Type)

	var payload bidAcceptedPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	require.Equal(t, 150, payload.CurrentBid)
	require.Equal(t, "Alice", payload.BidderName)
	require.Equal(t, "b1", payload.Bid.ID)
}

func TestHubAuctionEndedPayload(t *testing.T) {
	hub := NewHub()
	watcher := newFakeClient("u2", "Bob")
	hub.Join("a1", watcher)

	winner := "u1"
	hub.AuctionEnded(types.Auction{ID: "a1", CurrentBid: 300, WinnerID: &winner})

	var msg Message
	require.NoError(t, json.Unmarshal(<-watcher.Send, &msg))
	require.Equal(t, "auction_end", msg.Type)

	var payload auctionEndPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	require.Equal(t, "a1", payload.AuctionID)
	require.Equal(t, "u1", *payload.WinnerID)
	require.Equal(t, 300, payload.FinalPrice)
}
