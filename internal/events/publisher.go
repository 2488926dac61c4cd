package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/openbid/auction-server/pkg/types"
)

// BidEvent is the payload published when a bid is accepted. Downstream
// consumers (archival, analytics) subscribe to auctions.bid.>.
type BidEvent struct {
	AuctionID  string    `json:"auction_id"`
	BidID      string    `json:"bid_id"`
	BidderID   string    `json:"bidder_id"`
	Amount     int       `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EndedEvent is the payload published when an auction completes. It is the
// sole integration point for any downstream order-creation flow.
type EndedEvent struct {
	AuctionID  string    `json:"auction_id"`
	WinnerID   *string   `json:"winner_id,omitempty"`
	FinalPrice int       `json:"final_price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher forwards core events onto NATS. Publish failures are logged and
// never fail the bid path.
type Publisher struct {
	nc *nats.Conn
}

func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("auction-server"))
	if err != nil {
		return nil, fmt.Errorf("error connecting to nats: %w", err)
	}
	log.Infof("Connected to NATS at %s", url)
	return &Publisher{nc: nc}, nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}

func (p *Publisher) BidAccepted(auction types.Auction, bid types.Bid) {
	p.publish(fmt.Sprintf("auctions.bid.%s", auction.ID), BidEvent{
		AuctionID:  auction.ID,
		BidID:      bid.ID,
		BidderID:   bid.BidderID,
		Amount:     bid.Amount,
		OccurredAt: bid.CreatedAt,
	})
}

func (p *Publisher) AuctionEnded(auction types.Auction) {
	p.publish(fmt.Sprintf("auctions.ended.%s", auction.ID), EndedEvent{
		AuctionID:  auction.ID,
		WinnerID:   auction.WinnerID,
		FinalPrice: auction.CurrentBid,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("Error marshalling event", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warnf("Failed to publish event to %s: %v", subject, err)
	}
}
