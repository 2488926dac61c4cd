package types

import (
	"time"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuctionStatus is the persisted lifecycle marker of an auction. PENDING and
// ACTIVE are cached derivations of the time window; COMPLETED and CANCELLED
// are authoritative and terminal.
type AuctionStatus string

const (
	StatusPending   AuctionStatus = "PENDING"
	StatusActive    AuctionStatus = "ACTIVE"
	StatusCompleted AuctionStatus = "COMPLETED"
	StatusCancelled AuctionStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave this status.
func (s AuctionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Auction is a time-boxed competitive-bidding process attached to a single
// catalog listing. Prices are integer cents.
type Auction struct {
	ID              string        `json:"id"`
	ListingID       string        `json:"listingId"`
	SellerID        string        `json:"sellerId"`
	Title           string        `json:"title"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         time.Time     `json:"endTime"`
	StartPrice      int           `json:"startPrice"`
	MinIncrement    int           `json:"minIncrement"`
	CurrentBid      int           `json:"currentBid"`
	CurrentBidderID *string       `json:"currentBidderId,omitempty"`
	BiddersCount    int           `json:"biddersCount"`
	WinnerID        *string       `json:"winnerId,omitempty"`
	Status          AuctionStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Bid is an immutable ledger entry. Bids are never edited or deleted, only
// superseded by higher bids on the owning auction.
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	Amount    int       `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}
