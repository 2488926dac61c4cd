package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openbid/auction-server/pkg/types"
)

// MemoryStore is a concurrency-safe in-memory implementation of Service used
// by unit tests and local development. All conditional updates run under one
// lock, which gives the same atomicity the Postgres guards provide.
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]types.Auction
	bids     map[string][]types.Bid // key: auctionID -> bids in acceptance order
	users    map[string]types.User  // key: email
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]types.Auction),
		bids:     make(map[string][]types.Bid),
		users:    make(map[string]types.User),
	}
}

func (m *MemoryStore) Health() map[string]string {
	return map[string]string{"status": "up", "message": "in-memory store"}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Migrate(ctx context.Context) error { return nil }

// AddUser seeds a user record. Intended for tests and dev fixtures.
func (m *MemoryStore) AddUser(user types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Email] = user
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[email]
	if !ok {
		return types.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return user, nil
}

func (m *MemoryStore) CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.auctions[auction.ID]; ok {
		return types.Auction{}, fmt.Errorf("auction %s already exists", auction.ID)
	}
	// The listing check runs under the same lock as the insert, matching the
	// partial unique index the Postgres store relies on.
	for _, existing := range m.auctions {
		if existing.ListingID == auction.ListingID && !existing.Status.Terminal() {
			return types.Auction{}, fmt.Errorf("listing %s: %w", auction.ListingID, ErrListingConflict)
		}
	}
	now := time.Now().UTC()
	auction.CreatedAt = now
	auction.UpdatedAt = now
	m.auctions[auction.ID] = auction
	return auction, nil
}

func (m *MemoryStore) GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	auction, ok := m.auctions[auctionID]
	if !ok {
		return types.Auction{}, fmt.Errorf("auction %s: %w", auctionID, ErrNotFound)
	}
	return auction, nil
}

func (m *MemoryStore) ListOpenAuctions(ctx context.Context) ([]types.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var auctions []types.Auction
	for _, auction := range m.auctions {
		if !auction.Status.Terminal() {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

func (m *MemoryStore) HasOpenAuctionForListing(ctx context.Context, listingID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, auction := range m.auctions {
		if auction.ListingID == listingID && !auction.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

// TryAcceptBid mirrors the Postgres guard: non-terminal status, open time
// window, and current bid still matching the caller's snapshot.
func (m *MemoryStore) TryAcceptBid(ctx context.Context, upd BidUpdate) (types.Auction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	auction, ok := m.auctions[upd.AuctionID]
	if !ok {
		return types.Auction{}, false, nil
	}
	if auction.Status.Terminal() ||
		upd.Now.Before(auction.StartTime) ||
		!upd.Now.Before(auction.EndTime) ||
		auction.CurrentBid != upd.ExpectedBid {
		return types.Auction{}, false, nil
	}

	bidder := upd.BidderID
	auction.CurrentBid = upd.Amount
	auction.CurrentBidderID = &bidder
	auction.BiddersCount++
	auction.Status = types.StatusActive
	auction.UpdatedAt = time.Now().UTC()
	m.auctions[upd.AuctionID] = auction
	return auction, true, nil
}

func (m *MemoryStore) CreateBid(ctx context.Context, bid types.Bid) (types.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.auctions[bid.AuctionID]; !ok {
		return types.Bid{}, fmt.Errorf("auction %s: %w", bid.AuctionID, ErrNotFound)
	}
	m.bids[bid.AuctionID] = append(m.bids[bid.AuctionID], bid)
	return bid, nil
}

func (m *MemoryStore) GetBidsForAuction(ctx context.Context, auctionID string) ([]types.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Amount orders the ledger by acceptance, insert order does not.
	bids := append([]types.Bid(nil), m.bids[auctionID]...)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Amount < bids[j].Amount })
	return bids, nil
}

func (m *MemoryStore) ListExpiredActive(ctx context.Context, now time.Time) ([]types.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var auctions []types.Auction
	for _, auction := range m.auctions {
		if !auction.Status.Terminal() && !now.Before(auction.EndTime) {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

func (m *MemoryStore) CompleteAuction(ctx context.Context, auctionID string, now time.Time) (types.Auction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	auction, ok := m.auctions[auctionID]
	if !ok || auction.Status.Terminal() || now.Before(auction.EndTime) {
		return types.Auction{}, false, nil
	}

	auction.Status = types.StatusCompleted
	auction.WinnerID = auction.CurrentBidderID
	auction.UpdatedAt = time.Now().UTC()
	m.auctions[auctionID] = auction
	return auction, true, nil
}

func (m *MemoryStore) CancelAuction(ctx context.Context, auctionID string) (types.Auction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	auction, ok := m.auctions[auctionID]
	if !ok || auction.Status.Terminal() {
		return types.Auction{}, false, nil
	}

	auction.Status = types.StatusCancelled
	auction.UpdatedAt = time.Now().UTC()
	m.auctions[auctionID] = auction
	return auction, true, nil
}
