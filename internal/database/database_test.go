package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/openbid/auction-server/pkg/types"
)

// startPostgres spins up a disposable Postgres for the integration suite.
func startPostgres(t *testing.T) Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("auctions"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	svc, err := NewWithDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	require.NoError(t, svc.Migrate(ctx))
	return svc
}

func TestPostgresBidProtocol(t *testing.T) {
	svc := startPostgres(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Minute)
	end := start.Add(time.Hour)
	now := time.Now().UTC()

	created, err := svc.CreateAuction(ctx, types.Auction{
		ID:           "a1",
		ListingID:    "listing-1",
		SellerID:     "seller-1",
		Title:        "Vintage clock",
		StartTime:    start,
		EndTime:      end,
		StartPrice:   100,
		MinIncrement: 1,
		CurrentBid:   100,
		Status:       types.StatusActive,
	})
	require.NoError(t, err)
	require.Equal(t, 100, created.CurrentBid)
	require.Nil(t, created.CurrentBidderID)

	// The conditional update lands when the snapshot matches.
	updated, swapped, err := svc.TryAcceptBid(ctx, BidUpdate{
		AuctionID: "a1", BidderID: "b1", Amount: 150, ExpectedBid: 100, Now: now,
	})
	require.NoError(t, err)
	require.True(t, swapped)
	require.Equal(t, 150, updated.CurrentBid)
	require.Equal(t, "b1", *updated.CurrentBidderID)
	require.Equal(t, 1, updated.BiddersCount)

	// A stale snapshot loses without touching the row.
	_, swapped, err = svc.TryAcceptBid(ctx, BidUpdate{
		AuctionID: "a1", BidderID: "b2", Amount: 200, ExpectedBid: 100, Now: now,
	})
	require.NoError(t, err)
	require.False(t, swapped)

	fetched, err := svc.GetAuctionByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 150, fetched.CurrentBid)
	require.Equal(t, "b1", *fetched.CurrentBidderID)

	// Ledger append after the accepted update.
	bid, err := svc.CreateBid(ctx, types.Bid{
		ID: "bid-1", AuctionID: "a1", BidderID: "b1", Amount: 150, CreatedAt: now,
	})
	require.NoError(t, err)
	require.Equal(t, 150, bid.Amount)

	bids, err := svc.GetBidsForAuction(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 1)

	// A bid after the window never lands, whatever the cached status says.
	_, swapped, err = svc.TryAcceptBid(ctx, BidUpdate{
		AuctionID: "a1", BidderID: "b2", Amount: 500, ExpectedBid: 150, Now: end.Add(time.Second),
	})
	require.NoError(t, err)
	require.False(t, swapped)
}

func TestPostgresLifecycle(t *testing.T) {
	svc := startPostgres(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-2 * time.Hour)
	end := start.Add(time.Hour)

	bidder := "b1"
	_, err := svc.CreateAuction(ctx, types.Auction{
		ID:           "a1",
		ListingID:    "listing-1",
		SellerID:     "seller-1",
		StartTime:    start,
		EndTime:      end,
		StartPrice:   100,
		MinIncrement: 1,
		CurrentBid:   100,
		Status:       types.StatusActive,
	})
	require.NoError(t, err)

	open, err := svc.HasOpenAuctionForListing(ctx, "listing-1")
	require.NoError(t, err)
	require.True(t, open)

	// The partial unique index rejects a second open auction on the listing.
	_, err = svc.CreateAuction(ctx, types.Auction{
		ID:           "a2",
		ListingID:    "listing-1",
		SellerID:     "seller-1",
		StartTime:    start,
		EndTime:      end,
		StartPrice:   100,
		MinIncrement: 1,
		CurrentBid:   100,
		Status:       types.StatusActive,
	})
	require.ErrorIs(t, err, ErrListingConflict)

	_, swapped, err := svc.TryAcceptBid(ctx, BidUpdate{
		AuctionID: "a1", BidderID: bidder, Amount: 250, ExpectedBid: 100, Now: end.Add(-time.Minute),
	})
	require.NoError(t, err)
	require.True(t, swapped)

	expired, err := svc.ListExpiredActive(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, expired, 1)

	completed, swapped, err := svc.CompleteAuction(ctx, "a1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, swapped)
	require.Equal(t, types.StatusCompleted, completed.Status)
	require.Equal(t, bidder, *completed.WinnerID)

	// Completion is idempotent.
	_, swapped, err = svc.CompleteAuction(ctx, "a1", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, swapped)

	// Terminal auctions cannot be cancelled and free up the listing.
	_, swapped, err = svc.CancelAuction(ctx, "a1")
	require.NoError(t, err)
	require.False(t, swapped)

	open, err = svc.HasOpenAuctionForListing(ctx, "listing-1")
	require.NoError(t, err)
	require.False(t, open)

	// With a1 terminal the listing accepts a fresh auction.
	_, err = svc.CreateAuction(ctx, types.Auction{
		ID:           "a2",
		ListingID:    "listing-1",
		SellerID:     "seller-1",
		StartTime:    start,
		EndTime:      end,
		StartPrice:   100,
		MinIncrement: 1,
		CurrentBid:   100,
		Status:       types.StatusActive,
	})
	require.NoError(t, err)
}
