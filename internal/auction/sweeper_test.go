package auction

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbid/auction-server/internal/database"
	"github.com/openbid/auction-server/pkg/types"
)

// recordingNotifier captures emitted events for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	ended []types.Auction
	bids  []types.Bid
}

func (r *recordingNotifier) BidAccepted(_ types.Auction, bid types.Bid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids = append(r.bids, bid)
}

func (r *recordingNotifier) AuctionEnded(a types.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, a)
}

func (r *recordingNotifier) endedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ended)
}

// failingStore forces CompleteAuction errors for one auction id.
type failingStore struct {
	database.Service
	failID string
}

func (f *failingStore) CompleteAuction(ctx context.Context, auctionID string, now time.Time) (types.Auction, bool, error) {
	if auctionID == f.failID {
		return types.Auction{}, false, fmt.Errorf("simulated store outage")
	}
	return f.Service.CompleteAuction(ctx, auctionID, now)
}

func newSweepFixture(t *testing.T, now time.Time) (*Sweeper, *Engine, *database.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := database.NewMemoryStore()
	notifier := &recordingNotifier{}
	engine := NewEngine(store, notifier, 1)
	engine.clock = func() time.Time { return now }
	sweeper := NewSweeper(store, engine, time.Second)
	sweeper.clock = engine.clock
	return sweeper, engine, store, notifier
}

func seedAuction(t *testing.T, store *database.MemoryStore, id string, end time.Time, bidder string) {
	t.Helper()
	a := types.Auction{
		ID:           id,
		ListingID:    "listing-" + id,
		SellerID:     "seller-1",
		StartTime:    end.Add(-time.Hour),
		EndTime:      end,
		StartPrice:   100,
		MinIncrement: 1,
		CurrentBid:   100,
		Status:       types.StatusActive,
	}
	if bidder != "" {
		a.CurrentBid = 250
		a.CurrentBidderID = &bidder
	}
	_, err := store.CreateAuction(context.Background(), a)
	require.NoError(t, err)
}

func TestSweepCompletesExpiredAuctions(t *testing.T) {
	now := testStart.Add(time.Hour)
	sweeper, _, store, notifier := newSweepFixture(t, now)

	seedAuction(t, store, "expired", now.Add(-time.Minute), "bidder-1")
	seedAuction(t, store, "running", now.Add(time.Minute), "")

	require.Equal(t, 1, sweeper.sweepOnce(context.Background()))
	require.Equal(t, 1, notifier.endedCount())

	completed, err := store.GetAuctionByID(context.Background(), "expired")
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, completed.Status)
	require.Equal(t, "bidder-1", *completed.WinnerID)
	require.Equal(t, 250, completed.CurrentBid)

	running, err := store.GetAuctionByID(context.Background(), "running")
	require.NoError(t, err)
	require.Equal(t, types.StatusActive, running.Status)
}

func TestSweepCompletesAuctionWithNoBids(t *testing.T) {
	now := testStart.Add(time.Hour)
	sweeper, _, store, notifier := newSweepFixture(t, now)
	seedAuction(t, store, "no-bids", now.Add(-time.Minute), "")

	require.Equal(t, 1, sweeper.sweepOnce(context.Background()))
	require.Equal(t, 1, notifier.endedCount())

	completed, err := store.GetAuctionByID(context.Background(), "no-bids")
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, completed.Status)
	require.Nil(t, completed.WinnerID)
}

// A second sweep over an already completed auction must not mutate anything
// or emit a duplicate event.
func TestSweepIsIdempotent(t *testing.T) {
	now := testStart.Add(time.Hour)
	sweeper, _, store, notifier := newSweepFixture(t, now)
	seedAuction(t, store, "expired", now.Add(-time.Minute), "bidder-1")

	require.Equal(t, 1, sweeper.sweepOnce(context.Background()))
	require.Equal(t, 0, sweeper.sweepOnce(context.Background()))
	require.Equal(t, 1, notifier.endedCount())
}

// One failing auction must not abort the rest of the batch.
func TestSweepIsolatesFailures(t *testing.T) {
	now := testStart.Add(time.Hour)
	store := database.NewMemoryStore()
	notifier := &recordingNotifier{}
	wrapped := &failingStore{Service: store, failID: "broken"}
	engine := NewEngine(wrapped, notifier, 1)
	engine.clock = func() time.Time { return now }
	sweeper := NewSweeper(wrapped, engine, time.Second)
	sweeper.clock = engine.clock

	seedAuction(t, store, "broken", now.Add(-2*time.Minute), "")
	seedAuction(t, store, "fine", now.Add(-time.Minute), "bidder-1")

	require.Equal(t, 1, sweeper.sweepOnce(context.Background()))
	require.Equal(t, 1, notifier.endedCount())

	fine, err := store.GetAuctionByID(context.Background(), "fine")
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, fine.Status)
}

func TestSweeperStartStop(t *testing.T) {
	now := testStart.Add(time.Hour)
	sweeper, _, store, notifier := newSweepFixture(t, now)
	sweeper.interval = 10 * time.Millisecond
	seedAuction(t, store, "expired", now.Add(-time.Minute), "bidder-1")

	sweeper.Start()
	require.Eventually(t, func() bool {
		return notifier.endedCount() == 1
	}, time.Second, 10*time.Millisecond)
	sweeper.Stop()
}
