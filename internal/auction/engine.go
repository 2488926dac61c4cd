package auction

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/openbid/auction-server/internal/database"
	"github.com/openbid/auction-server/pkg/errors"
	"github.com/openbid/auction-server/pkg/types"
)

// Notifier receives the events the core emits after successful mutations.
// Rejections are unicast by the transport layer and never flow through here.
type Notifier interface {
	BidAccepted(auction types.Auction, bid types.Bid)
	AuctionEnded(auction types.Auction)
}

type noopNotifier struct{}

func (noopNotifier) BidAccepted(types.Auction, types.Bid) {}
func (noopNotifier) AuctionEnded(types.Auction)           {}

type multiNotifier []Notifier

func (m multiNotifier) BidAccepted(a types.Auction, b types.Bid) {
	for _, n := range m {
		n.BidAccepted(a, b)
	}
}

func (m multiNotifier) AuctionEnded(a types.Auction) {
	for _, n := range m {
		n.AuctionEnded(a)
	}
}

// CombineNotifiers fans events out to every given notifier in order.
func CombineNotifiers(notifiers ...Notifier) Notifier {
	if len(notifiers) == 0 {
		return noopNotifier{}
	}
	return multiNotifier(notifiers)
}

// Engine owns the bid acceptance protocol and the administrative lifecycle
// operations. It never holds in-process locks across store calls; correctness
// rests on the store's conditional updates.
type Engine struct {
	db               database.Service
	notifier         Notifier
	defaultIncrement int
	clock            func() time.Time
}

func NewEngine(db database.Service, notifier Notifier, defaultIncrement int) *Engine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if defaultIncrement <= 0 {
		defaultIncrement = 1
	}
	return &Engine{
		db:               db,
		notifier:         notifier,
		defaultIncrement: defaultIncrement,
		clock:            time.Now,
	}
}

type CreateAuctionParams struct {
	ListingID    string    `json:"listingId"`
	SellerID     string    `json:"sellerId"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	StartPrice   int       `json:"startPrice"`
	MinIncrement int       `json:"minIncrement"`
}

// CreateAuction validates the window and price, enforces the one-live-auction
// per listing rule and persists the new aggregate.
func (e *Engine) CreateAuction(ctx context.Context, params CreateAuctionParams) (types.Auction, error) {
	if !params.StartTime.Before(params.EndTime) {
		return types.Auction{}, errors.New(errors.ReasonInvalidWindow, "auction start time must precede end time")
	}
	if params.StartPrice <= 0 {
		return types.Auction{}, errors.New(errors.ReasonInvalidPrice, "start price must be positive")
	}

	taken, err := e.db.HasOpenAuctionForListing(ctx, params.ListingID)
	if err != nil {
		return types.Auction{}, errors.Wrap(err, "failed to check listing availability")
	}
	if taken {
		return types.Auction{}, errors.Newf(errors.ReasonListingAuctioned, "listing %s is already under auction", params.ListingID)
	}

	increment := params.MinIncrement
	if increment <= 0 {
		increment = e.defaultIncrement
	}

	auction := types.Auction{
		ID:           uuid.NewString(),
		ListingID:    params.ListingID,
		SellerID:     params.SellerID,
		Title:        params.Title,
		StartTime:    params.StartTime,
		EndTime:      params.EndTime,
		StartPrice:   params.StartPrice,
		MinIncrement: increment,
		CurrentBid:   params.StartPrice,
		Status:       types.StatusPending,
	}
	if eff := EffectiveStatus(auction, e.clock()); eff == types.StatusActive {
		auction.Status = types.StatusActive
	}

	created, err := e.db.CreateAuction(ctx, auction)
	if err != nil {
		// The availability check above is only a fast path; the store's
		// uniqueness guarantee catches concurrent creators.
		if stderrors.Is(err, database.ErrListingConflict) {
			return types.Auction{}, errors.Newf(errors.ReasonListingAuctioned, "listing %s is already under auction", params.ListingID)
		}
		return types.Auction{}, errors.Wrap(err, "failed to create auction")
	}

	log.Infof("Auction %s created for listing %s", created.ID, created.ListingID)
	return created, nil
}

// PlaceBid runs the acceptance protocol for one submission. The predicate is
// evaluated against a snapshot, then re-checked atomically by the store's
// conditional update; a submission whose snapshot went stale is rejected with
// race_lost and must be resubmitted by the caller against fresh state.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int) (types.Bid, types.Auction, error) {
	auction, err := e.db.GetAuctionByID(ctx, auctionID)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			return types.Bid{}, types.Auction{}, errors.Newf(errors.ReasonAuctionNotFound, "auction %s not found", auctionID)
		}
		return types.Bid{}, types.Auction{}, errors.Wrap(err, "failed to load auction")
	}

	now := e.clock()
	if auction.Status.Terminal() {
		return types.Bid{}, types.Auction{}, errors.New(errors.ReasonAuctionNotActive, "auction is no longer active")
	}
	if now.Before(auction.StartTime) {
		return types.Bid{}, types.Auction{}, errors.New(errors.ReasonAuctionNotActive, "auction has not started yet")
	}
	if !now.Before(auction.EndTime) {
		// Authoritative even when the sweeper has not flipped the status yet.
		return types.Bid{}, types.Auction{}, errors.New(errors.ReasonAuctionExpired, "auction has ended")
	}
	if bidderID == auction.SellerID {
		return types.Bid{}, types.Auction{}, errors.New(errors.ReasonSelfBid, "sellers may not bid on their own listing")
	}

	if auction.CurrentBidderID == nil {
		if amount <= auction.StartPrice {
			return types.Bid{}, types.Auction{}, errors.Newf(errors.ReasonBidTooLow,
				"bid must exceed the starting price of %d", auction.StartPrice)
		}
	} else if amount < auction.CurrentBid+auction.MinIncrement {
		return types.Bid{}, types.Auction{}, errors.Newf(errors.ReasonBidTooLow,
			"bid must be at least %d", auction.CurrentBid+auction.MinIncrement)
	}

	updated, swapped, err := e.db.TryAcceptBid(ctx, database.BidUpdate{
		AuctionID:   auctionID,
		BidderID:    bidderID,
		Amount:      amount,
		ExpectedBid: auction.CurrentBid,
		Now:         now,
	})
	if err != nil {
		return types.Bid{}, types.Auction{}, errors.Wrap(err, "failed to apply bid")
	}
	if !swapped {
		return types.Bid{}, types.Auction{}, errors.New(errors.ReasonRaceLost, "another bid was accepted first, resubmit against the new price")
	}

	// Ledger write happens strictly after the conditional update so a bid
	// that lost the race can never appear in history.
	bid := types.Bid{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now.UTC(),
	}
	if bid, err = e.db.CreateBid(ctx, bid); err != nil {
		log.Error("Accepted bid could not be written to the ledger", "auction", auctionID, "error", err)
		return types.Bid{}, types.Auction{}, errors.Wrap(err, "failed to record bid")
	}

	log.Debugf("Bid %s accepted on auction %s at %d", bid.ID, auctionID, amount)
	e.notifier.BidAccepted(updated, bid)
	return bid, updated, nil
}

// GetAuction returns a snapshot with the effective status applied.
func (e *Engine) GetAuction(ctx context.Context, auctionID string) (types.Auction, error) {
	auction, err := e.db.GetAuctionByID(ctx, auctionID)
	if err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			return types.Auction{}, errors.Newf(errors.ReasonAuctionNotFound, "auction %s not found", auctionID)
		}
		return types.Auction{}, errors.Wrap(err, "failed to load auction")
	}
	auction.Status = EffectiveStatus(auction, e.clock())
	return auction, nil
}

// GetBids returns the ledger for an auction in acceptance order.
func (e *Engine) GetBids(ctx context.Context, auctionID string) ([]types.Bid, error) {
	if _, err := e.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	bids, err := e.db.GetBidsForAuction(ctx, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load bids")
	}
	return bids, nil
}

// MarkCompleted finalizes an auction whose end time has passed, freezing the
// winner, and emits the auction-ended event. A call that finds the auction
// already terminal reports already_terminal and changes nothing, which makes
// overlapping sweeps safe.
func (e *Engine) MarkCompleted(ctx context.Context, auctionID string) (types.Auction, error) {
	completed, swapped, err := e.db.CompleteAuction(ctx, auctionID, e.clock())
	if err != nil {
		return types.Auction{}, errors.Wrap(err, "failed to complete auction")
	}
	if !swapped {
		return types.Auction{}, errors.New(errors.ReasonAlreadyTerminal, "auction is already completed or cancelled")
	}

	if completed.WinnerID != nil {
		log.Infof("Auction %s completed, winner %s at %d", completed.ID, *completed.WinnerID, completed.CurrentBid)
	} else {
		log.Infof("Auction %s completed with no bids", completed.ID)
	}
	e.notifier.AuctionEnded(completed)
	return completed, nil
}

// CancelAuction administratively voids a PENDING or ACTIVE auction. The
// terminal statuses are unreachable from here on and the listing becomes
// bookable again.
func (e *Engine) CancelAuction(ctx context.Context, auctionID string) (types.Auction, error) {
	if _, err := e.db.GetAuctionByID(ctx, auctionID); err != nil {
		if stderrors.Is(err, database.ErrNotFound) {
			return types.Auction{}, errors.Newf(errors.ReasonAuctionNotFound, "auction %s not found", auctionID)
		}
		return types.Auction{}, errors.Wrap(err, "failed to load auction")
	}

	cancelled, swapped, err := e.db.CancelAuction(ctx, auctionID)
	if err != nil {
		return types.Auction{}, errors.Wrap(err, "failed to cancel auction")
	}
	if !swapped {
		return types.Auction{}, errors.New(errors.ReasonInvalidTransition, "auction is already completed or cancelled")
	}

	log.Infof("Auction %s cancelled", auctionID)
	return cancelled, nil
}
