package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"github.com/openbid/auction-server/configs"
	"github.com/openbid/auction-server/pkg/types"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrListingConflict is returned by CreateAuction when the listing already
// has a PENDING or ACTIVE auction. The store enforces this, not the caller:
// a check-then-insert in the engine would race between two creators.
var ErrListingConflict = errors.New("listing already has an open auction")

// BidUpdate carries the parameters of the conditional bid write. ExpectedBid
// is the current_bid observed by the caller; the write only lands if the row
// still matches it.
type BidUpdate struct {
	AuctionID   string
	BidderID    string
	Amount      int
	ExpectedBid int
	Now         time.Time
}

// Service represents a service that interacts with a database.
//
// All auction mutations go through conditional updates: TryAcceptBid,
// CompleteAuction and CancelAuction return a swapped flag instead of an
// error when the row no longer matches the guard, so concurrent callers
// observe a lost race rather than clobbering each other.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// USER METHODS
	GetUserByEmail(ctx context.Context, email string) (types.User, error)

	// AUCTION METHODS

	// CreateAuction inserts the auction. It returns ErrListingConflict when
	// the listing already has a PENDING or ACTIVE auction.
	CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error)
	GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error)
	ListOpenAuctions(ctx context.Context) ([]types.Auction, error)
	HasOpenAuctionForListing(ctx context.Context, listingID string) (bool, error)

	// TryAcceptBid performs the single atomic conditional update at the heart
	// of the bidding protocol. swapped=false means another writer got there
	// first or the auction left its bidding window; the row is untouched.
	TryAcceptBid(ctx context.Context, upd BidUpdate) (types.Auction, bool, error)

	// BID LEDGER METHODS
	CreateBid(ctx context.Context, bid types.Bid) (types.Bid, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]types.Bid, error)

	// LIFECYCLE METHODS
	ListExpiredActive(ctx context.Context, now time.Time) ([]types.Auction, error)
	CompleteAuction(ctx context.Context, auctionID string, now time.Time) (types.Auction, bool, error)
	CancelAuction(ctx context.Context, auctionID string) (types.Auction, bool, error)
}

type service struct {
	db *sql.DB
}

// New opens a connection pool from the loaded configuration.
func New(cfg *configs.Config) Service {
	dbConfig := cfg.Database
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)

	svc, err := NewWithDSN(dsn)
	if err != nil {
		log.Fatal("Error connecting to database: ", err)
	}
	return svc
}

// NewWithDSN opens a connection pool from a raw connection string.
func NewWithDSN(dsn string) (Service, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return &service{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS auctions (
    id                TEXT PRIMARY KEY,
    listing_id        TEXT NOT NULL,
    seller_id         TEXT NOT NULL,
    title             TEXT NOT NULL DEFAULT '',
    start_time        TIMESTAMPTZ NOT NULL,
    end_time          TIMESTAMPTZ NOT NULL,
    start_price       BIGINT NOT NULL,
    min_increment     BIGINT NOT NULL DEFAULT 1,
    current_bid       BIGINT NOT NULL,
    current_bidder_id TEXT,
    bidders_count     BIGINT NOT NULL DEFAULT 0,
    winner_id         TEXT,
    status            TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bids (
    id         TEXT PRIMARY KEY,
    auction_id TEXT NOT NULL REFERENCES auctions (id),
    bidder_id  TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
    id    TEXT PRIMARY KEY,
    name  TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL UNIQUE,
    role  TEXT NOT NULL DEFAULT 'user'
);

CREATE INDEX IF NOT EXISTS idx_auctions_listing ON auctions (listing_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_auctions_listing_open
    ON auctions (listing_id) WHERE status IN ('PENDING', 'ACTIVE');
CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions (status, end_time);
CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids (auction_id, created_at);
`

func (s *service) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error running migration: %w", err)
	}
	return nil
}

const auctionColumns = `
    "id",
    "listing_id",
    "seller_id",
    "title",
    "start_time",
    "end_time",
    "start_price",
    "min_increment",
    "current_bid",
    "current_bidder_id",
    "bidders_count",
    "winner_id",
    "status",
    "created_at",
    "updated_at"
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (types.Auction, error) {
	var auction types.Auction
	err := row.Scan(
		&auction.ID,
		&auction.ListingID,
		&auction.SellerID,
		&auction.Title,
		&auction.StartTime,
		&auction.EndTime,
		&auction.StartPrice,
		&auction.MinIncrement,
		&auction.CurrentBid,
		&auction.CurrentBidderID,
		&auction.BiddersCount,
		&auction.WinnerID,
		&auction.Status,
		&auction.CreatedAt,
		&auction.UpdatedAt,
	)
	return auction, err
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	log.Info("Disconnected from database")
	return s.db.Close()
}

func (s *service) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx,
		`SELECT "id", "name", "email", "role" FROM users WHERE "email" = $1`, email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return types.User{}, fmt.Errorf("error getting user by email: %w", err)
	}
	return user, nil
}

func (s *service) CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error) {
	query := `
        INSERT INTO auctions (
            "id", "listing_id", "seller_id", "title", "start_time", "end_time",
            "start_price", "min_increment", "current_bid", "bidders_count", "status"
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
        RETURNING ` + auctionColumns
	created, err := scanAuction(s.db.QueryRowContext(ctx, query,
		auction.ID,
		auction.ListingID,
		auction.SellerID,
		auction.Title,
		auction.StartTime,
		auction.EndTime,
		auction.StartPrice,
		auction.MinIncrement,
		auction.CurrentBid,
		auction.Status,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation; the partial index only covers open auctions.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_auctions_listing_open" {
			return types.Auction{}, fmt.Errorf("listing %s: %w", auction.ListingID, ErrListingConflict)
		}
		return types.Auction{}, fmt.Errorf("error creating auction: %w", err)
	}
	return created, nil
}

func (s *service) GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE "id" = $1`
	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Auction{}, fmt.Errorf("auction %s: %w", auctionID, ErrNotFound)
	}
	if err != nil {
		return types.Auction{}, fmt.Errorf("error getting auction by id: %w", err)
	}
	return auction, nil
}

func (s *service) ListOpenAuctions(ctx context.Context) ([]types.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE "status" IN ('PENDING', 'ACTIVE')
        ORDER BY "end_time" ASC
    `
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing open auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

func (s *service) HasOpenAuctionForListing(ctx context.Context, listingID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM auctions
            WHERE "listing_id" = $1 AND "status" IN ('PENDING', 'ACTIVE')
        )`, listingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking open auction for listing: %w", err)
	}
	return exists, nil
}

// TryAcceptBid updates the auction in a single round trip. The guard encodes
// the effective-active predicate (non-terminal status plus time window) and
// the optimistic-concurrency check on current_bid, so a row can never lose an
// update to a concurrent bidder or to the sweeper.
func (s *service) TryAcceptBid(ctx context.Context, upd BidUpdate) (types.Auction, bool, error) {
	query := `
        UPDATE auctions
        SET "current_bid" = $1,
            "current_bidder_id" = $2,
            "bidders_count" = "bidders_count" + 1,
            "status" = 'ACTIVE',
            "updated_at" = now()
        WHERE "id" = $3
          AND "status" IN ('PENDING', 'ACTIVE')
          AND "start_time" <= $4
          AND "end_time" > $4
          AND "current_bid" = $5
        RETURNING ` + auctionColumns
	auction, err := scanAuction(s.db.QueryRowContext(ctx, query,
		upd.Amount,
		upd.BidderID,
		upd.AuctionID,
		upd.Now,
		upd.ExpectedBid,
	))
	if errors.Is(err, sql.ErrNoRows) {
		// Guard did not match: stale snapshot or closed window.
		return types.Auction{}, false, nil
	}
	if err != nil {
		return types.Auction{}, false, fmt.Errorf("error accepting bid: %w", err)
	}

	log.Debugf("Auction %s updated with new bid: %d", auction.ID, auction.CurrentBid)
	return auction, true, nil
}

func (s *service) CreateBid(ctx context.Context, bid types.Bid) (types.Bid, error) {
	var created types.Bid
	query := `
        INSERT INTO bids ("id", "auction_id", "bidder_id", "amount", "created_at")
        VALUES ($1, $2, $3, $4, $5)
        RETURNING "id", "auction_id", "bidder_id", "amount", "created_at"
    `
	err := s.db.QueryRowContext(ctx, query,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt,
	).Scan(
		&created.ID,
		&created.AuctionID,
		&created.BidderID,
		&created.Amount,
		&created.CreatedAt,
	)
	if err != nil {
		return types.Bid{}, fmt.Errorf("error creating bid: %w", err)
	}
	return created, nil
}

// GetBidsForAuction returns the ledger in acceptance order. Amount is the
// ordering key: every accepted bid raised current_bid, so amounts are
// strictly increasing in acceptance order, while insert timestamps are
// captured after the conditional update and may interleave.
func (s *service) GetBidsForAuction(ctx context.Context, auctionID string) ([]types.Bid, error) {
	query := `
        SELECT "id", "auction_id", "bidder_id", "amount", "created_at"
        FROM bids
        WHERE "auction_id" = $1
        ORDER BY "amount" ASC
    `
	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("error getting bids for auction: %w", err)
	}
	defer rows.Close()

	var bids []types.Bid
	for rows.Next() {
		var bid types.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over bids: %w", err)
	}
	return bids, nil
}

func (s *service) ListExpiredActive(ctx context.Context, now time.Time) ([]types.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE "status" IN ('PENDING', 'ACTIVE') AND "end_time" <= $1
        ORDER BY "end_time" ASC
    `
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error listing expired auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

// CompleteAuction flips an expired auction to COMPLETED and freezes the
// winner. The status guard makes overlapping sweeps idempotent: the second
// sweep finds no matching row and reports swapped=false.
func (s *service) CompleteAuction(ctx context.Context, auctionID string, now time.Time) (types.Auction, bool, error) {
	query := `
        UPDATE auctions
        SET "status" = 'COMPLETED',
            "winner_id" = "current_bidder_id",
            "updated_at" = now()
        WHERE "id" = $1
          AND "status" IN ('PENDING', 'ACTIVE')
          AND "end_time" <= $2
        RETURNING ` + auctionColumns
	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Auction{}, false, nil
	}
	if err != nil {
		return types.Auction{}, false, fmt.Errorf("error completing auction: %w", err)
	}
	return auction, true, nil
}

func (s *service) CancelAuction(ctx context.Context, auctionID string) (types.Auction, bool, error) {
	query := `
        UPDATE auctions
        SET "status" = 'CANCELLED',
            "updated_at" = now()
        WHERE "id" = $1
          AND "status" IN ('PENDING', 'ACTIVE')
        RETURNING ` + auctionColumns
	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Auction{}, false, nil
	}
	if err != nil {
		return types.Auction{}, false, fmt.Errorf("error cancelling auction: %w", err)
	}
	return auction, true, nil
}
