package auction

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/openbid/auction-server/internal/database"
	"github.com/openbid/auction-server/pkg/errors"
)

// Sweeper periodically closes auctions whose end time has passed. It is a
// finalizer, not the authority: expired auctions already reject bids through
// the per-bid time check, the sweep only advances the cached status and
// announces the winner.
type Sweeper struct {
	db       database.Service
	engine   *Engine
	interval time.Duration
	clock    func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSweeper(db database.Service, engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sweeper{
		db:       db,
		engine:   engine,
		interval: interval,
		clock:    time.Now,
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Infof("Expiry sweeper started, interval %s", s.interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	log.Info("Expiry sweeper stopped")
}

// sweepOnce closes every expired auction it can and returns the number of
// auctions it completed. Failures are isolated per auction so one bad row
// never aborts the batch.
func (s *Sweeper) sweepOnce(ctx context.Context) int {
	expired, err := s.db.ListExpiredActive(ctx, s.clock())
	if err != nil {
		log.Error("Sweep failed to list expired auctions: ", err)
		return 0
	}

	closed := 0
	for _, auction := range expired {
		if _, err := s.engine.MarkCompleted(ctx, auction.ID); err != nil {
			// A concurrent sweep or cancel got there first.
			if errors.HasReason(err, errors.ReasonAlreadyTerminal) {
				continue
			}
			log.Error("Sweep failed to complete auction", "auction", auction.ID, "error", err)
			continue
		}
		closed++
	}
	return closed
}
