package auction

import (
	"time"

	"github.com/openbid/auction-server/pkg/types"
)

// EffectiveStatus derives the read-time status of an auction from the wall
// clock. The persisted status is a cache that the sweeper advances lazily;
// only COMPLETED and CANCELLED are authoritative.
func EffectiveStatus(a types.Auction, now time.Time) types.AuctionStatus {
	if a.Status.Terminal() {
		return a.Status
	}
	switch {
	case now.Before(a.StartTime):
		return types.StatusPending
	case now.Before(a.EndTime):
		return types.StatusActive
	default:
		return types.StatusCompleted
	}
}
