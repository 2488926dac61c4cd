package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbid/auction-server/pkg/types"
)

func TestEffectiveStatus(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name   string
		status types.AuctionStatus
		now    time.Time
		want   types.AuctionStatus
	}{
		{"before_start", types.StatusPending, start.Add(-time.Minute), types.StatusPending},
		{"at_start", types.StatusPending, start, types.StatusActive},
		{"inside_window", types.StatusActive, start.Add(30 * time.Minute), types.StatusActive},
		{"stale_pending_inside_window", types.StatusPending, start.Add(30 * time.Minute), types.StatusActive},
		{"at_end", types.StatusActive, end, types.StatusCompleted},
		{"past_end_not_swept", types.StatusActive, end.Add(time.Minute), types.StatusCompleted},
		{"completed_is_authoritative", types.StatusCompleted, start.Add(-time.Minute), types.StatusCompleted},
		{"cancelled_is_authoritative", types.StatusCancelled, start.Add(30 * time.Minute), types.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := types.Auction{StartTime: start, EndTime: end, Status: tt.status}
			require.Equal(t, tt.want, EffectiveStatus(a, tt.now))
		})
	}
}
