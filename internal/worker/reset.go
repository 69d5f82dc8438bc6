package worker

import (
	"context"
	"log"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/store"
)

// RunDailyReset sweeps queue settings on a ticker and zeroes counters whose
// configured reset time has passed. Blocks until ctx is cancelled; run it in
// its own goroutine.
func RunDailyReset(ctx context.Context, admin store.AdminStore, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			count, err := admin.ResetDueDailyCounters(sweepCtx, time.Now())
			cancel()
			if err != nil {
				log.Printf("daily reset error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("daily reset zeroed %d queue counters", count)
			}
		}
	}
}
