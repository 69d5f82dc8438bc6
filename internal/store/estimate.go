package store

import "math"

// Defaults for the wait-time estimator: trailing window of completed tokens
// considered per (organization, customer type), and the service time assumed
// when no history exists yet. Both are overridable through configuration.
const (
	DefaultAvgServiceWindow = 20
	DefaultServiceMinutes   = 5
	DefaultQueuePreviewSize = 10
	DefaultCounterAvgWindow = 20
)

// EstimateWaitMinutes projects the wait for a token at the given 1-based
// queue position from the trailing average service duration.
func EstimateWaitMinutes(position int, avgServiceMinutes float64) int {
	if position < 1 {
		position = 1
	}
	if avgServiceMinutes <= 0 {
		avgServiceMinutes = DefaultServiceMinutes
	}
	return int(math.Round(float64(position) * avgServiceMinutes))
}
