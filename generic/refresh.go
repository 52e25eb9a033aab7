package generic

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// BACKGROUND REFRESHER - Best-effort aggregate refresh after writes
// =============================================================================

// BackgroundRefresher triggers AggregateRefresher without blocking the
// caller. Failures are logged and counted; they never fail the write that
// triggered them. A later scheduled refresh corrects the view.
type BackgroundRefresher struct {
	Refresher AggregateRefresher
	Async     bool
	Timeout   time.Duration
	Logger    *zap.Logger
	Metrics   Recorder

	wg sync.WaitGroup
}

// Trigger refreshes the given periods of a unit. With Async it returns
// immediately; use Wait to drain outstanding refreshes.
func (br *BackgroundRefresher) Trigger(unitID UnitID, periods []BillPeriod) {
	if br == nil || br.Refresher == nil {
		return
	}
	if !br.Async {
		br.run(unitID, periods)
		return
	}
	br.wg.Add(1)
	go func() {
		defer br.wg.Done()
		br.run(unitID, periods)
	}()
}

// Wait blocks until every triggered refresh has finished.
func (br *BackgroundRefresher) Wait() {
	if br == nil {
		return
	}
	br.wg.Wait()
}

func (br *BackgroundRefresher) run(unitID UnitID, periods []BillPeriod) {
	timeout := br.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := br.Refresher.Refresh(ctx, unitID, periods); err != nil {
		if br.Logger != nil {
			br.Logger.Warn("aggregate refresh failed",
				zap.String("unit_id", string(unitID)),
				zap.Int("periods", len(periods)),
				zap.Error(err),
			)
		}
		if br.Metrics != nil {
			br.Metrics.BestEffortFailure("aggregate_refresh")
		}
	}
}
