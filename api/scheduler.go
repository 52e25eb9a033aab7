/*
scheduler.go - Periodic penalty and aggregate refresh

PURPOSE:
  Late fees grow with time, not only with writes. The scheduler
  periodically recomputes the stored penalties of every open water bill
  and rebuilds the per-period aggregate cache for every unit, so reads
  between payments see current figures.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - A failing unit is logged and skipped; the others still refresh
  - Results of the last run are kept for the admin endpoint

CONFIGURATION:
  - refresh.interval: How often to run (0 disables the scheduler)

USAGE:
  scheduler := NewRefreshScheduler(app, cfg.Refresh.Interval)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRefresh endpoint (manual run)
  - water/service.go: RecalculateAll
  - cache/cache.go: RefreshAll
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/factory"
	"github.com/warp/hoa-ledger/generic"
)

// RefreshRun summarizes one refresh pass.
type RefreshRun struct {
	StartedAt       time.Time `json:"started_at"`
	AsOf            string    `json:"as_of"`
	UnitsChecked    int       `json:"units_checked"`
	PenaltiesChange int       `json:"penalties_changed"`
	UnitsAggregated int       `json:"units_aggregated"`
	Errors          []string  `json:"errors,omitempty"`
}

// RunRefresh recomputes penalties as of asOf and rebuilds every unit's
// aggregates. Errors are collected; a partial run is still reported.
func RunRefresh(ctx context.Context, app *factory.App, asOf generic.TimePoint) (RefreshRun, error) {
	run := RefreshRun{StartedAt: time.Now().UTC(), AsOf: asOf.String()}

	refreshes, penaltyErr := app.Water.RecalculateAll(ctx, asOf)
	run.UnitsChecked = len(refreshes)
	for _, r := range refreshes {
		run.PenaltiesChange += len(r.Changes)
	}

	n, aggErr := app.Aggregates.RefreshAll(ctx)
	run.UnitsAggregated = n

	err := errors.Join(penaltyErr, aggErr)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
	}
	return run, err
}

// RefreshScheduler runs RunRefresh on an interval.
type RefreshScheduler struct {
	App           *factory.App
	CheckInterval time.Duration
	Enabled       bool
	Logger        *zap.Logger

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun *RefreshRun
}

// NewRefreshScheduler creates a scheduler. A zero interval disables it.
func NewRefreshScheduler(app *factory.App, interval time.Duration) *RefreshScheduler {
	log := app.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &RefreshScheduler{
		App:           app,
		CheckInterval: interval,
		Enabled:       interval > 0,
		Logger:        log.Named("scheduler"),
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.Info("scheduler started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	ticker := rs.ticker
	rs.ticker = nil
	rs.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.Logger.Info("scheduler stopped")
	}
}

// LastRun returns the result of the most recent pass, or nil.
func (rs *RefreshScheduler) LastRun() *RefreshRun {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastRun
}

func (rs *RefreshScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RefreshScheduler) checkAndProcess() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-rs.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	run, err := RunRefresh(ctx, rs.App, generic.Today())
	fields := []zap.Field{
		zap.Int("units_checked", run.UnitsChecked),
		zap.Int("penalties_changed", run.PenaltiesChange),
		zap.Int("units_aggregated", run.UnitsAggregated),
	}
	if err != nil {
		rs.Logger.Warn("refresh pass finished with errors", append(fields, zap.Error(err))...)
	} else {
		rs.Logger.Info("refresh pass finished", fields...)
	}

	rs.mu.Lock()
	rs.lastRun = &run
	rs.mu.Unlock()
}
