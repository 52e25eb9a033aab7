/*
Package cache keeps per-period bill aggregates for fast dashboard reads.

PURPOSE:
  Aggregates are derived data: they are recomputed from bills after every
  write (generic.BackgroundRefresher calls Refresh) and by the periodic
  scheduler. A stale or missing entry is never an error for readers; Get
  recomputes on a miss.

BACKENDS:
  Memory: in-process map, the default and the one tests use
  Redis:  one hash per unit, one field per bill period, shared by replicas
*/
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/hoa-ledger/generic"
)

// Backend stores aggregates keyed by unit and period.
type Backend interface {
	// Put replaces the given periods of a unit; other periods are kept.
	Put(ctx context.Context, unitID generic.UnitID, aggs []generic.PeriodAggregate) error

	// Get returns every cached period of a unit, oldest first. A unit with
	// nothing cached returns an empty slice.
	Get(ctx context.Context, unitID generic.UnitID) ([]generic.PeriodAggregate, error)

	// Clear drops every cached unit.
	Clear(ctx context.Context) error
}

// Aggregates recomputes aggregates from the bill store into a Backend.
type Aggregates struct {
	Bills   generic.BillStore
	Backend Backend
	Clock   func() time.Time
}

func NewAggregates(bills generic.BillStore, backend Backend) *Aggregates {
	return &Aggregates{Bills: bills, Backend: backend, Clock: time.Now}
}

func (a *Aggregates) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock()
}

// Refresh implements generic.AggregateRefresher. Empty periods refreshes
// every period the unit has bills in.
func (a *Aggregates) Refresh(ctx context.Context, unitID generic.UnitID, periods []generic.BillPeriod) error {
	bills, err := a.Bills.ListBills(ctx, unitID, 0)
	if err != nil {
		return fmt.Errorf("list bills for unit %s: %w", unitID, err)
	}
	aggs := generic.AggregateBills(unitID, bills, periods, a.now())
	if err := a.Backend.Put(ctx, unitID, aggs); err != nil {
		return fmt.Errorf("store aggregates for unit %s: %w", unitID, err)
	}
	return nil
}

// RefreshAll refreshes every unit. Used by the scheduler.
func (a *Aggregates) RefreshAll(ctx context.Context) (int, error) {
	units, err := a.Bills.ListUnitIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list units: %w", err)
	}
	for i, unitID := range units {
		if err := a.Refresh(ctx, unitID, nil); err != nil {
			return i, err
		}
	}
	return len(units), nil
}

// Get returns a unit's aggregates, computing them on a cache miss.
func (a *Aggregates) Get(ctx context.Context, unitID generic.UnitID) ([]generic.PeriodAggregate, error) {
	aggs, err := a.Backend.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if len(aggs) > 0 {
		return aggs, nil
	}
	if err := a.Refresh(ctx, unitID, nil); err != nil {
		return nil, err
	}
	return a.Backend.Get(ctx, unitID)
}

// Clear drops the whole cache. Used when the store is reset.
func (a *Aggregates) Clear(ctx context.Context) error {
	return a.Backend.Clear(ctx)
}

var _ generic.AggregateRefresher = (*Aggregates)(nil)
