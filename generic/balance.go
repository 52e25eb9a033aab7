/*
balance.go - Derived views over bills and credit

PURPOSE:
  Bills and the credit document are the source of truth. Everything in
  this file is computed from them and can be thrown away and rebuilt: the
  per-period aggregates kept by the cache, and the unit balance shown by
  the API.

KEY CONCEPTS:
  PeriodAggregate: billed / paid / outstanding for one bill period
  UnitBalance:     outstanding totals for a unit, net of its credit

SEE ALSO:
  - cache/: Stores PeriodAggregates and rebuilds them on Refresh
  - refresh.go: Triggers rebuilds after payments and deletions
*/
package generic

import (
	"sort"
	"time"
)

// =============================================================================
// PERIOD AGGREGATE
// =============================================================================

// PeriodAggregate summarizes the bills of one unit in one period.
type PeriodAggregate struct {
	UnitID      UnitID
	Period      BillPeriod
	Billed      Cents // Base charges
	Penalties   Cents
	Paid        Cents
	Outstanding Cents
	BillCount   int
	PaidCount   int
	UpdatedAt   time.Time
}

// AggregateBills groups bills by period. When periods is non-empty only
// those periods are returned (periods without bills yield zero aggregates).
func AggregateBills(unitID UnitID, bills []Bill, periods []BillPeriod, at time.Time) []PeriodAggregate {
	byPeriod := make(map[BillPeriod]*PeriodAggregate)
	var order []BillPeriod

	get := func(p BillPeriod) *PeriodAggregate {
		if agg, ok := byPeriod[p]; ok {
			return agg
		}
		agg := &PeriodAggregate{UnitID: unitID, Period: p, UpdatedAt: at}
		byPeriod[p] = agg
		order = append(order, p)
		return agg
	}

	want := make(map[BillPeriod]bool, len(periods))
	for _, p := range periods {
		want[p] = true
		get(p)
	}

	for _, b := range bills {
		p := b.Period()
		if len(want) > 0 && !want[p] {
			continue
		}
		agg := get(p)
		agg.Billed += b.BaseCharge
		agg.Penalties += b.PenaltyAmount
		agg.Paid += b.PaidAmount()
		agg.Outstanding += b.UnpaidTotal()
		agg.BillCount++
		if b.Status == BillPaid {
			agg.PaidCount++
		}
	}

	out := make([]PeriodAggregate, 0, len(order))
	for _, p := range order {
		out = append(out, *byPeriod[p])
	}
	sortAggregates(out)
	return out
}

func sortAggregates(aggs []PeriodAggregate) {
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Period.Before(aggs[j].Period) })
}

// =============================================================================
// UNIT BALANCE - What the owner sees
// =============================================================================

// UnitBalance is the outstanding position of a unit.
type UnitBalance struct {
	UnitID             UnitID
	OutstandingBase    Cents
	OutstandingPenalty Cents
	Outstanding        Cents
	Credit             Cents
	NetDue             Cents // Outstanding minus credit, never negative
	UnpaidBills        int
}

// ComputeUnitBalance derives the position from the unit's bills and credit.
func ComputeUnitBalance(unitID UnitID, bills []Bill, credit Cents) UnitBalance {
	ub := UnitBalance{UnitID: unitID, Credit: credit}
	for _, b := range bills {
		if b.UnpaidTotal() == 0 {
			continue
		}
		ub.OutstandingBase += b.UnpaidBase()
		ub.OutstandingPenalty += b.UnpaidPenalty()
		ub.Outstanding += b.UnpaidTotal()
		ub.UnpaidBills++
	}
	ub.NetDue = NonNegative(ub.Outstanding - credit)
	return ub
}
