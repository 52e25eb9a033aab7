package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/hoa-ledger/generic"
)

// Memory is an in-process Backend.
type Memory struct {
	mu    sync.RWMutex
	units map[generic.UnitID]map[generic.BillPeriod]generic.PeriodAggregate
}

func NewMemory() *Memory {
	return &Memory{units: make(map[generic.UnitID]map[generic.BillPeriod]generic.PeriodAggregate)}
}

func (m *Memory) Put(_ context.Context, unitID generic.UnitID, aggs []generic.PeriodAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	periods, ok := m.units[unitID]
	if !ok {
		periods = make(map[generic.BillPeriod]generic.PeriodAggregate)
		m.units[unitID] = periods
	}
	for _, agg := range aggs {
		periods[agg.Period] = agg
	}
	return nil
}

func (m *Memory) Get(_ context.Context, unitID generic.UnitID) ([]generic.PeriodAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.PeriodAggregate, 0, len(m.units[unitID]))
	for _, agg := range m.units[unitID] {
		out = append(out, agg)
	}
	sortByPeriod(out)
	return out, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units = make(map[generic.UnitID]map[generic.BillPeriod]generic.PeriodAggregate)
	return nil
}

func sortByPeriod(aggs []generic.PeriodAggregate) {
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Period.Before(aggs[j].Period) })
}

var _ Backend = (*Memory)(nil)
