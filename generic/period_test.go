package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/generic"
)

func TestFiscalConfig_CalendarYear(t *testing.T) {
	fc := generic.DefaultFiscalConfig
	date := generic.NewTimePoint(2026, time.March, 15)

	assert.Equal(t, 2026, fc.FiscalYearOf(date))
	assert.Equal(t, 2, fc.FiscalMonthOf(date))
	assert.Equal(t, generic.BillID("2026-02"), fc.PeriodOf(date).BillID())
}

func TestFiscalConfig_JulyStart(t *testing.T) {
	// Fiscal year 2026 runs 2025-07-01 .. 2026-06-30
	fc := generic.FiscalConfig{StartMonth: time.July}

	assert.Equal(t, 2026, fc.FiscalYearOf(generic.NewTimePoint(2025, time.July, 1)))
	assert.Equal(t, 0, fc.FiscalMonthOf(generic.NewTimePoint(2025, time.July, 1)))
	assert.Equal(t, 2026, fc.FiscalYearOf(generic.NewTimePoint(2026, time.June, 30)))
	assert.Equal(t, 11, fc.FiscalMonthOf(generic.NewTimePoint(2026, time.June, 30)))
	assert.Equal(t, 2027, fc.FiscalYearOf(generic.NewTimePoint(2026, time.July, 1)))

	year := fc.YearPeriod(2026)
	assert.Equal(t, generic.NewTimePoint(2025, time.July, 1), year.Start)
	assert.Equal(t, generic.NewTimePoint(2026, time.June, 30), year.End)

	assert.Equal(t, generic.NewTimePoint(2026, time.February, 1), fc.MonthStart(2026, 7))
	month := fc.MonthPeriod(2026, 7)
	assert.Equal(t, generic.NewTimePoint(2026, time.February, 28), month.End)
}

func TestParseBillPeriod(t *testing.T) {
	p, err := generic.ParseBillPeriod("2026-03")
	require.NoError(t, err)
	assert.Equal(t, generic.BillPeriod{FiscalYear: 2026, FiscalMonth: 3}, p)
	assert.Equal(t, "2026-03", p.String())

	for _, bad := range []string{"2026-12", "2026-3", "26-03", "2026/03", ""} {
		_, err := generic.ParseBillPeriod(bad)
		assert.ErrorIs(t, err, generic.ErrInvalidInput, bad)
	}
}

func TestBillPeriod_Before(t *testing.T) {
	assert.True(t, generic.BillPeriod{FiscalYear: 2025, FiscalMonth: 11}.Before(generic.BillPeriod{FiscalYear: 2026}))
	assert.True(t, generic.BillPeriod{FiscalYear: 2026, FiscalMonth: 1}.Before(generic.BillPeriod{FiscalYear: 2026, FiscalMonth: 2}))
	assert.False(t, generic.BillPeriod{FiscalYear: 2026}.Before(generic.BillPeriod{FiscalYear: 2026}))
}

func TestTimePoint_JSON(t *testing.T) {
	tp := generic.NewTimePoint(2026, time.February, 15)

	data, err := json.Marshal(tp)
	require.NoError(t, err)
	assert.Equal(t, `"2026-02-15"`, string(data))

	var back generic.TimePoint
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, tp.Equal(back))

	var empty generic.TimePoint
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))
	assert.True(t, empty.IsZero())
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

func TestAggregateBills(t *testing.T) {
	paid := waterBill(0, 50000, 0)
	paid.ApplyPayment(generic.PaymentEntry{Amount: 50000, BaseChargePaid: 50000, TransactionID: "tx-1"})
	open := waterBill(1, 70000, 3500)

	aggs := generic.AggregateBills(testUnit, []generic.Bill{open, paid}, nil, testNow)

	require.Len(t, aggs, 2)
	assert.Equal(t, paid.Period(), aggs[0].Period)
	assert.Equal(t, 1, aggs[0].PaidCount)
	assert.Equal(t, generic.Cents(0), aggs[0].Outstanding)
	assert.Equal(t, generic.Cents(3500), aggs[1].Penalties)
	assert.Equal(t, generic.Cents(73500), aggs[1].Outstanding)
}

func TestAggregateBills_RequestedPeriodsOnly(t *testing.T) {
	want := generic.BillPeriod{FiscalYear: 2026, FiscalMonth: 5}

	aggs := generic.AggregateBills(testUnit, []generic.Bill{waterBill(0, 100, 0)}, []generic.BillPeriod{want}, testNow)

	require.Len(t, aggs, 1)
	assert.Equal(t, want, aggs[0].Period)
	assert.Equal(t, 0, aggs[0].BillCount)
}

func TestComputeUnitBalance(t *testing.T) {
	bills := []generic.Bill{waterBill(0, 50000, 2000), waterBill(1, 70000, 0)}

	ub := generic.ComputeUnitBalance(testUnit, bills, 130000)

	assert.Equal(t, generic.Cents(120000), ub.OutstandingBase)
	assert.Equal(t, generic.Cents(2000), ub.OutstandingPenalty)
	assert.Equal(t, generic.Cents(122000), ub.Outstanding)
	assert.Equal(t, generic.Cents(0), ub.NetDue)
	assert.Equal(t, 2, ub.UnpaidBills)
}
