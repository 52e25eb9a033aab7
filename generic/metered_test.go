package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hoa-ledger/generic"
)

// =============================================================================
// CONSUMPTION
// =============================================================================

func TestConsumption_Normal(t *testing.T) {
	m := generic.NewMeteredBilling()

	result, err := m.Consumption(1250, 1200)

	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Consumption)
	assert.False(t, result.Rollover)
	assert.Empty(t, result.Warnings)
}

func TestConsumption_Rollover(t *testing.T) {
	// GIVEN: A meter that wraps at 10000
	// WHEN: Current reading is below the previous one
	// THEN: Consumption is (max - previous) + current, with a warning, no error

	m := generic.MeteredBilling{MeterMax: 10000}

	result, err := m.Consumption(100, 9950)

	require.NoError(t, err)
	assert.Equal(t, int64(150), result.Consumption)
	assert.True(t, result.Rollover)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "rollover")
}

func TestConsumption_HighUsageWarning(t *testing.T) {
	m := generic.NewMeteredBilling()

	result, err := m.Consumption(450, 200)

	require.NoError(t, err)
	assert.Equal(t, int64(250), result.Consumption)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "high consumption")
}

func TestConsumption_AboveCeiling_Inconsistent(t *testing.T) {
	m := generic.NewMeteredBilling()

	_, err := m.Consumption(1500, 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInconsistentReading)
	var readingErr *generic.InconsistentReadingError
	require.ErrorAs(t, err, &readingErr)
	assert.Equal(t, int64(1500), readingErr.Consumption)
	assert.True(t, generic.IsClientError(err))
}

func TestConsumption_RolloverBeyondMax_Inconsistent(t *testing.T) {
	// Previous reading above the meter max cannot be explained by a rollover
	m := generic.MeteredBilling{MeterMax: 10000}

	_, err := m.Consumption(10, 12000)

	assert.ErrorIs(t, err, generic.ErrInconsistentReading)
}

func TestConsumption_NegativeReading_InvalidInput(t *testing.T) {
	m := generic.NewMeteredBilling()

	_, err := m.Consumption(-1, 10)

	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

// =============================================================================
// COMPOUND PENALTY
// =============================================================================

func TestCompoundPenalty_TwoMonths(t *testing.T) {
	m := generic.NewMeteredBilling()

	result, err := m.CompoundPenalty(100000, decimal.RequireFromString("0.05"), 2)

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(10250), result.Penalty)
	assert.Equal(t, generic.Cents(110250), result.TotalWithPenalty)
	assert.True(t, result.EffectiveRate.Equal(decimal.RequireFromString("0.1025")), "got %s", result.EffectiveRate)
}

func TestCompoundPenalty_NotLate_Zero(t *testing.T) {
	m := generic.NewMeteredBilling()

	for _, months := range []int{0, -3} {
		result, err := m.CompoundPenalty(100000, decimal.RequireFromString("0.05"), months)
		require.NoError(t, err)
		assert.Equal(t, generic.Cents(0), result.Penalty)
		assert.Equal(t, generic.Cents(100000), result.TotalWithPenalty)
	}
}

func TestCompoundPenalty_RoundsToMinorUnit(t *testing.T) {
	// 333 * 1.05 = 349.65 -> 350
	m := generic.NewMeteredBilling()

	result, err := m.CompoundPenalty(333, decimal.RequireFromString("0.05"), 1)

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(350), result.TotalWithPenalty)
	assert.Equal(t, generic.Cents(17), result.Penalty)
}

func TestCompoundPenalty_Deterministic(t *testing.T) {
	m := generic.NewMeteredBilling()
	rate := decimal.RequireFromString("0.0175")

	first, err := m.CompoundPenalty(987654, rate, 14)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := m.CompoundPenalty(987654, rate, 14)
		require.NoError(t, err)
		assert.Equal(t, first.Penalty, again.Penalty)
	}
}

func TestCompoundPenalty_NegativeInputs(t *testing.T) {
	m := generic.NewMeteredBilling()

	_, err := m.CompoundPenalty(-1, decimal.RequireFromString("0.05"), 1)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	_, err = m.CompoundPenalty(100, decimal.RequireFromString("-0.05"), 1)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

// =============================================================================
// MONTHS LATE
// =============================================================================

func TestMonthsLate(t *testing.T) {
	due := generic.NewTimePoint(2026, time.January, 10)

	tests := []struct {
		name string
		asOf generic.TimePoint
		want int
	}{
		{"same day", due, 0},
		{"before due", generic.NewTimePoint(2026, time.January, 5), 0},
		{"day before one month", generic.NewTimePoint(2026, time.February, 9), 0},
		{"exactly one month", generic.NewTimePoint(2026, time.February, 10), 1},
		{"after one month", generic.NewTimePoint(2026, time.February, 28), 1},
		{"across year", generic.NewTimePoint(2027, time.January, 10), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.MonthsLate(due, tt.asOf))
		})
	}
}

func TestMonthsLate_EndOfMonthDueDate(t *testing.T) {
	due := generic.NewTimePoint(2026, time.January, 31)

	assert.Equal(t, 0, generic.MonthsLate(due, generic.NewTimePoint(2026, time.February, 28)))
	assert.Equal(t, 1, generic.MonthsLate(due, generic.NewTimePoint(2026, time.March, 1)))
}

// =============================================================================
// CREDIT APPLICATION AND PENALTY RECALCULATION
// =============================================================================

func TestApplyCredit(t *testing.T) {
	m := generic.NewMeteredBilling()

	result, err := m.ApplyCredit(500, 300)
	require.NoError(t, err)
	assert.Equal(t, generic.CreditApplication{AmountDue: 200, CreditUsed: 300, CreditRemaining: 0}, result)

	result, err = m.ApplyCredit(200, 500)
	require.NoError(t, err)
	assert.Equal(t, generic.CreditApplication{AmountDue: 0, CreditUsed: 200, CreditRemaining: 300}, result)

	result, err = m.ApplyCredit(200, -50)
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(0), result.CreditUsed)
	assert.Equal(t, generic.Cents(200), result.AmountDue)
}

func TestRecalculatePenalty_FromFullBaseCharge(t *testing.T) {
	// GIVEN: A bill partly paid with a stale stored penalty
	// WHEN: Recalculated two months after the due date
	// THEN: The penalty compounds on the full base charge

	bill := generic.Bill{
		ID:            "2026-00",
		BaseCharge:    100000,
		BasePaid:      40000,
		PenaltyAmount: 999,
		DueDate:       generic.NewTimePoint(2026, time.January, 10),
	}

	penalty, err := testPenalties().RecalculatePenalty(bill, generic.NewTimePoint(2026, time.March, 10))

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(10250), penalty)
}

func TestRecalculatePenalty_GraceDaysAndPaidFloor(t *testing.T) {
	policy := testPenalties()
	policy.GraceDays = 5
	bill := generic.Bill{
		ID:          "2026-00",
		BaseCharge:  100000,
		PenaltyPaid: 7000,
		DueDate:     generic.NewTimePoint(2026, time.January, 10),
	}

	// Due + grace = Jan 15, so Feb 14 is not yet a month late
	penalty, err := policy.RecalculatePenalty(bill, generic.NewTimePoint(2026, time.February, 14))

	require.NoError(t, err)
	assert.Equal(t, generic.Cents(7000), penalty, "never below what was already paid")
}

func TestParseMajor(t *testing.T) {
	c, err := generic.ParseMajor("1250.505")
	require.NoError(t, err)
	assert.Equal(t, generic.Cents(125051), c)
	assert.Equal(t, "1250.51", c.String())

	_, err = generic.ParseMajor("12,50")
	assert.True(t, errors.Is(err, generic.ErrInvalidInput))
}
