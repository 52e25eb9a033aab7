/*
metered.go - Consumption, penalty and credit calculators

PURPOSE:
  Pure arithmetic shared by every billing flow. Nothing here reads a clock,
  touches storage, or keeps state between calls; limits are plain fields so
  a domain service can embed a configured MeteredBilling value.

KEY FORMULAS:
  Consumption:  current - previous, or (MeterMax - previous) + current
                when the meter rolled over
  Penalty:      round(principal * (1 + monthlyRate)^monthsLate) - principal
  Credit:       used = min(amountDue, available)

SEE ALSO:
  - water/service.go: Composes MeteredBilling for water bills
  - distribution.go: Uses PenaltyPolicy for backdated recalculation
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// METERED BILLING - Consumption and penalty calculator
// =============================================================================

const (
	DefaultMeterMax           int64 = 10000
	DefaultConsumptionCeiling int64 = 1000
	DefaultHighUsageThreshold int64 = 200
)

// MeteredBilling holds the meter limits. The zero value uses the defaults.
type MeteredBilling struct {
	MeterMax           int64 // Reading at which the meter wraps to zero
	ConsumptionCeiling int64 // Above this a reading is rejected
	HighUsageThreshold int64 // Above this a warning is attached
}

// NewMeteredBilling returns a calculator with the default limits.
func NewMeteredBilling() MeteredBilling {
	return MeteredBilling{
		MeterMax:           DefaultMeterMax,
		ConsumptionCeiling: DefaultConsumptionCeiling,
		HighUsageThreshold: DefaultHighUsageThreshold,
	}
}

func (m MeteredBilling) limits() (meterMax, ceiling, high int64) {
	meterMax, ceiling, high = m.MeterMax, m.ConsumptionCeiling, m.HighUsageThreshold
	if meterMax <= 0 {
		meterMax = DefaultMeterMax
	}
	if ceiling <= 0 {
		ceiling = DefaultConsumptionCeiling
	}
	if high <= 0 {
		high = DefaultHighUsageThreshold
	}
	return
}

// ConsumptionResult is the outcome of a reading pair.
type ConsumptionResult struct {
	Consumption int64
	Rollover    bool
	Warnings    []string
}

// Consumption computes usage between two meter readings.
func (m MeteredBilling) Consumption(current, previous int64) (ConsumptionResult, error) {
	if current < 0 || previous < 0 {
		return ConsumptionResult{}, fmt.Errorf("%w: meter readings must be non-negative (current %d, previous %d)",
			ErrInvalidInput, current, previous)
	}

	meterMax, ceiling, high := m.limits()

	var result ConsumptionResult
	if current >= previous {
		result.Consumption = current - previous
	} else {
		result.Consumption = (meterMax - previous) + current
		result.Rollover = true
	}

	if result.Consumption < 0 {
		return ConsumptionResult{}, &InconsistentReadingError{
			Current: current, Previous: previous, Consumption: result.Consumption,
			Reason: "negative consumption after rollover adjustment",
		}
	}
	if result.Consumption > ceiling {
		return ConsumptionResult{}, &InconsistentReadingError{
			Current: current, Previous: previous, Consumption: result.Consumption,
			Reason: fmt.Sprintf("consumption exceeds %d", ceiling),
		}
	}
	if result.Rollover {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("meter rollover: previous %d, current %d, meter max %d", previous, current, meterMax))
	}
	if result.Consumption > high {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("high consumption: %d exceeds %d", result.Consumption, high))
	}
	return result, nil
}

// PenaltyResult is the outcome of a compound penalty calculation.
type PenaltyResult struct {
	Penalty          Cents
	TotalWithPenalty Cents
	EffectiveRate    decimal.Decimal // (1 + rate)^months - 1
}

// CompoundPenalty compounds monthlyRate over monthsLate months.
// CompoundPenalty(100000, 0.05, 2) = {10250, 110250}.
func (m MeteredBilling) CompoundPenalty(principal Cents, monthlyRate decimal.Decimal, monthsLate int) (PenaltyResult, error) {
	if principal < 0 {
		return PenaltyResult{}, fmt.Errorf("%w: principal %s is negative", ErrInvalidInput, principal)
	}
	if monthlyRate.IsNegative() {
		return PenaltyResult{}, fmt.Errorf("%w: monthly rate %s is negative", ErrInvalidInput, monthlyRate)
	}
	if monthsLate <= 0 || principal == 0 || monthlyRate.IsZero() {
		return PenaltyResult{TotalWithPenalty: principal, EffectiveRate: decimal.Zero}, nil
	}

	factor := decimal.NewFromInt(1).Add(monthlyRate)
	growth := decimal.NewFromInt(1)
	for i := 0; i < monthsLate; i++ {
		growth = growth.Mul(factor)
	}

	total := Cents(decimal.NewFromInt(int64(principal)).Mul(growth).Round(0).IntPart())
	return PenaltyResult{
		Penalty:          total - principal,
		TotalWithPenalty: total,
		EffectiveRate:    growth.Sub(decimal.NewFromInt(1)),
	}, nil
}

// CreditApplication is the outcome of applying available credit to a due amount.
type CreditApplication struct {
	AmountDue       Cents // Remaining after credit
	CreditUsed      Cents
	CreditRemaining Cents
}

// ApplyCredit draws from available credit to cover amountDue.
// Negative credit is treated as zero.
func (m MeteredBilling) ApplyCredit(amountDue, available Cents) (CreditApplication, error) {
	if amountDue < 0 {
		return CreditApplication{}, fmt.Errorf("%w: amount due %s is negative", ErrInvalidInput, amountDue)
	}
	available = NonNegative(available)
	used := MinCents(amountDue, available)
	return CreditApplication{
		AmountDue:       amountDue - used,
		CreditUsed:      used,
		CreditRemaining: available - used,
	}, nil
}

// =============================================================================
// PENALTY POLICY - Late fees on unpaid bills
// =============================================================================

// PenaltyPolicy is the late-fee configuration of a billing module.
type PenaltyPolicy struct {
	MonthlyRate decimal.Decimal
	GraceDays   int
	Calculator  MeteredBilling
}

// EffectiveDueDate is the due date pushed out by the grace period.
func (p PenaltyPolicy) EffectiveDueDate(b Bill) TimePoint {
	return b.DueDate.AddDays(p.GraceDays)
}

// RecalculatePenalty recomputes the penalty of b as of asOf from the full
// base charge. Stored penalty and paid amounts are not inputs; the result is
// only floored at what has already been paid towards the penalty.
func (p PenaltyPolicy) RecalculatePenalty(b Bill, asOf TimePoint) (Cents, error) {
	if b.DueDate.IsZero() {
		return MaxCents(b.PenaltyAmount, b.PenaltyPaid), nil
	}
	months := MonthsLate(p.EffectiveDueDate(b), asOf)
	result, err := p.Calculator.CompoundPenalty(b.BaseCharge, p.MonthlyRate, months)
	if err != nil {
		return 0, fmt.Errorf("recalculate penalty for bill %s: %w", b.ID, err)
	}
	return MaxCents(result.Penalty, b.PenaltyPaid), nil
}
