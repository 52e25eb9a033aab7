package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - A closed date range
// =============================================================================

// Period is the date range [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// FISCAL CONFIG - Fiscal years and bill period keys
// =============================================================================

// FiscalConfig describes the association's fiscal calendar.
//
// A fiscal year is named after the calendar year in which it ends. With
// StartMonth = July, fiscal year 2026 runs 2025-07-01 .. 2026-06-30 and
// fiscal month 0 is July 2025. With StartMonth = January the fiscal and
// calendar years coincide.
type FiscalConfig struct {
	StartMonth time.Month
}

// DefaultFiscalConfig uses the calendar year.
var DefaultFiscalConfig = FiscalConfig{StartMonth: time.January}

func (fc FiscalConfig) startMonth() time.Month {
	if fc.StartMonth < time.January || fc.StartMonth > time.December {
		return time.January
	}
	return fc.StartMonth
}

// FiscalYearOf returns the fiscal year containing date.
func (fc FiscalConfig) FiscalYearOf(date TimePoint) int {
	start := fc.startMonth()
	if start == time.January {
		return date.Year()
	}
	if date.Month() >= start {
		return date.Year() + 1
	}
	return date.Year()
}

// FiscalMonthOf returns the 0-based fiscal month index (0..11) of date.
func (fc FiscalConfig) FiscalMonthOf(date TimePoint) int {
	return (int(date.Month()) - int(fc.startMonth()) + 12) % 12
}

// YearPeriod returns the full date range of a fiscal year.
func (fc FiscalConfig) YearPeriod(fiscalYear int) Period {
	start := fc.MonthStart(fiscalYear, 0)
	return Period{Start: start, End: start.AddMonths(12).AddDays(-1)}
}

// MonthStart returns the first calendar day of a fiscal month.
func (fc FiscalConfig) MonthStart(fiscalYear, fiscalMonth int) TimePoint {
	start := fc.startMonth()
	year := fiscalYear
	if start != time.January {
		year--
	}
	return StartOfMonth(year, start).AddMonths(fiscalMonth)
}

// MonthPeriod returns the calendar range of a fiscal month.
func (fc FiscalConfig) MonthPeriod(fiscalYear, fiscalMonth int) Period {
	start := fc.MonthStart(fiscalYear, fiscalMonth)
	return Period{Start: start, End: EndOfMonth(start.Year(), start.Month())}
}

// DueDate returns dueDay of a fiscal month's calendar month, clamped to the
// month's last day. dueDay <= 1 is the first of the month.
func (fc FiscalConfig) DueDate(fiscalYear, fiscalMonth, dueDay int) TimePoint {
	start := fc.MonthStart(fiscalYear, fiscalMonth)
	if dueDay <= 1 {
		return start
	}
	last := EndOfMonth(start.Year(), start.Month()).Day()
	return NewTimePoint(start.Year(), start.Month(), min(dueDay, last))
}

// BillPeriod is a (fiscal year, fiscal month) pair. It doubles as the bill
// id within a unit: "2026-03" is fiscal month index 3 of fiscal year 2026.
type BillPeriod struct {
	FiscalYear  int
	FiscalMonth int
}

func (bp BillPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", bp.FiscalYear, bp.FiscalMonth)
}

// BillID returns the period key used as bill id.
func (bp BillPeriod) BillID() BillID { return BillID(bp.String()) }

// Before orders periods chronologically.
func (bp BillPeriod) Before(other BillPeriod) bool {
	if bp.FiscalYear != other.FiscalYear {
		return bp.FiscalYear < other.FiscalYear
	}
	return bp.FiscalMonth < other.FiscalMonth
}

// PeriodOf returns the bill period containing date.
func (fc FiscalConfig) PeriodOf(date TimePoint) BillPeriod {
	return BillPeriod{FiscalYear: fc.FiscalYearOf(date), FiscalMonth: fc.FiscalMonthOf(date)}
}

// ParseBillPeriod parses a "YYYY-MM" period key.
func ParseBillPeriod(s string) (BillPeriod, error) {
	year, month, ok := strings.Cut(s, "-")
	if !ok || len(year) != 4 || len(month) != 2 {
		return BillPeriod{}, fmt.Errorf("%w: bill period %q", ErrInvalidInput, s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return BillPeriod{}, fmt.Errorf("%w: bill period %q", ErrInvalidInput, s)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 0 || m > 11 {
		return BillPeriod{}, fmt.Errorf("%w: bill period %q: fiscal month must be 00-11", ErrInvalidInput, s)
	}
	return BillPeriod{FiscalYear: y, FiscalMonth: m}, nil
}
