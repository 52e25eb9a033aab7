package generic

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar dates (billing works at day granularity)
// =============================================================================

// DateLayout is the wire and storage format of every TimePoint.
const DateLayout = "2006-01-02"

// TimePoint is a calendar date in UTC. Bills, payments and due dates never
// carry a time of day.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint { return DateOf(time.Now()) }

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("%w: date %q: %v", ErrInvalidInput, s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, n, 0)} }

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(DateLayout)
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tp.String())
}

func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*tp = TimePoint{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================
// Note: fiscal periods are defined in period.go

func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }
func EndOfMonth(year int, month time.Month) TimePoint {
	return TimePoint{Time: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}

// MonthsLate counts whole calendar months from due to asOf. A month counts
// once asOf reaches the due day-of-month: Jan 10 -> Feb 10 is one month,
// Jan 10 -> Feb 9 is zero. Never negative.
func MonthsLate(due, asOf TimePoint) int {
	if due.IsZero() || asOf.IsZero() || !asOf.After(due) {
		return 0
	}
	months := (asOf.Year()-due.Year())*12 + int(asOf.Month()) - int(due.Month())
	if asOf.Day() < due.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
