package generic

import "time"

// =============================================================================
// PERIOD - An inclusive range of days
// =============================================================================

// Period is the inclusive day range [Start, End].
//
// Examples:
//   - Calendar year 2025: Jan 1 - Dec 31
//   - Academic year 2025: Jul 1 2025 - Jun 30 2026
//   - A leave application: from_date - to_date
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that start is not after end.
func NewPeriod(start, end TimePoint) (Period, error) {
	if start.After(end) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Len returns the inclusive number of days, or 0 for an inverted period.
func (p Period) Len() int {
	if p.Start.After(p.End) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// CalendarYear returns Jan 1 - Dec 31 of year.
func CalendarYear(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}

// YearFrom returns the twelve months starting on the first of month in year,
// e.g. YearFrom(2025, time.July) is Jul 1 2025 - Jun 30 2026.
func YearFrom(year int, month time.Month) Period {
	start := NewTimePoint(year, month, 1)
	return Period{Start: start, End: start.AddYears(1).AddDays(-1)}
}
