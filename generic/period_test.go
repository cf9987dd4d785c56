package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prabandh/leave-engine/generic"
)

func TestNewPeriod_RejectsInvertedRange(t *testing.T) {
	_, err := generic.NewPeriod(
		generic.NewTimePoint(2025, time.March, 10),
		generic.NewTimePoint(2025, time.March, 9),
	)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	p, err := generic.NewPeriod(
		generic.NewTimePoint(2025, time.March, 10),
		generic.NewTimePoint(2025, time.March, 10),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
}

func TestPeriod_Overlaps(t *testing.T) {
	day := func(d int) generic.TimePoint { return generic.NewTimePoint(2025, time.March, d) }
	base := generic.Period{Start: day(10), End: day(14)}

	tests := []struct {
		name  string
		other generic.Period
		want  bool
	}{
		{"identical", base, true},
		{"touches start", generic.Period{Start: day(5), End: day(10)}, true},
		{"touches end", generic.Period{Start: day(14), End: day(20)}, true},
		{"inside", generic.Period{Start: day(11), End: day(12)}, true},
		{"before", generic.Period{Start: day(1), End: day(9)}, false},
		{"after", generic.Period{Start: day(15), End: day(16)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestPeriod_DaysAndLen(t *testing.T) {
	// Feb 2024 is a leap month.
	p := generic.Period{
		Start: generic.NewTimePoint(2024, time.February, 27),
		End:   generic.NewTimePoint(2024, time.March, 1),
	}

	days := p.Days()
	require.Len(t, days, 4)
	assert.Equal(t, "2024-02-29", days[2].String())
	assert.Equal(t, 4, p.Len())

	inverted := generic.Period{Start: p.End, End: p.Start}
	assert.Equal(t, 0, inverted.Len())
	assert.Empty(t, inverted.Days())
}

func TestYearFrom_AcademicYear(t *testing.T) {
	p := generic.YearFrom(2025, time.July)

	assert.Equal(t, "2025-07-01", p.Start.String())
	assert.Equal(t, "2026-06-30", p.End.String())
	assert.True(t, p.Contains(generic.NewTimePoint(2026, time.January, 15)))
	assert.False(t, p.Contains(generic.NewTimePoint(2026, time.July, 1)))
}

func TestCalendarYear(t *testing.T) {
	p := generic.CalendarYear(2025)
	assert.Equal(t, "[2025-01-01, 2025-12-31]", p.String())
	assert.Equal(t, 365, p.Len())
}

// =============================================================================
// TIMEPOINT
// =============================================================================

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate("2025-08-15")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d.Weekday())
	assert.False(t, d.IsWeekend())

	_, err = generic.ParseDate("15/08/2025")
	assert.Error(t, err)
}

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	late := time.Date(2025, time.August, 15, 23, 59, 0, 0, time.UTC)
	assert.True(t, generic.DateOf(late).Equal(generic.NewTimePoint(2025, time.August, 15)))
}

func TestTimePoint_JSONRoundTrip(t *testing.T) {
	type payload struct {
		From generic.TimePoint `json:"from"`
	}

	b, err := json.Marshal(payload{From: generic.NewTimePoint(2025, time.January, 26)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"2025-01-26"}`, string(b))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"from":"2026-06-30"}`), &p))
	assert.Equal(t, "2026-06-30", p.From.String())

	assert.Error(t, json.Unmarshal([]byte(`{"from":"June 30"}`), &p))
}
