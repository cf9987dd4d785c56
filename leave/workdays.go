package leave

import (
	"github.com/prabandh/leave-engine/generic"
)

// HolidayCalendar answers whether a day is a working day, i.e. not a
// public holiday. Weekends are handled by BillableDays itself.
type HolidayCalendar interface {
	IsWorkingDay(day generic.TimePoint) bool
}

// CalendarFunc adapts a function to HolidayCalendar.
type CalendarFunc func(day generic.TimePoint) bool

func (f CalendarFunc) IsWorkingDay(day generic.TimePoint) bool { return f(day) }

// NoHolidays treats every weekday as a working day.
var NoHolidays HolidayCalendar = CalendarFunc(func(generic.TimePoint) bool { return true })

// BillableDays counts the days in [from, to] that fall Monday to Friday and
// are working days in cal. Returns 0 when from is after to.
func BillableDays(from, to generic.TimePoint, cal HolidayCalendar) int {
	if cal == nil {
		cal = NoHolidays
	}
	n := 0
	for _, day := range (generic.Period{Start: from, End: to}).Days() {
		if day.IsWeekend() || !cal.IsWorkingDay(day) {
			continue
		}
		n++
	}
	return n
}

// CalendarDays is the inclusive span to - from + 1, weekends included.
func CalendarDays(from, to generic.TimePoint) int {
	return generic.Period{Start: from, End: to}.Len()
}
