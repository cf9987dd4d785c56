/*
Package holidays keeps the institution's holiday calendar.

PURPOSE:
  The working-day calculator needs to know which weekdays are not worked.
  Calendar answers that from an in-memory snapshot that is reloaded from
  the database whenever holidays change, so the hot path never queries.

RECURRING HOLIDAYS:
  A recurring holiday matches its month and day in every year
  (Republic Day, Independence Day). A fixed holiday matches one date.

FILE FORMAT (import):
  holidays:
    - date: 2025-01-26
      name: Republic Day
      recurring: true
    - date: 2025-03-14
      name: Holi

SEE ALSO:
  - leave/workdays.go: HolidayCalendar and BillableDays
  - store/sqlite, store/postgres: holidays table
*/
package holidays

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/prabandh/leave-engine/generic"
)

// ErrInvalidHoliday is returned for a holiday without a date or name.
var ErrInvalidHoliday = errors.New("invalid holiday")

// Holiday is a non-working day.
type Holiday struct {
	ID        string
	Date      generic.TimePoint
	Name      string
	Recurring bool
}

// Validate checks the holiday has a date and a name.
func (h Holiday) Validate() error {
	if h.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidHoliday)
	}
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidHoliday)
	}
	return nil
}

// Source lists the persisted holidays.
type Source interface {
	ListHolidays(ctx context.Context) ([]Holiday, error)
}

// =============================================================================
// CALENDAR
// =============================================================================

type monthDay struct {
	month time.Month
	day   int
}

// Calendar is a concurrency-safe holiday lookup. The zero value has no
// holidays and treats only weekends as non-working.
type Calendar struct {
	mu        sync.RWMutex
	holidays  []Holiday
	fixed     map[string]string
	recurring map[monthDay]string
}

// NewCalendar builds a calendar from hs.
func NewCalendar(hs ...Holiday) *Calendar {
	c := &Calendar{}
	c.Set(hs)
	return c
}

// Set replaces the calendar's holidays.
func (c *Calendar) Set(hs []Holiday) {
	fixed := make(map[string]string, len(hs))
	recurring := make(map[monthDay]string)
	for _, h := range hs {
		if h.Recurring {
			recurring[monthDay{h.Date.Month(), h.Date.Day()}] = h.Name
			continue
		}
		fixed[h.Date.String()] = h.Name
	}

	sorted := make([]Holiday, len(hs))
	copy(sorted, hs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidays = sorted
	c.fixed = fixed
	c.recurring = recurring
}

// Reload replaces the calendar's holidays with those in src.
func (c *Calendar) Reload(ctx context.Context, src Source) error {
	hs, err := src.ListHolidays(ctx)
	if err != nil {
		return fmt.Errorf("failed to load holidays: %w", err)
	}
	c.Set(hs)
	return nil
}

// Lookup returns the holiday name for day, if any.
func (c *Calendar) Lookup(day generic.TimePoint) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name, ok := c.fixed[day.String()]; ok {
		return name, true
	}
	name, ok := c.recurring[monthDay{day.Month(), day.Day()}]
	return name, ok
}

// IsWorkingDay reports whether day is a weekday and not a holiday.
func (c *Calendar) IsWorkingDay(day generic.TimePoint) bool {
	if day.IsWeekend() {
		return false
	}
	_, holiday := c.Lookup(day)
	return !holiday
}

// Holidays returns the loaded holidays ordered by date.
func (c *Calendar) Holidays() []Holiday {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Holiday, len(c.holidays))
	copy(out, c.holidays)
	return out
}

// =============================================================================
// FILE IMPORT
// =============================================================================

type fileEntry struct {
	Date      string `yaml:"date"`
	Name      string `yaml:"name"`
	Recurring bool   `yaml:"recurring"`
}

type file struct {
	Holidays []fileEntry `yaml:"holidays"`
}

// Parse reads a YAML holiday list. Every entry gets a fresh ID.
func Parse(r io.Reader) ([]Holiday, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to decode holidays: %w", ErrInvalidHoliday, err)
	}

	out := make([]Holiday, 0, len(f.Holidays))
	for i, e := range f.Holidays {
		date, err := generic.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidHoliday, i+1, err)
		}
		h := Holiday{
			ID:        uuid.NewString(),
			Date:      date,
			Name:      strings.TrimSpace(e.Name),
			Recurring: e.Recurring,
		}
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// LoadFile parses the YAML holiday list at path.
func LoadFile(path string) ([]Holiday, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
