package dispute

import (
	"fmt"
	"time"
)

// Calendar counts business days, skipping weekends and listed holidays.
type Calendar struct {
	holidays map[string]struct{}
}

// NewCalendar accepts holidays as YYYY-MM-DD dates.
func NewCalendar(holidays []string) (Calendar, error) {
	c := Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		d, err := time.Parse(time.DateOnly, h)
		if err != nil {
			return Calendar{}, fmt.Errorf("holiday %q: %w", h, err)
		}
		c.holidays[d.Format(time.DateOnly)] = struct{}{}
	}
	return c, nil
}

func (c Calendar) BusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format(time.DateOnly)]
	return !holiday
}

// AddBusinessDays moves t forward n business days keeping the time of day.
func (c Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	out := t
	for n > 0 {
		out = out.AddDate(0, 0, 1)
		if c.BusinessDay(out) {
			n--
		}
	}
	return out
}
