package market

import (
	"fmt"
	"sync"
	"time"
)

// IST is the exchange timezone. All session math happens in IST.
var IST = time.FixedZone("IST", 19800)

// Clock is a wall-clock time of day in IST.
type Clock struct {
	Hour, Min int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock '%s': %w", s, err)
	}
	return Clock{Hour: t.Hour(), Min: t.Minute()}, nil
}

// At anchors the clock on the given day, in IST.
func (c Clock) At(day time.Time) time.Time {
	d := day.In(IST)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Min, 0, 0, IST)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Min)
}

// Now returns the current time in IST.
func Now() time.Time {
	return time.Now().In(IST)
}

// Calendar answers "is the market open" for the NSE session: weekdays
// between open and close, excluding exchange holidays.
type Calendar struct {
	open  Clock
	close Clock

	mu       sync.RWMutex
	holidays map[string]string // "2006-01-02" -> holiday name
}

func NewCalendar(openTime, closeTime string) (*Calendar, error) {
	open, err := ParseClock(openTime)
	if err != nil {
		return nil, err
	}
	clos, err := ParseClock(closeTime)
	if err != nil {
		return nil, err
	}
	return &Calendar{
		open:     open,
		close:    clos,
		holidays: map[string]string{},
	}, nil
}

func (c *Calendar) Open() Clock  { return c.open }
func (c *Calendar) Close() Clock { return c.close }

// SetHolidays replaces the holiday table. Keys are IST dates "2006-01-02".
func (c *Calendar) SetHolidays(holidays map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidays = holidays
}

// AddHolidays merges entries into the holiday table.
func (c *Calendar) AddHolidays(holidays map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for d, name := range holidays {
		c.holidays[d] = name
	}
}

func (c *Calendar) holidayName(t time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.holidays[t.In(IST).Format("2006-01-02")]
	return name, ok
}

// IsTradingDay reports whether t falls on a weekday that is not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) (bool, string) {
	d := t.In(IST)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false, fmt.Sprintf("Market closed - weekend (%s)", d.Weekday())
	}
	if name, ok := c.holidayName(d); ok {
		return false, fmt.Sprintf("Market closed - holiday (%s)", name)
	}
	return true, ""
}

// Status reports whether the market is open at t, with a descriptive
// message for the closed cases.
func (c *Calendar) Status(t time.Time) (bool, string) {
	d := t.In(IST)
	if ok, msg := c.IsTradingDay(d); !ok {
		return false, msg
	}
	open := c.open.At(d)
	clos := c.close.At(d)
	if d.Before(open) {
		mins := int(open.Sub(d).Minutes())
		return false, fmt.Sprintf("Market not yet open. Opens in %d minutes", mins)
	}
	if d.After(clos) {
		return false, fmt.Sprintf("Market closed at %s IST", c.close)
	}
	return true, "Market is open"
}

// IsOpen is Status without the message.
func (c *Calendar) IsOpen(t time.Time) bool {
	ok, _ := c.Status(t)
	return ok
}

// NextOpen returns the next session open at or after t, skipping weekends
// and holidays.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	d := t.In(IST)
	open := c.open.At(d)
	if !d.Before(open) {
		open = open.AddDate(0, 0, 1)
	}
	for {
		if ok, _ := c.IsTradingDay(open); ok {
			return open
		}
		open = open.AddDate(0, 0, 1)
	}
}

// TimeToOpen returns the wait until the next session open and a
// human-readable rendering of it.
func (c *Calendar) TimeToOpen(t time.Time) (time.Duration, string) {
	wait := c.NextOpen(t).Sub(t.In(IST))
	secs := int(wait.Seconds())
	hours := secs / 3600
	mins := (secs % 3600) / 60
	rem := secs % 60
	if hours > 0 {
		return wait, fmt.Sprintf("%dh %dm %ds", hours, mins, rem)
	}
	return wait, fmt.Sprintf("%dm %ds", mins, rem)
}
