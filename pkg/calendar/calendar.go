// Package calendar computes the next wall-clock occurrence of daily, weekly
// and monthly schedules anchored at the top of an hour.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Overflow decides what happens when a monthly schedule names a day the
// candidate month does not have (e.g. the 31st in April).
type Overflow int

const (
	// Skip ignores months that lack the day.
	Skip Overflow = iota
	// Clamp fires on the last day of a shorter month.
	Clamp
)

var ErrNoOccurrence = errors.New("calendar: no matching occurrence")

func (o Overflow) String() string {
	switch o {
	case Clamp:
		return "clamp"
	default:
		return "skip"
	}
}

func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return Skip, nil
	case "clamp":
		return Clamp, nil
	}
	return Skip, fmt.Errorf("calendar: unknown month overflow policy %q", s)
}

// DaysIn returns the length of month in year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextDaily returns the earliest hour:00 in loc at or after from.
func NextDaily(from time.Time, hour int, loc *time.Location) (time.Time, error) {
	if err := checkHour(hour); err != nil {
		return time.Time{}, err
	}
	f := from.In(loc)
	c := time.Date(f.Year(), f.Month(), f.Day(), hour, 0, 0, 0, loc)
	if c.Before(f) {
		c = time.Date(f.Year(), f.Month(), f.Day()+1, hour, 0, 0, 0, loc)
	}
	return c, nil
}

// NextWeekly returns the earliest hour:00 on weekday in loc at or after from.
func NextWeekly(from time.Time, weekday time.Weekday, hour int, loc *time.Location) (time.Time, error) {
	if err := checkHour(hour); err != nil {
		return time.Time{}, err
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return time.Time{}, fmt.Errorf("%w: weekday %d", ErrNoOccurrence, weekday)
	}
	f := from.In(loc)
	delta := (int(weekday) - int(f.Weekday()) + 7) % 7
	c := time.Date(f.Year(), f.Month(), f.Day()+delta, hour, 0, 0, 0, loc)
	if c.Before(f) {
		c = time.Date(f.Year(), f.Month(), f.Day()+delta+7, hour, 0, 0, 0, loc)
	}
	return c, nil
}

// NextMonthly returns the earliest hour:00 on day-of-month in loc at or after
// from, applying overflow to months shorter than day.
func NextMonthly(from time.Time, day, hour int, loc *time.Location, overflow Overflow) (time.Time, error) {
	if err := checkHour(hour); err != nil {
		return time.Time{}, err
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: day of month %d", ErrNoOccurrence, day)
	}
	f := from.In(loc)
	// Any day 1..31 recurs within a year, so 13 candidates are always enough.
	for i := 0; i < 13; i++ {
		first := time.Date(f.Year(), f.Month()+time.Month(i), 1, 0, 0, 0, 0, loc)
		d := day
		if dim := DaysIn(first.Year(), first.Month()); d > dim {
			if overflow == Skip {
				continue
			}
			d = dim
		}
		c := time.Date(first.Year(), first.Month(), d, hour, 0, 0, 0, loc)
		if !c.Before(f) {
			return c, nil
		}
	}
	return time.Time{}, ErrNoOccurrence
}

func checkHour(hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour %d", ErrNoOccurrence, hour)
	}
	return nil
}
