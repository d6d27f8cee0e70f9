package domain

import "fmt"

// Day identifies one day of the convention for which a day pass may be granted.
type Day string

const (
	DayWed Day = "wed"
	DayThu Day = "thu"
	DayFri Day = "fri"
	DaySat Day = "sat"
	DaySun Day = "sun"
)

// Days lists every valid day in calendar order.
var Days = []Day{DayWed, DayThu, DayFri, DaySat, DaySun}

func (d Day) Valid() bool {
	for _, v := range Days {
		if v == d {
			return true
		}
	}
	return false
}

// ParseDays validates and de-duplicates requested days, preserving calendar order.
func ParseDays(raw []string) ([]Day, error) {
	seen := make(map[Day]bool, len(raw))
	for _, s := range raw {
		d := Day(s)
		if !d.Valid() {
			return nil, fmt.Errorf("unknown day %q", s)
		}
		seen[d] = true
	}
	out := make([]Day, 0, len(seen))
	for _, d := range Days {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// DayPass is a temporary per-day access grant owned by a single person.
//
// Status holds the membership tier originally requested for the person; the
// person record itself is stored as NonMember.
type DayPass struct {
	PersonID PersonID
	Status   Membership
	Days     []Day
}

func (d DayPass) Has(day Day) bool {
	for _, v := range d.Days {
		if v == day {
			return true
		}
	}
	return false
}
