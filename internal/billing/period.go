// Package billing derives billing periods from reading dates.
package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is the (month, year) label assigned to a reading.
type Period struct {
	Month string
	Year  int
}

// PeriodOf returns the billing period of t in UTC. Month names are the English
// long names regardless of host locale.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Month: t.Month().String(), Year: t.Year()}
}

// String formats the period as "<Month> <Year>".
func (p Period) String() string {
	return p.Month + " " + strconv.Itoa(p.Year)
}

// MonthIndex returns 1..12 for a month name in any letter case, or 0 if unknown.
func MonthIndex(name string) int {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), name) {
			return int(m)
		}
	}
	return 0
}

// ParsePeriod reads a period from route parameters. The month name is matched
// case-insensitively and returned in its canonical form.
func ParsePeriod(month, year string) (Period, error) {
	idx := MonthIndex(month)
	if idx == 0 {
		return Period{}, fmt.Errorf("unknown month %q", month)
	}
	y, err := ParseYear(year)
	if err != nil {
		return Period{}, err
	}
	return Period{Month: time.Month(idx).String(), Year: y}, nil
}

// ParseYear reads a four-digit billing year.
func ParseYear(year string) (int, error) {
	y, err := strconv.Atoi(year)
	if err != nil || y < 1000 || y > 9999 {
		return 0, fmt.Errorf("invalid year %q", year)
	}
	return y, nil
}
