package billparse

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateRule matches one date shape and builds a calendar date from the
// submatches. build returns false when the numbers do not form a real date.
type dateRule struct {
	Name    string
	Pattern *regexp.Regexp
	build   func(m []string, loc *time.Location) (time.Time, bool)
}

var dateRules = []dateRule{
	{
		Name:    "month/day/year",
		Pattern: regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			return calendarDate(m[3], m[1], m[2], loc)
		},
	},
	{
		Name:    "year/month/day",
		Pattern: regexp.MustCompile(`(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			return calendarDate(m[1], m[2], m[3], loc)
		},
	},
	{
		Name:    "month name",
		Pattern: regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})`),
		build: func(m []string, loc *time.Location) (time.Time, bool) {
			month, ok := monthsByPrefix[strings.ToLower(m[1])]
			if !ok {
				return time.Time{}, false
			}
			return calendarDate(m[3], strconv.Itoa(int(month)), m[2], loc)
		},
	},
}

var monthsByPrefix = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

// ExtractDate finds the transaction date. Each rule contributes at most its
// first match; a match that is not a real date, or whose year is outside
// (2000, now.Year()+1], falls through to the next rule. When nothing is
// accepted it returns now and false.
func ExtractDate(text string, now time.Time) (time.Time, bool) {
	for _, rule := range dateRules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		date, ok := rule.build(m, now.Location())
		if !ok {
			slog.Debug("Date match is not a calendar date", "rule", rule.Name, "match", m[0])
			continue
		}
		if date.Year() <= 2000 || date.Year() > now.Year()+1 {
			slog.Debug("Date outside plausible years", "rule", rule.Name, "date", date.Format(time.DateOnly))
			continue
		}
		slog.Debug("Date found", "rule", rule.Name, "date", date.Format(time.DateOnly))
		return date, true
	}

	slog.Debug("No valid date found, using current date")
	return now, false
}

// calendarDate builds midnight on the given day, rejecting values that
// time.Date would silently normalise (month 13, February 30).
func calendarDate(year, month, day string, loc *time.Location) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	mo, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}

	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
