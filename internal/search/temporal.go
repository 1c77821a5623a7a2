package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TemporalRange is a date range parsed out of a query string, plus the
// exact substring that matched so the orchestrator can strip it before
// sending the rest of the query to the embedder and BM25 (spec §4.7).
type TemporalRange struct {
	Start time.Time
	End   time.Time
	Match string
}

var (
	pastNDaysPattern   = regexp.MustCompile(`(?i)\b(?:past|last)\s+(\d+)\s+days?\b`)
	isoDatePattern     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	lastWeekdayPattern = regexp.MustCompile(`(?i)\blast\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	onWeekdayPattern   = regexp.MustCompile(`(?i)\bon\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	monthDayPattern    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	monthNamePattern   = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
)

var weekdayByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

var monthByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// ParseTemporal attempts each pattern in spec §4.7's stated order and
// returns the first match. ref is the reference "now" the relative phrases
// (today, last week, ...) are computed against.
func ParseTemporal(query string, ref time.Time) (*TemporalRange, bool) {
	lower := strings.ToLower(query)
	today := truncateToDay(ref)

	if idx := wordIndex(lower, "today"); idx >= 0 {
		return &TemporalRange{Start: today, End: today, Match: query[idx : idx+len("today")]}, true
	}
	if idx := wordIndex(lower, "yesterday"); idx >= 0 {
		d := today.AddDate(0, 0, -1)
		return &TemporalRange{Start: d, End: d, Match: query[idx : idx+len("yesterday")]}, true
	}
	if idx := wordIndex(lower, "this week"); idx >= 0 {
		return &TemporalRange{Start: mondayOf(today), End: today, Match: query[idx : idx+len("this week")]}, true
	}
	if idx := wordIndex(lower, "last week"); idx >= 0 {
		monday := mondayOf(today)
		return &TemporalRange{Start: monday.AddDate(0, 0, -7), End: monday.AddDate(0, 0, -1), Match: query[idx : idx+len("last week")]}, true
	}
	if idx := wordIndex(lower, "this month"); idx >= 0 {
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return &TemporalRange{Start: start, End: today, Match: query[idx : idx+len("this month")]}, true
	}
	if idx := wordIndex(lower, "last month"); idx >= 0 {
		firstThis := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		lastOfPrev := firstThis.AddDate(0, 0, -1)
		firstOfPrev := time.Date(lastOfPrev.Year(), lastOfPrev.Month(), 1, 0, 0, 0, 0, today.Location())
		return &TemporalRange{Start: firstOfPrev, End: lastOfPrev, Match: query[idx : idx+len("last month")]}, true
	}
	if m := pastNDaysPattern.FindStringSubmatchIndex(query); m != nil {
		n, err := strconv.Atoi(query[m[2]:m[3]])
		if err == nil {
			return &TemporalRange{Start: today.AddDate(0, 0, -n), End: today, Match: query[m[0]:m[1]]}, true
		}
	}
	// A standalone month name — but not one immediately followed by a day
	// number, which is the more specific "<month> <day>" pattern below.
	if m := monthNamePattern.FindStringSubmatchIndex(query); m != nil && !followedByDay(query, m[1]) {
		name := strings.ToLower(query[m[2]:m[3]])
		if mo, ok := monthByName[name]; ok {
			year := today.Year()
			if int(mo) > int(today.Month()) {
				year--
			}
			start := time.Date(year, mo, 1, 0, 0, 0, 0, today.Location())
			end := start.AddDate(0, 1, -1)
			return &TemporalRange{Start: start, End: end, Match: query[m[0]:m[1]]}, true
		}
	}
	if m := lastWeekdayPattern.FindStringSubmatchIndex(query); m != nil {
		name := strings.ToLower(query[m[2]:m[3]])
		if wd, ok := weekdayByName[name]; ok {
			d := priorWeekday(today, wd, true)
			return &TemporalRange{Start: d, End: d, Match: query[m[0]:m[1]]}, true
		}
	}
	if m := onWeekdayPattern.FindStringSubmatchIndex(query); m != nil {
		name := strings.ToLower(query[m[2]:m[3]])
		if wd, ok := weekdayByName[name]; ok {
			d := priorWeekday(today, wd, false)
			return &TemporalRange{Start: d, End: d, Match: query[m[0]:m[1]]}, true
		}
	}
	if m := isoDatePattern.FindStringSubmatchIndex(query); m != nil {
		d, err := time.ParseInLocation("2006-01-02", query[m[2]:m[3]], today.Location())
		if err == nil {
			return &TemporalRange{Start: d, End: d, Match: query[m[0]:m[1]]}, true
		}
	}
	if m := monthDayPattern.FindStringSubmatchIndex(query); m != nil {
		name := strings.ToLower(query[m[2]:m[3]])
		day, err := strconv.Atoi(query[m[4]:m[5]])
		if mo, ok := monthByName[name]; ok && err == nil {
			candidate := time.Date(today.Year(), mo, day, 0, 0, 0, 0, today.Location())
			if candidate.After(today) {
				candidate = time.Date(today.Year()-1, mo, day, 0, 0, 0, 0, today.Location())
			}
			return &TemporalRange{Start: candidate, End: candidate, Match: query[m[0]:m[1]]}, true
		}
	}

	return nil, false
}

// StripMatch removes the first occurrence of match from query and collapses
// the surrounding whitespace, per spec §4.7.
func StripMatch(query, match string) string {
	if match == "" {
		return strings.TrimSpace(query)
	}
	idx := strings.Index(query, match)
	if idx < 0 {
		return strings.TrimSpace(query)
	}
	stripped := query[:idx] + query[idx+len(match):]
	return strings.Join(strings.Fields(stripped), " ")
}

func wordIndex(haystack, word string) int {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	loc := re.FindStringIndex(haystack)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func followedByDay(query string, afterIdx int) bool {
	rest := strings.TrimLeft(query[afterIdx:], " \t")
	if rest == "" {
		return false
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	return i > 0
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func mondayOf(day time.Time) time.Time {
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return day.AddDate(0, 0, -offset)
}

// priorWeekday returns the most recent occurrence of wd on or before day.
// strictlyBefore forces a full week back when day itself falls on wd (the
// "last <weekday>" phrasing); "on <weekday>" allows day itself to match.
func priorWeekday(day time.Time, wd time.Weekday, strictlyBefore bool) time.Time {
	diff := int(day.Weekday()) - int(wd)
	if diff < 0 {
		diff += 7
	}
	if diff == 0 && strictlyBefore {
		diff = 7
	}
	return day.AddDate(0, 0, -diff)
}
