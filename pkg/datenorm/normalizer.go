// Package datenorm resolves spoken payment-date phrases into calendar dates.
//
// It understands explicit dates plus the common English and Spanish relative
// idioms heard on collection calls ("tomorrow", "mañana", "end of month",
// "fin de mes", bare weekday names). Resolutions derived from ambiguous
// language are flagged so the caller can confirm them with the user before
// treating them as final.
package datenorm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of normalizing a single phrase.
type Result struct {
	// OK reports whether a date was resolved at all.
	OK bool
	// Date is the resolved calendar date, valid only when OK is true.
	Date time.Time
	// Confidence is the parse confidence in [0, 1].
	Confidence float64
	// NeedsConfirmation is true when the phrase was ambiguous and the
	// resolved date must be echoed back to the user before use.
	NeedsConfirmation bool
	// Note describes how the date was resolved, for audit logs.
	Note string
}

var isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

var monthNames = map[string]time.Month{
	"january": time.January, "enero": time.January,
	"february": time.February, "febrero": time.February,
	"march": time.March, "marzo": time.March,
	"april": time.April, "abril": time.April,
	"may": time.May, "mayo": time.May,
	"june": time.June, "junio": time.June,
	"july": time.July, "julio": time.July,
	"august": time.August, "agosto": time.August,
	"september": time.September, "septiembre": time.September,
	"october": time.October, "octubre": time.October,
	"november": time.November, "noviembre": time.November,
	"december": time.December, "diciembre": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "lunes": time.Monday,
	"tuesday": time.Tuesday, "martes": time.Tuesday,
	"wednesday": time.Wednesday, "miércoles": time.Wednesday, "miercoles": time.Wednesday,
	"thursday": time.Thursday, "jueves": time.Thursday,
	"friday": time.Friday, "viernes": time.Friday,
	"saturday": time.Saturday, "sábado": time.Saturday, "sabado": time.Saturday,
	"sunday": time.Sunday, "domingo": time.Sunday,
}

var monthDayRe = buildMonthDayRe()

func buildMonthDayRe() *regexp.Regexp {
	names := make([]string, 0, len(monthNames))
	for name := range monthNames {
		names = append(names, name)
	}
	alt := strings.Join(names, "|")
	// "march 15" / "march 15th" or "15 de marzo" / "15 marzo".
	return regexp.MustCompile(`\b(` + alt + `)\b\s*(\d{1,2})(?:st|nd|rd|th)?\b|\b(\d{1,2})(?:st|nd|rd|th)?\s*(?:de\s+)?\b(` + alt + `)\b`)
}

// Normalize resolves phrase against the reference local date. It never
// returns an error: unparseable input yields a Result with OK false, and the
// caller is expected to ask the user to restate the date.
func Normalize(phrase string, ref time.Time) Result {
	text := strings.ToLower(strings.TrimSpace(phrase))
	ref = DateOnly(ref)
	if text == "" {
		return Result{NeedsConfirmation: true, Note: "empty phrase"}
	}

	if m := isoDateRe.FindString(text); m != "" {
		if d, err := time.Parse("2006-01-02", m); err == nil {
			return Result{OK: true, Date: DateOnly(d), Confidence: 0.95, Note: "explicit date"}
		}
	}

	if containsAny(text, "today", "hoy") {
		return Result{OK: true, Date: ref, Confidence: 0.9, Note: "today"}
	}
	if containsAny(text, "tomorrow", "mañana", "manana") {
		return Result{OK: true, Date: ref.AddDate(0, 0, 1), Confidence: 0.9, Note: "tomorrow"}
	}
	if containsAny(text, "end of month", "end of the month", "fin de mes", "a fin de mes") {
		return Result{OK: true, Date: LastDayOfMonth(ref), Confidence: 0.9, Note: "end of month"}
	}

	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		name := m[1]
		dayStr := m[2]
		if name == "" {
			name = m[4]
			dayStr = m[3]
		}
		day, _ := strconv.Atoi(dayStr)
		month := monthNames[name]
		year := ref.Year()
		if month < ref.Month() {
			year++
		}
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		// Reject overflow like "february 31".
		if d.Month() == month && d.Day() == day {
			return Result{OK: true, Date: d, Confidence: 0.9, Note: "month and day"}
		}
	}

	for name, wd := range weekdayNames {
		if !containsWord(text, name) {
			continue
		}
		d := nextWeekdayOnOrAfter(ref, wd)
		// A bare weekday naming today usually means next week.
		if d.Equal(ref) {
			d = d.AddDate(0, 0, 7)
		}
		return Result{OK: true, Date: d, Confidence: 0.8, NeedsConfirmation: true, Note: "weekday: " + name}
	}

	return Result{NeedsConfirmation: true, Note: "unsupported date phrase"}
}

// DateOnly truncates t to midnight UTC so date arithmetic ignores clock time.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LastDayOfMonth returns the final calendar day of t's month.
func LastDayOfMonth(t time.Time) time.Time {
	firstNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstNext.AddDate(0, 0, -1)
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// AlternativeDates returns two valid payment dates on or before the end of
// the reference month, offered when a proposed date falls outside the month.
// The pair is the nearest feasible day and the last day of the month; on the
// final day of a month both collapse toward the only remaining options.
func AlternativeDates(ref time.Time) [2]time.Time {
	ref = DateOnly(ref)
	last := LastDayOfMonth(ref)

	first := ref.AddDate(0, 0, 1)
	if first.After(last) {
		first = ref
	}
	if first.Equal(last) {
		prev := last.AddDate(0, 0, -1)
		if !prev.Before(ref) {
			first = prev
		}
	}
	return [2]time.Time{first, last}
}

func nextWeekdayOnOrAfter(t time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, delta)
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(text[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
