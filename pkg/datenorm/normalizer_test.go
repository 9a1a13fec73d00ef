package datenorm

import (
	"testing"
	"time"
)

// Monday 2026-02-09 is the reference date used by most cases.
var ref = time.Date(2026, 2, 9, 14, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeRelativePhrases(t *testing.T) {
	tests := []struct {
		name        string
		phrase      string
		want        time.Time
		needConfirm bool
	}{
		{"tomorrow", "I can pay tomorrow", date(2026, 2, 10), false},
		{"manana", "puedo pagar mañana", date(2026, 2, 10), false},
		{"today", "today works", date(2026, 2, 9), false},
		{"end of month", "at the end of month", date(2026, 2, 28), false},
		{"fin de mes", "a fin de mes", date(2026, 2, 28), false},
		{"weekday english", "next friday", date(2026, 2, 13), true},
		{"weekday spanish", "el viernes", date(2026, 2, 13), true},
		{"weekday accented", "el miércoles", date(2026, 2, 11), true},
		{"iso date", "2026-02-15 is fine", date(2026, 2, 15), false},
		{"month day english", "february 20", date(2026, 2, 20), false},
		{"month day ordinal", "february 20th", date(2026, 2, 20), false},
		{"month day spanish", "el 20 de febrero", date(2026, 2, 20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.phrase, ref)
			if !got.OK {
				t.Fatalf("Normalize(%q) not OK: note=%q", tt.phrase, got.Note)
			}
			if !got.Date.Equal(tt.want) {
				t.Errorf("date = %s, want %s", got.Date.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
			if got.NeedsConfirmation != tt.needConfirm {
				t.Errorf("needsConfirmation = %v, want %v", got.NeedsConfirmation, tt.needConfirm)
			}
		})
	}
}

func TestNormalizeWeekdayNamingTodayMeansNextWeek(t *testing.T) {
	got := Normalize("monday", ref) // ref is a Monday
	if !got.OK {
		t.Fatal("expected resolution")
	}
	if want := date(2026, 2, 16); !got.Date.Equal(want) {
		t.Errorf("date = %s, want %s", got.Date.Format("2006-01-02"), want.Format("2006-01-02"))
	}
	if !got.NeedsConfirmation {
		t.Error("bare weekday should require confirmation")
	}
}

func TestNormalizeFailures(t *testing.T) {
	for _, phrase := range []string{"", "whenever I feel like it", "february 31"} {
		got := Normalize(phrase, ref)
		if got.OK {
			t.Errorf("Normalize(%q) = OK with date %s, want failure", phrase, got.Date)
		}
	}
}

func TestNormalizeYearRollover(t *testing.T) {
	// A month earlier than the reference month means next year.
	got := Normalize("january 5", ref)
	if !got.OK {
		t.Fatal("expected resolution")
	}
	if want := date(2027, 1, 5); !got.Date.Equal(want) {
		t.Errorf("date = %s, want %s", got.Date.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{date(2026, 2, 9), date(2026, 2, 28)},
		{date(2028, 2, 1), date(2028, 2, 29)},
		{date(2026, 12, 31), date(2026, 12, 31)},
	}
	for _, tt := range tests {
		if got := LastDayOfMonth(tt.in); !got.Equal(tt.want) {
			t.Errorf("LastDayOfMonth(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAlternativeDatesWithinMonth(t *testing.T) {
	alts := AlternativeDates(ref)
	last := LastDayOfMonth(ref)
	for i, d := range alts {
		if d.Before(DateOnly(ref)) || d.After(last) {
			t.Errorf("alternative %d = %s outside [%s, %s]", i, d, ref, last)
		}
	}
	if !alts[0].Equal(date(2026, 2, 10)) || !alts[1].Equal(date(2026, 2, 28)) {
		t.Errorf("alternatives = %v", alts)
	}
}

func TestAlternativeDatesMonthEndEdges(t *testing.T) {
	// Second-to-last day: the pair stays inside the month and stays distinct.
	alts := AlternativeDates(date(2026, 2, 27))
	if !alts[0].Equal(date(2026, 2, 27)) || !alts[1].Equal(date(2026, 2, 28)) {
		t.Errorf("alternatives = %v, want [2026-02-27 2026-02-28]", alts)
	}

	// Last day of month: the only remaining valid day is today.
	alts = AlternativeDates(date(2026, 2, 28))
	for i, d := range alts {
		if !d.Equal(date(2026, 2, 28)) {
			t.Errorf("alternative %d = %s, want 2026-02-28", i, d)
		}
	}
}
