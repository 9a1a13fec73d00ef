package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// Extraction helpers for spoken numeric answers. Transcripts arrive from
// speech recognition, so a ZIP code may show up as "78701", "78 and 701",
// "seven eight seven zero one", or "seventy eight thousand seven hundred and
// one". All forms must resolve to the same digit string.

var digitGroupRe = regexp.MustCompile(`\d`)
var tokenRe = regexp.MustCompile(`[a-z0-9]+`)
var wordRe = regexp.MustCompile(`[a-z]+`)

var spokenDigits = map[string]string{
	"zero": "0", "oh": "0", "o": "0",
	"one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

var numberUnits = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var numberTens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// extractDigits returns the first n digits found in the transcript, drawing
// from numeric characters, spoken digit words, and full number-word forms, or
// "" when fewer than n digits are present.
func extractDigits(text string, n int) string {
	lower := strings.ToLower(text)

	// Contiguous or split numeric forms ("78701", "78 and 701").
	if digits := digitGroupRe.FindAllString(lower, -1); len(digits) >= n {
		return strings.Join(digits[:n], "")
	}

	// Spoken digit words, possibly mixed with numerals.
	var collected []string
	for _, token := range tokenRe.FindAllString(lower, -1) {
		if d, ok := spokenDigits[token]; ok {
			collected = append(collected, d)
		} else if isAllDigits(token) {
			for _, c := range token {
				collected = append(collected, string(c))
			}
		}
		if len(collected) >= n {
			return strings.Join(collected[:n], "")
		}
	}

	// Number-word forms ("seventy eight thousand seven hundred and one").
	if value, ok := numberFromWords(lower); ok {
		s := strconv.Itoa(value)
		if len(s) == n {
			return s
		}
	}

	return ""
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// numberFromWords parses an English number-word phrase embedded in text.
func numberFromWords(lower string) (int, bool) {
	tokens := wordRe.FindAllString(lower, -1)
	if len(tokens) == 0 {
		return 0, false
	}

	total, current := 0, 0
	sawNumber := false
	for _, token := range tokens {
		switch {
		case numberUnits[token] != 0 || token == "zero":
			current += numberUnits[token]
			sawNumber = true
		case numberTens[token] != 0:
			current += numberTens[token]
			sawNumber = true
		case token == "hundred":
			current = max(1, current) * 100
			sawNumber = true
		case token == "thousand":
			total += max(1, current) * 1000
			current = 0
			sawNumber = true
		case token == "and":
			continue
		case sawNumber:
			return total + current, true
		}
	}
	if !sawNumber {
		return 0, false
	}
	return total + current, true
}

var clockTimeRe = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?\b`)

// extractClockTime finds a spoken time of day and returns it as "HH:MM".
// Bare numbers without a meridiem or minutes are not treated as times, so
// ZIP codes and day-of-month mentions are not misread as clock times.
func extractClockTime(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, m := range clockTimeRe.FindAllStringSubmatch(lower, -1) {
		hour, _ := strconv.Atoi(m[1])
		minutes := m[2]
		meridiem := strings.ReplaceAll(m[3], ".", "")
		if meridiem == "" && minutes == "" {
			continue
		}
		if hour > 23 {
			continue
		}
		min := 0
		if minutes != "" {
			min, _ = strconv.Atoi(minutes)
			if min > 59 {
				continue
			}
		}
		if meridiem == "pm" && hour < 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
		return twoDigit(hour) + ":" + twoDigit(min), true
	}
	return "", false
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
