// Package timeutil normalizes the loose time expressions that show up
// in user messages and confirmation answers.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// clockPattern matches explicit clock times: "9:00 AM", "9am", "14:00",
// "at 7", "7 pm".
var clockPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

// NormalizeClock extracts a clock time from free text and returns it in
// 24-hour "HH:MM" form. The second return is false when no plausible
// time is present.
func NormalizeClock(text string) (string, bool) {
	match := clockPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}

	hour, err := strconv.Atoi(match[1])
	if err != nil || hour > 23 {
		return "", false
	}

	minute := 0
	if match[2] != "" {
		minute, err = strconv.Atoi(match[2])
		if err != nil || minute > 59 {
			return "", false
		}
	}

	meridiem := strings.ToLower(match[3])
	// A bare number with no minutes and no meridiem ("remind me about
	// the 3 reports") is too ambiguous to treat as a time.
	if match[2] == "" && meridiem == "" {
		return "", false
	}

	switch meridiem {
	case "pm":
		if hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	}

	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// ResolveDate maps a loose date word to a concrete calendar date
// relative to now. Recognizes "today" and "tomorrow"; anything else
// (including an already-concrete YYYY-MM-DD) is returned unchanged with
// ok=false when empty.
func ResolveDate(word string, now time.Time) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "today":
		return now.Format("2006-01-02"), true
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02"), true
	case "":
		return "", false
	default:
		return word, true
	}
}
