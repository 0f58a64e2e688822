package timeutil

import (
	"testing"
	"time"
)

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"9:00 AM", "09:00", true},
		{"9am", "09:00", true},
		{"at 7 pm", "19:00", true},
		{"14:00", "14:00", true},
		{"12am", "00:00", true},
		{"12pm", "12:00", true},
		{"12:30 pm", "12:30", true},
		{"11:59", "11:59", true},
		{"remind me at 6:15", "06:15", true},
		{"the 3 reports", "", false},
		{"sometime soon", "", false},
		{"", "", false},
		{"25:00", "", false},
		{"9:75 am", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeClock(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("NormalizeClock(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveDate(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"today", "2026-03-14", true},
		{"Tomorrow", "2026-03-15", true},
		{"  tomorrow ", "2026-03-15", true},
		{"2026-04-01", "2026-04-01", true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveDate(tt.input, now)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ResolveDate(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}
