package domain

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 10, hour, minute, 0, 0, time.UTC)
}

func TestWithinQuietHours(t *testing.T) {
	tests := []struct {
		name  string
		now   time.Time
		start string
		end   string
		want  bool
	}{
		{"inside wrapped window late night", at(23, 0), "22:00", "06:00", true},
		{"inside wrapped window early morning", at(5, 59), "22:00", "06:00", true},
		{"end is exclusive", at(6, 0), "22:00", "06:00", false},
		{"start is inclusive", at(22, 0), "22:00", "06:00", true},
		{"daytime outside wrapped window", at(12, 0), "22:00", "06:00", false},
		{"plain window inside", at(10, 30), "09:00", "17:00", true},
		{"plain window before start", at(8, 59), "09:00", "17:00", false},
		{"plain window at end", at(17, 0), "09:00", "17:00", false},
		{"equal start and end disables quiet hours", at(3, 0), "04:00", "04:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithinQuietHours(tt.now, tt.start, tt.end)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("WithinQuietHours(%s, %s, %s) = %v, want %v",
					tt.now.Format("15:04"), tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestWithinQuietHours_InvalidClock(t *testing.T) {
	for _, bad := range []string{"25:00", "aa:bb", "12:75", ""} {
		if _, err := WithinQuietHours(at(12, 0), bad, "06:00"); err == nil {
			t.Fatalf("expected error for start %q", bad)
		}
		if _, err := WithinQuietHours(at(12, 0), "22:00", bad); err == nil {
			t.Fatalf("expected error for end %q", bad)
		}
	}
}
