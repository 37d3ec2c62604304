package calendar

import (
	"testing"
	"time"
)

func TestToday_UsesLocation(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)

	// 20:30 UTC on May 31 is already June 1 in Bangkok.
	now := time.Date(2024, 5, 31, 20, 30, 0, 0, time.UTC)

	if got := Format(Today(now, time.UTC)); got != "2024-05-31" {
		t.Errorf("UTC today = %s, want 2024-05-31", got)
	}
	if got := Format(Today(now, bangkok)); got != "2024-06-01" {
		t.Errorf("Bangkok today = %s, want 2024-06-01", got)
	}
	if got := Format(Today(now, nil)); got != "2024-05-31" {
		t.Errorf("nil location today = %s, want 2024-05-31", got)
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("2024-06-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", d)
	}

	for _, bad := range []string{"", "2024/06/01", "01-06-2024", "2024-13-01"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestDay_DropsClock(t *testing.T) {
	in := time.Date(2024, 6, 1, 23, 59, 59, 999, time.UTC)
	if !Day(in).Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day(%v) = %v", in, Day(in))
	}
}
