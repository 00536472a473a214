package timeparser

import (
	"testing"
	"time"
)

func TestParseReadingDate_Formats(t *testing.T) {
	cases := map[string]time.Time{
		"29/12/2025 10:30:45":  time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC),
		"29 10:30:45/12/2025":  time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC),
		"2025-12-29T10:30:45Z": time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC),
		"2025-12-29":           time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC),
		"29/12/2025":           time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC),
	}

	for in, want := range cases {
		got, err := ParseReadingDate(in)
		if err != nil {
			t.Errorf("Failed to parse %q: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseReadingDate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseReadingDate_OffsetNormalisedToUTC(t *testing.T) {
	got, err := ParseReadingDate("2025-12-29T07:00:00+07:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}
	if got.Location() != time.UTC || got.Hour() != 0 {
		t.Errorf("Expected midnight UTC, got %v", got)
	}
}

func TestParseReadingDate_Invalid(t *testing.T) {
	if _, err := ParseReadingDate("invalid-date-string"); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestIsWithinFutureTolerance(t *testing.T) {
	now := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)

	if !IsWithinFutureTolerance(now.Add(-72*time.Hour), now, 5) {
		t.Error("Expected past reading to be accepted")
	}
	if !IsWithinFutureTolerance(now.Add(5*time.Minute), now, 5) {
		t.Error("Expected reading at exact boundary to be accepted")
	}
	if IsWithinFutureTolerance(now.Add(6*time.Minute), now, 5) {
		t.Error("Expected reading beyond tolerance to be rejected")
	}
}
