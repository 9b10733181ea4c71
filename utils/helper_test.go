package utils

import (
	"testing"
	"time"
)

// Report rows are keyed on station-timezone midnight. A date parsed from a
// YYYY-MM-DD request parameter is UTC midnight, a different instant in any
// offset zone; it must round-trip through ConvertToDate before it can match
// a stored report_date.
func TestConvertToDateAlignsQueryKeyWithStoredKey(t *testing.T) {
	parsed, err := time.Parse("2006-01-02", "2026-03-14")
	if err != nil {
		t.Fatal(err)
	}

	stored, err := ConvertToDate(parsed, "Asia/Yangon")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Equal(parsed) {
		t.Fatalf("expected offset zone to shift the instant, both are %v", stored)
	}

	queried, err := ConvertToDate(parsed, "Asia/Yangon")
	if err != nil {
		t.Fatal(err)
	}
	if !queried.Equal(stored) {
		t.Fatalf("normalized query key %v does not match stored key %v", queried, stored)
	}
}

// Dates already normalized by the posting workflow pass through unchanged,
// so read paths may normalize unconditionally.
func TestConvertToDateIdempotent(t *testing.T) {
	parsed, err := time.Parse("2006-01-02", "2026-03-14")
	if err != nil {
		t.Fatal(err)
	}
	once, err := ConvertToDate(parsed, "Asia/Yangon")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := ConvertToDate(once, "Asia/Yangon")
	if err != nil {
		t.Fatal(err)
	}
	if !twice.Equal(once) {
		t.Fatalf("second normalization moved the instant: %v != %v", twice, once)
	}
	if y, m, d := once.Date(); y != 2026 || m != time.March || d != 14 {
		t.Fatalf("normalization changed the calendar date: %v", once)
	}
}

func TestConvertToDateUnknownTimezone(t *testing.T) {
	if _, err := ConvertToDate(time.Now(), "Not/AZone"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
