package core

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in   string
		want Month
		ok   bool
	}{
		{"2026-08", Month{2026, time.August}, true},
		{"2025-01", Month{2025, time.January}, true},
		{"2025-12", Month{2025, time.December}, true},
		{"2025-13", Month{}, false},
		{"2025-00", Month{}, false},
		{"2025-1", Month{}, false},
		{"25-01", Month{}, false},
		{"garbage", Month{}, false},
		{"", Month{}, false},
	}
	for _, tc := range cases {
		got, err := ParseMonth(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseMonth(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseMonth(%q) expected error", tc.in)
		}
	}
}

func TestMonthRange(t *testing.T) {
	m := Month{2025, time.December}
	start, end := m.Range()
	if start != time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("start = %v", start)
	}
	if end != time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("end = %v", end)
	}
	if !m.Contains(time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)) {
		t.Fatal("expected last instant of month to be contained")
	}
	if m.Contains(end) {
		t.Fatal("end is exclusive")
	}
}

func TestMonthPrevNext(t *testing.T) {
	m := Month{2026, time.January}
	if p := m.Prev(); p != (Month{2025, time.December}) {
		t.Fatalf("Prev = %v", p)
	}
	if n := (Month{2025, time.December}).Next(); n != m {
		t.Fatalf("Next = %v", n)
	}
}

func TestMonthString(t *testing.T) {
	if s := (Month{2026, time.March}).String(); s != "2026-03" {
		t.Fatalf("String = %q", s)
	}
}
