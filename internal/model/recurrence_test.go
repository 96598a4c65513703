package model

import (
	"testing"
	"time"
)

func TestNewCustomRuleRejectsEmptyPeriod(t *testing.T) {
	rule := NewCustomRule(Duration{})
	if rule.Mode != RepeatNone {
		t.Fatalf("empty custom period should collapse to RepeatNone, got %q", rule.Mode)
	}
	if rule.IsRepeating() {
		t.Fatal("empty custom rule must not repeat")
	}
}

func TestNewPresetRuleNormalizesInvalidModes(t *testing.T) {
	for _, mode := range []RepeatMode{RepeatNone, RepeatCustom, RepeatMode("bogus")} {
		if got := NewPresetRule(mode); got.Mode != RepeatNone {
			t.Fatalf("NewPresetRule(%q).Mode = %q, want none", mode, got.Mode)
		}
	}
	if got := NewPresetRule(RepeatWeekly); got.Mode != RepeatWeekly {
		t.Fatalf("NewPresetRule(weekly).Mode = %q", got.Mode)
	}
}

func TestWithSkipDropsHalfConfiguredPairs(t *testing.T) {
	cases := []struct {
		remind, skip int
		wantSkip     bool
	}{
		{2, 1, true},
		{0, 1, false},
		{2, 0, false},
		{0, 0, false},
		{-1, 3, false},
	}
	for _, tc := range cases {
		rule := NewPresetRule(RepeatDaily).WithSkip(tc.remind, tc.skip)
		if rule.HasSkip() != tc.wantSkip {
			t.Fatalf("WithSkip(%d, %d).HasSkip() = %v, want %v", tc.remind, tc.skip, rule.HasSkip(), tc.wantSkip)
		}
	}
}

func TestNotifiesWithoutSkipAlwaysTrue(t *testing.T) {
	rule := NewPresetRule(RepeatDaily)
	for cursor := 1; cursor <= 10; cursor++ {
		if !rule.Notifies(cursor) {
			t.Fatalf("cursor %d should notify without a skip rule", cursor)
		}
	}
}

// Over any window 1..N with skip pair (R, S), the notify count must equal
// floor(N/(R+S))*R + min(N mod (R+S), R).
func TestNotifiesCountProperty(t *testing.T) {
	cases := []struct{ remind, skip, n int }{
		{2, 1, 10},
		{1, 1, 7},
		{3, 2, 23},
		{1, 4, 16},
	}
	for _, tc := range cases {
		rule := NewPresetRule(RepeatDaily).WithSkip(tc.remind, tc.skip)
		got := 0
		for cursor := 1; cursor <= tc.n; cursor++ {
			if rule.Notifies(cursor) {
				got++
			}
		}
		period := tc.remind + tc.skip
		want := (tc.n/period)*tc.remind + min(tc.n%period, tc.remind)
		if got != want {
			t.Fatalf("skip (%d,%d) over %d occurrences: %d notifies, want %d", tc.remind, tc.skip, tc.n, got, want)
		}
	}
}

func TestNextDuePresets(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		mode RepeatMode
		want time.Time
	}{
		{RepeatDaily, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)},
		{RepeatWeekly, time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)},
		{RepeatMonthly, time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)},
		{RepeatYearly, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		rule := NewPresetRule(tc.mode)
		if got := rule.NextDue(from); !got.Equal(tc.want) {
			t.Fatalf("%s NextDue = %v, want %v", tc.mode, got, tc.want)
		}
	}
}

func TestNextDueCustomPeriod(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	rule := NewCustomRule(Duration{Days: 2, Hours: 12, Minutes: 30})
	want := time.Date(2025, 3, 12, 21, 0, 0, 0, time.UTC)
	if got := rule.NextDue(from); !got.Equal(want) {
		t.Fatalf("custom NextDue = %v, want %v", got, want)
	}
}

func TestNextDueAppliesNegativeOffset(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := NewPresetRule(RepeatDaily).WithOffset(-60)
	want := time.Date(2025, 1, 2, 9, 59, 0, 0, time.UTC)
	if got := rule.NextDue(from); !got.Equal(want) {
		t.Fatalf("offset NextDue = %v, want %v", got, want)
	}
}

func TestNextDueNonRepeatingReturnsInput(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := RecurrenceRule{Mode: RepeatNone}
	if got := rule.NextDue(from); !got.Equal(from) {
		t.Fatalf("none NextDue = %v, want %v", got, from)
	}
}
