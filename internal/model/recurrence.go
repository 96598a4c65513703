package model

import "time"

// RepeatMode selects how a timer reschedules after it finishes.
type RepeatMode string

const (
	RepeatNone    RepeatMode = "none"
	RepeatDaily   RepeatMode = "daily"
	RepeatWeekly  RepeatMode = "weekly"
	RepeatMonthly RepeatMode = "monthly"
	RepeatYearly  RepeatMode = "yearly"
	RepeatCustom  RepeatMode = "custom"
)

func (m RepeatMode) IsValid() bool {
	switch m {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly, RepeatCustom:
		return true
	default:
		return false
	}
}

// RecurrenceRule describes how and when a repeating timer reschedules.
// Build rules through NewPresetRule/NewCustomRule so that invalid input is
// normalized away instead of surfacing later: an all-zero custom period
// collapses to RepeatNone, and a skip pair with only one positive side is
// dropped entirely.
type RecurrenceRule struct {
	Mode   RepeatMode
	Custom Duration `gorm:"embedded;embeddedPrefix:custom_"`

	// EndAt stops rescheduling once the next occurrence would reach it.
	EndAt *time.Time

	// RemindEvery/SkipCount implement "notify N times, then skip M".
	// Both positive or the pair is disabled.
	RemindEvery int
	SkipCount   int

	// PauseUntilAck holds a triggered timer until the user confirms it.
	PauseUntilAck bool

	// OffsetAfterSeconds shifts every computed next occurrence; negative
	// values pull it earlier.
	OffsetAfterSeconds int
}

// NewPresetRule builds a rule for one of the fixed cadences. RepeatCustom is
// rejected here (it needs a period); unknown modes collapse to RepeatNone.
func NewPresetRule(mode RepeatMode) RecurrenceRule {
	switch mode {
	case RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return RecurrenceRule{Mode: mode}
	default:
		return RecurrenceRule{Mode: RepeatNone}
	}
}

// NewCustomRule builds a rule with a free-form period. An all-zero period
// yields RepeatNone so a custom rule that can never fire cannot exist.
func NewCustomRule(period Duration) RecurrenceRule {
	period = period.Normalize()
	if period.IsZero() {
		return RecurrenceRule{Mode: RepeatNone}
	}
	return RecurrenceRule{Mode: RepeatCustom, Custom: period}
}

// WithSkip returns a copy carrying the "notify remindEvery times, then skip
// skipCount times" cycle. The pair is only kept when both sides are positive.
func (r RecurrenceRule) WithSkip(remindEvery, skipCount int) RecurrenceRule {
	if remindEvery > 0 && skipCount > 0 {
		r.RemindEvery = remindEvery
		r.SkipCount = skipCount
	} else {
		r.RemindEvery = 0
		r.SkipCount = 0
	}
	return r
}

// WithEnd returns a copy that stops rescheduling at endAt.
func (r RecurrenceRule) WithEnd(endAt time.Time) RecurrenceRule {
	r.EndAt = &endAt
	return r
}

// WithOffset returns a copy shifting each next occurrence by the given
// number of seconds (negative = earlier).
func (r RecurrenceRule) WithOffset(seconds int) RecurrenceRule {
	r.OffsetAfterSeconds = seconds
	return r
}

// WithPauseUntilAck returns a copy that waits for user confirmation after
// each notified occurrence.
func (r RecurrenceRule) WithPauseUntilAck(pause bool) RecurrenceRule {
	r.PauseUntilAck = pause
	return r
}

// IsRepeating reports whether the rule ever reschedules. A custom rule with
// an empty period counts as not repeating even if one was constructed by
// hand around the constructors.
func (r RecurrenceRule) IsRepeating() bool {
	switch r.Mode {
	case RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return true
	case RepeatCustom:
		return !r.Custom.IsZero()
	default:
		return false
	}
}

// HasSkip reports whether a valid skip cycle is configured.
func (r RecurrenceRule) HasSkip() bool {
	return r.RemindEvery > 0 && r.SkipCount > 0
}

// Notifies reports whether the occurrence at the given 1-based cursor value
// is user-visible. With a skip cycle of (R, S), positions 1..R of every
// R+S-length period notify and the rest are silent. Without a skip cycle
// every occurrence notifies.
func (r RecurrenceRule) Notifies(cursor int) bool {
	if !r.HasSkip() {
		return true
	}
	period := r.RemindEvery + r.SkipCount
	pos := cursor % period
	if pos == 0 {
		pos = period
	}
	return pos <= r.RemindEvery
}

// NextDue returns the raw next occurrence after from, including the
// configured offset. Month and year presets use calendar addition so
// "monthly from Jan 31" behaves the way the host calendar resolves it.
// Returns from unchanged when the rule does not repeat.
func (r RecurrenceRule) NextDue(from time.Time) time.Time {
	var next time.Time
	switch r.Mode {
	case RepeatDaily:
		next = from.AddDate(0, 0, 1)
	case RepeatWeekly:
		next = from.AddDate(0, 0, 7)
	case RepeatMonthly:
		next = from.AddDate(0, 1, 0)
	case RepeatYearly:
		next = from.AddDate(1, 0, 0)
	case RepeatCustom:
		if r.Custom.IsZero() {
			return from
		}
		p := r.Custom.Normalize()
		next = from.AddDate(p.Years, p.Months, p.Days)
		next = next.Add(time.Duration(p.Hours)*time.Hour +
			time.Duration(p.Minutes)*time.Minute +
			time.Duration(p.Seconds)*time.Second)
	default:
		return from
	}
	return next.Add(time.Duration(r.OffsetAfterSeconds) * time.Second)
}
