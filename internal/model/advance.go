package model

import "time"

// RecurrenceState is the scheduling state of a timer's rule.
type RecurrenceState string

const (
	StateInactive    RecurrenceState = "inactive"
	StateScheduled   RecurrenceState = "scheduled"
	StateDue         RecurrenceState = "due"
	StateAwaitingAck RecurrenceState = "awaiting_ack"
	StateExpired     RecurrenceState = "expired"
)

// AdvanceResult reports what a recurrence advance did.
type AdvanceResult int

const (
	// AdvanceNone: the rule does not repeat, nothing changed.
	AdvanceNone AdvanceResult = iota
	// AdvanceNotified: moved to the next occurrence, user should be told.
	AdvanceNotified
	// AdvancePaused: notified and now waiting for acknowledgement.
	AdvancePaused
	// AdvanceExpired: the next occurrence would pass EndAt; the due
	// instant keeps its last valid value and the rule is finished.
	AdvanceExpired
)

// maxSkipChain bounds consecutive silent skips so a rule whose offset pulls
// occurrences backwards cannot spin forever.
const maxSkipChain = 1000

// RecurrenceState derives the engine state for the given instant.
func (t *Task) RecurrenceState(now time.Time) RecurrenceState {
	switch {
	case !t.Repeat.IsRepeating():
		return StateInactive
	case t.Expired:
		return StateExpired
	case t.AwaitingAck:
		return StateAwaitingAck
	case t.HasFinish() && !t.FinishAt.After(now):
		return StateDue
	default:
		return StateScheduled
	}
}

// AdvanceRecurrence moves a repeating timer to its next occurrence once it
// has reached its due instant. Silent skip occurrences chain: the cursor
// advances and the due instant moves again without any user-visible effect
// until a notify occurrence or expiry is reached.
func (t *Task) AdvanceRecurrence() AdvanceResult {
	if !t.Repeat.IsRepeating() || t.Expired || !t.HasFinish() {
		return AdvanceNone
	}

	for i := 0; i < maxSkipChain; i++ {
		t.OccurrenceCursor++
		notify := t.Repeat.Notifies(t.OccurrenceCursor)

		next := t.Repeat.NextDue(t.FinishAt)
		if t.Repeat.EndAt != nil && !next.Before(*t.Repeat.EndAt) {
			t.Expired = true
			return AdvanceExpired
		}
		t.FinishAt = next

		if notify {
			t.NotifyCount++
			t.Notified = false
			t.AdvanceNotified = false
			if t.Repeat.PauseUntilAck {
				t.AwaitingAck = true
				return AdvancePaused
			}
			return AdvanceNotified
		}
	}

	t.Expired = true
	return AdvanceExpired
}
