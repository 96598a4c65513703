package model

import "time"

// Task represents a single tracked upgrade timer.
type Task struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    uint  `gorm:"index"`
	AccountID *uint `gorm:"index"`
	Name      string

	// StartAt is when the upgrade was started; nil until the user sets it.
	// FinishAt is always StartAt plus Length, recomputed on every edit and
	// only moved independently by recurrence advancement.
	StartAt  *time.Time
	Length   Duration `gorm:"embedded;embeddedPrefix:length_"`
	FinishAt time.Time

	Notified        bool `gorm:"default:false"`
	AdvanceNotified bool `gorm:"default:false"`
	AwaitingAck     bool `gorm:"default:false"`
	Done            bool `gorm:"default:false"`
	Expired         bool `gorm:"default:false"`

	PendingDelete  bool `gorm:"default:false"`
	DeleteMarkedAt *time.Time
	CompletedAt    *time.Time

	Repeat RecurrenceRule `gorm:"embedded;embeddedPrefix:repeat_"`

	// OccurrenceCursor counts every firing of the rule including silent
	// skips; NotifyCount only the user-visible ones. Both reset on edits
	// because their meaning is tied to the rule instance.
	OccurrenceCursor int
	NotifyCount      int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasFinish reports whether the timer has a computable due instant.
func (t *Task) HasFinish() bool {
	return t.StartAt != nil && !t.FinishAt.IsZero()
}

// SetStart moves the start instant and recomputes the due instant.
func (t *Task) SetStart(start time.Time) {
	t.StartAt = &start
	t.recompute()
}

// SetLength replaces the entered duration and recomputes the due instant.
func (t *Task) SetLength(length Duration) {
	t.Length = length.Normalize()
	t.recompute()
}

// SetRepeat replaces the recurrence rule.
func (t *Task) SetRepeat(rule RecurrenceRule) {
	t.Repeat = rule
	t.resetCycle()
}

func (t *Task) recompute() {
	if t.StartAt == nil {
		t.FinishAt = time.Time{}
	} else {
		l := t.Length.Normalize()
		finish := t.StartAt.AddDate(l.Years, l.Months, l.Days)
		finish = finish.Add(time.Duration(l.Hours)*time.Hour +
			time.Duration(l.Minutes)*time.Minute +
			time.Duration(l.Seconds)*time.Second)
		t.FinishAt = finish
	}
	t.resetCycle()
}

// resetCycle clears per-occurrence state after a user edit: the cursor is
// meaningless under a changed start, duration or rule.
func (t *Task) resetCycle() {
	t.OccurrenceCursor = 0
	t.NotifyCount = 0
	t.Notified = false
	t.AdvanceNotified = false
	t.AwaitingAck = false
	t.Expired = false
}

// Acknowledge confirms a paused occurrence and resumes normal scheduling.
// The cursor keeps the value the advance step already gave it.
func (t *Task) Acknowledge() {
	t.AwaitingAck = false
}

// MarkDone closes a non-repeating timer.
func (t *Task) MarkDone(now time.Time) {
	t.Done = true
	t.CompletedAt = &now
}

// MarkPendingDelete starts the undo grace window.
func (t *Task) MarkPendingDelete(now time.Time) {
	t.PendingDelete = true
	t.DeleteMarkedAt = &now
}

// UndoPendingDelete cancels a delete still inside its grace window.
func (t *Task) UndoPendingDelete() {
	t.PendingDelete = false
	t.DeleteMarkedAt = nil
}
