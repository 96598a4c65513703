package model

import "time"

// Settings carries per-user notification preferences. One row per user.
type Settings struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"uniqueIndex"`

	// AdvanceNotifySeconds is the lead time for the early alert; zero
	// disables advance notifications.
	AdvanceNotifySeconds int `gorm:"default:0"`

	// AlsoNotifyAtDue controls whether a due alert still fires after an
	// advance alert already did for the same occurrence.
	AlsoNotifyAtDue bool

	// CompletedRetentionSeconds is how long finished timers stay listed;
	// zero keeps them forever.
	CompletedRetentionSeconds int `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultSettings returns the stock preferences for a new user.
func DefaultSettings(userID uint) Settings {
	return Settings{UserID: userID, AlsoNotifyAtDue: true}
}

// AdvanceLead returns the advance-notify lead as a duration.
func (s Settings) AdvanceLead() time.Duration {
	if s.AdvanceNotifySeconds <= 0 {
		return 0
	}
	return time.Duration(s.AdvanceNotifySeconds) * time.Second
}

// PurgePolicy derives the deletion policy from the stored preferences.
func (s Settings) PurgePolicy() PurgePolicy {
	p := DefaultPurgePolicy()
	if s.CompletedRetentionSeconds > 0 {
		p.CompletedRetention = time.Duration(s.CompletedRetentionSeconds) * time.Second
	}
	return p
}
