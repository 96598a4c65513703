package model

import "time"

// Account groups timers by the game account that owns them.
type Account struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index"`
	Name      string `gorm:"index:idx_user_account_name,unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:AccountID"`
}
