package models

import "time"

// Timer status values.
const (
	TimerActive    = "active"
	TimerPaused    = "paused"
	TimerCompleted = "completed"
	TimerCancelled = "cancelled"
)

// Timer is a countdown owned by a user. While paused, EndTime is stale and
// RemainingSeconds holds the time left at PausedAt.
type Timer struct {
	ID               uint       `gorm:"primaryKey;autoIncrement"`
	UserID           uint       `gorm:"not null;index"`
	ConversationID   string     `gorm:"size:100"`
	Name             string     `gorm:"size:200;not null"`
	DurationSeconds  int        `gorm:"not null"`
	EndTime          time.Time  `gorm:"not null;index"`
	Status           string     `gorm:"size:20;not null;default:active;index"`
	PausedAt         *time.Time
	RemainingSeconds *int

	WarningSent                bool `gorm:"column:three_minute_warning_sent;default:false"`
	CompletionNotificationSent bool `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}
