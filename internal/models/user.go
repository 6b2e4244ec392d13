package models

import "time"

// User is a person the bot talks to. Username is the platform-qualified
// handle (e.g. "discord:1234").
type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:100;not null"`
	Username  string `gorm:"size:100;uniqueIndex"`
	CreatedAt time.Time

	Conversations []Conversation `gorm:"foreignKey:UserID"`
	Timers        []Timer        `gorm:"foreignKey:UserID"`
	Notes         []Note         `gorm:"foreignKey:UserID"`
}
