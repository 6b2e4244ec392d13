package models

import "time"

// Conversation is one logical thread of interaction with a user. ChannelID
// records where on the chat platform the thread lives so notifications can
// be routed back to it.
type Conversation struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    uint   `gorm:"not null;index"`
	Title     string `gorm:"size:200;not null"`
	ChannelID string `gorm:"size:128;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	User     User      `gorm:"foreignKey:UserID"`
	Messages []Message `gorm:"foreignKey:ConversationID"`
}

// Message is a single entry in a conversation's append-only log.
// SequenceNumber is monotonic per conversation and is the ordering key.
type Message struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ConversationID uint      `gorm:"not null;uniqueIndex:idx_conversation_sequence"`
	Role           string    `gorm:"size:50;not null"` // "system", "user", "assistant"
	Content        string    `gorm:"type:text;not null"`
	Timestamp      time.Time `gorm:"not null"`
	SequenceNumber int64     `gorm:"not null;uniqueIndex:idx_conversation_sequence"`
	Intent         *string   `gorm:"size:100"`
	Entities       *string   `gorm:"type:text"` // JSON
	Metadata       string    `gorm:"type:text"` // JSON

	Conversation Conversation `gorm:"foreignKey:ConversationID"`
}
