package models

import "time"

// Note is a named, ordered list of entries owned by a user.
type Note struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    uint   `gorm:"not null;index"`
	Name      string `gorm:"size:100;default:Untitled"`
	CreatedAt time.Time
	UpdatedAt time.Time

	User    User        `gorm:"foreignKey:UserID"`
	Entries []NoteEntry `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE"`
}

// NoteEntry is one line of a note. Position is 1-based within the note.
type NoteEntry struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	NoteID    uint   `gorm:"not null;index"`
	Content   string `gorm:"type:text;not null"`
	Position  int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
