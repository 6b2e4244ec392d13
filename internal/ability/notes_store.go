package ability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/bruno/internal/models"
	"gorm.io/gorm"
)

// NoteStore persists notes and their ordered entries.
type NoteStore struct {
	db *gorm.DB
}

// NewNoteStore creates a NoteStore.
func NewNoteStore(db *gorm.DB) *NoteStore {
	return &NoteStore{db: db}
}

// Create inserts an empty note.
func (s *NoteStore) Create(ctx context.Context, userID uint, name string) (*models.Note, error) {
	note := models.Note{UserID: userID, Name: name}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return nil, fmt.Errorf("note store: create: %w", err)
	}
	return &note, nil
}

// FindByName returns the user's note called name (case-insensitive), or
// nil.
func (s *NoteStore) FindByName(ctx context.Context, userID uint, name string) (*models.Note, error) {
	var note models.Note
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(name) = ?", userID, strings.ToLower(name)).
		Order("id DESC").First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("note store: find %q: %w", name, err)
	}
	return &note, nil
}

// Get returns one of the user's notes by id with its entries, or nil.
func (s *NoteStore) Get(ctx context.Context, userID, id uint) (*models.Note, error) {
	var note models.Note
	err := s.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).First(&note, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("note store: get %d: %w", id, err)
	}
	return &note, nil
}

// List returns the user's notes with their entries, oldest first.
func (s *NoteStore) List(ctx context.Context, userID uint) ([]models.Note, error) {
	var notes []models.Note
	if err := s.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).Order("id ASC").Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("note store: list: %w", err)
	}
	return notes, nil
}

// AddEntry appends content to a note at the next position.
func (s *NoteStore) AddEntry(ctx context.Context, noteID uint, content string) (*models.NoteEntry, error) {
	entry := models.NoteEntry{NoteID: noteID, Content: content}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&models.NoteEntry{}).Where("note_id = ?", noteID).
			Select("COALESCE(MAX(position), 0)").Scan(&maxPos).Error; err != nil {
			return err
		}
		entry.Position = maxPos + 1
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&models.Note{}).Where("id = ?", noteID).Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("note store: add entry: %w", err)
	}
	return &entry, nil
}

// RemoveEntry deletes the entry at position and closes the gap. It reports
// false when the note has no such entry.
func (s *NoteStore) RemoveEntry(ctx context.Context, noteID uint, position int) (bool, error) {
	removed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("note_id = ? AND position = ?", noteID, position).Delete(&models.NoteEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&models.NoteEntry{}).
			Where("note_id = ? AND position > ?", noteID, position).
			Update("position", gorm.Expr("position - 1")).Error
	})
	if err != nil {
		return false, fmt.Errorf("note store: remove entry: %w", err)
	}
	return removed, nil
}

// Delete removes a note and all of its entries.
func (s *NoteStore) Delete(ctx context.Context, noteID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("note_id = ?", noteID).Delete(&models.NoteEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Note{}, noteID).Error
	})
	if err != nil {
		return fmt.Errorf("note store: delete %d: %w", noteID, err)
	}
	return nil
}
