package ability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/bruno/internal/models"
	"gorm.io/gorm"
)

// TimerStore persists timers.
type TimerStore struct {
	db *gorm.DB
}

// NewTimerStore creates a TimerStore.
func NewTimerStore(db *gorm.DB) *TimerStore {
	return &TimerStore{db: db}
}

// Create inserts a new timer.
func (s *TimerStore) Create(ctx context.Context, t *models.Timer) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("timer store: create: %w", err)
	}
	return nil
}

// Transition writes t's status and schedule fields, but only while the
// stored timer is still in one of from. It reports false when the timer was
// moved by someone else (a sweep completing it, a concurrent cancel) since
// it was read; the stored row is then left untouched.
func (s *TimerStore) Transition(ctx context.Context, t *models.Timer, from ...string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Timer{}).
		Where("id = ? AND status IN ?", t.ID, from).
		Updates(map[string]any{
			"status":            t.Status,
			"end_time":          t.EndTime,
			"paused_at":         t.PausedAt,
			"remaining_seconds": t.RemainingSeconds,
		})
	if res.Error != nil {
		return false, fmt.Errorf("timer store: transition %d to %s: %w", t.ID, t.Status, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Get loads a timer by id.
func (s *TimerStore) Get(ctx context.Context, id uint) (*models.Timer, error) {
	var t models.Timer
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, fmt.Errorf("timer store: get %d: %w", id, err)
	}
	return &t, nil
}

// Open lists a user's timers in the given statuses (active and paused when
// none are given), oldest first.
func (s *TimerStore) Open(ctx context.Context, userID uint, statuses ...string) ([]models.Timer, error) {
	if len(statuses) == 0 {
		statuses = []string{models.TimerActive, models.TimerPaused}
	}
	var timers []models.Timer
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, statuses).
		Order("id ASC").Find(&timers).Error; err != nil {
		return nil, fmt.Errorf("timer store: list: %w", err)
	}
	return timers, nil
}

// Find returns the user's most recent timer in one of statuses, matching
// name case-insensitively when name is set. It returns nil when nothing
// matches.
func (s *TimerStore) Find(ctx context.Context, userID uint, name string, statuses ...string) (*models.Timer, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND status IN ?", userID, statuses)
	if name != "" {
		q = q.Where("LOWER(name) = ?", strings.ToLower(name))
	}
	var t models.Timer
	err := q.Order("id DESC").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("timer store: find: %w", err)
	}
	return &t, nil
}

// Due lists active timers that end within window of now and still have a
// notification outstanding.
func (s *TimerStore) Due(ctx context.Context, now time.Time, window time.Duration) ([]models.Timer, error) {
	var timers []models.Timer
	if err := s.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", models.TimerActive, now.Add(window)).
		Where("three_minute_warning_sent = ? OR completion_notification_sent = ?", false, false).
		Order("end_time ASC").Find(&timers).Error; err != nil {
		return nil, fmt.Errorf("timer store: due: %w", err)
	}
	return timers, nil
}

// MarkWarningSent flips the warning flag. It reports false when the flag
// was already set, so each warning is claimed once.
func (s *TimerStore) MarkWarningSent(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Timer{}).
		Where("id = ? AND three_minute_warning_sent = ?", id, false).
		Update("three_minute_warning_sent", true)
	if res.Error != nil {
		return false, fmt.Errorf("timer store: mark warning %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted moves an active timer to completed and flips both
// notification flags. It reports false when another sweep got there first.
func (s *TimerStore) MarkCompleted(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Timer{}).
		Where("id = ? AND status = ? AND completion_notification_sent = ?", id, models.TimerActive, false).
		Updates(map[string]any{
			"status":                       models.TimerCompleted,
			"completion_notification_sent": true,
			"three_minute_warning_sent":    true,
		})
	if res.Error != nil {
		return false, fmt.Errorf("timer store: complete %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
