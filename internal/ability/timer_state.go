package ability

import (
	"fmt"
	"math"
	"time"

	"github.com/zulandar/bruno/internal/models"
)

// Timer transitions. active and paused move freely between each other;
// completed and cancelled are terminal.

func pauseTimer(t *models.Timer, now time.Time) error {
	if t.Status != models.TimerActive {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, t.Status)
	}
	rem := remainingSeconds(t, now)
	t.Status = models.TimerPaused
	t.PausedAt = &now
	t.RemainingSeconds = &rem
	return nil
}

func resumeTimer(t *models.Timer, now time.Time) error {
	if t.Status != models.TimerPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, t.Status)
	}
	rem := 0
	if t.RemainingSeconds != nil {
		rem = *t.RemainingSeconds
	}
	t.Status = models.TimerActive
	t.EndTime = now.Add(time.Duration(rem) * time.Second)
	t.PausedAt = nil
	t.RemainingSeconds = nil
	return nil
}

func cancelTimer(t *models.Timer) error {
	if t.Status != models.TimerActive && t.Status != models.TimerPaused {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = models.TimerCancelled
	return nil
}

// remainingSeconds is the whole seconds left on t at now, rounded up.
func remainingSeconds(t *models.Timer, now time.Time) int {
	switch t.Status {
	case models.TimerPaused:
		if t.RemainingSeconds != nil {
			return *t.RemainingSeconds
		}
		return 0
	case models.TimerActive:
		left := t.EndTime.Sub(now).Seconds()
		if left <= 0 {
			return 0
		}
		return int(math.Ceil(left))
	default:
		return 0
	}
}

// timerLabel is how replies and notifications refer to t.
func timerLabel(t *models.Timer) string {
	if t.Name == "" || t.Name == defaultTimerName {
		return "timer"
	}
	return t.Name + " timer"
}
