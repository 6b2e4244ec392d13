package ability

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/bruno/internal/logging"
	"github.com/zulandar/bruno/internal/models"
	"go.uber.org/zap"
)

// TimerEvent identifies a timer notification.
type TimerEvent string

// Timer notification kinds.
const (
	TimerWarning  TimerEvent = "warning"
	TimerFinished TimerEvent = "completed"
)

// TimerNotification is delivered when a timer nears or reaches its end.
type TimerNotification struct {
	Event TimerEvent
	Timer models.Timer
	Text  string
}

// Notifier delivers timer notifications to the user who owns the timer.
type Notifier interface {
	NotifyTimer(ctx context.Context, n TimerNotification) error
}

// SweeperOpts holds parameters for creating a Sweeper.
type SweeperOpts struct {
	Store    *TimerStore
	Notifier Notifier      // optional; flags are still flipped without one
	Warning  time.Duration // lead time of the warning; 0 means 3 minutes
	Logger   *zap.Logger
	Now      func() time.Time
}

// Sweeper completes expired timers and sends warning and completion
// notifications, each at most once per timer.
type Sweeper struct {
	store    *TimerStore
	notifier Notifier
	warning  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(opts SweeperOpts) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ability: timer store is required")
	}
	if opts.Warning <= 0 {
		opts.Warning = 3 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		store:    opts.Store,
		notifier: opts.Notifier,
		warning:  opts.Warning,
		logger:   logging.OrNop(opts.Logger),
		now:      opts.Now,
	}, nil
}

// Sweep processes every due timer once and returns the number of
// notifications claimed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.Due(ctx, now, s.warning)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		t := due[i]
		if !t.EndTime.After(now) {
			ok, err := s.store.MarkCompleted(ctx, t.ID)
			if err != nil {
				s.logger.Error("sweeper: complete timer", zap.Uint("timer_id", t.ID), zap.Error(err))
				continue
			}
			if ok {
				t.Status = models.TimerCompleted
				s.notify(ctx, TimerNotification{
					Event: TimerFinished,
					Timer: t,
					Text:  fmt.Sprintf("Your %s is done!", timerLabel(&t)),
				})
				sent++
			}
			continue
		}

		if t.WarningSent {
			continue
		}
		ok, err := s.store.MarkWarningSent(ctx, t.ID)
		if err != nil {
			s.logger.Error("sweeper: mark warning", zap.Uint("timer_id", t.ID), zap.Error(err))
			continue
		}
		// Timers shorter than the warning window never get a warning.
		if !ok || time.Duration(t.DurationSeconds)*time.Second <= s.warning {
			continue
		}
		s.notify(ctx, TimerNotification{
			Event: TimerWarning,
			Timer: t,
			Text:  fmt.Sprintf("%s left on your %s.", capitalize(humanDuration(remainingSeconds(&t, now))), timerLabel(&t)),
		})
		sent++
	}
	return sent, nil
}

func (s *Sweeper) notify(ctx context.Context, n TimerNotification) {
	s.logger.Info("timer notification",
		zap.Uint("timer_id", n.Timer.ID),
		zap.String("event", string(n.Event)),
		zap.String("conversation_id", n.Timer.ConversationID))
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyTimer(ctx, n); err != nil {
		s.logger.Warn("timer notification failed", zap.Uint("timer_id", n.Timer.ID), zap.Error(err))
	}
}
