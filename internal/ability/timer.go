package ability

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/llm"
	"github.com/zulandar/bruno/internal/logging"
	"github.com/zulandar/bruno/internal/models"
	"go.uber.org/zap"
)

const defaultTimerName = "timer"

// TimerOpts holds parameters for creating a Timer ability.
type TimerOpts struct {
	Store  *TimerStore
	LLM    llm.Client // optional; resolves phrasing the grammar misses
	Logger *zap.Logger
	Now    func() time.Time
}

// Timer manages countdown timers: set, pause, resume, cancel and list.
type Timer struct {
	store  *TimerStore
	llm    llm.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewTimer creates a Timer ability.
func NewTimer(opts TimerOpts) (*Timer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ability: timer store is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Timer{
		store:  opts.Store,
		llm:    opts.LLM,
		logger: logging.OrNop(opts.Logger),
		now:    opts.Now,
	}, nil
}

// Name implements Ability.
func (a *Timer) Name() string { return NameTimer }

// Handle implements Ability. Commands that never mention timers are
// declined without touching the store.
func (a *Timer) Handle(ctx context.Context, req Request) (Result, error) {
	if !mentionsTimer(req.Command) {
		return Declined, nil
	}
	cmd := parseTimerCommand(req.Command)
	if cmd.Action == timerNone {
		cmd = a.extract(ctx, req.Command)
	}
	if cmd.Action == timerNone {
		return Declined, nil
	}

	userID, err := parseUserID(req.UserID)
	if err != nil {
		return Declined, wrap(NameTimer, err)
	}

	var res Result
	switch cmd.Action {
	case timerSet:
		res, err = a.set(ctx, userID, req.ConversationID, cmd)
	case timerPause:
		res, err = a.pause(ctx, userID, cmd.Name)
	case timerResume:
		res, err = a.resume(ctx, userID, cmd.Name)
	case timerCancel:
		res, err = a.cancel(ctx, userID, cmd.Name)
	case timerList:
		res, err = a.list(ctx, userID)
	}
	if err != nil {
		return Declined, wrap(NameTimer, err)
	}
	if res.Data == nil {
		res.Data = map[string]any{}
	}
	res.Data["action"] = string(cmd.Action)
	return res, nil
}

// extract asks the model to classify a timer request the grammar could not
// parse. Any failure yields timerNone.
func (a *Timer) extract(ctx context.Context, command string) timerCommand {
	none := timerCommand{Action: timerNone}
	if a.llm == nil {
		return none
	}
	reply, err := a.llm.Generate(ctx, []core.Message{
		core.NewMessage(core.RoleSystem, timerExtractionPrompt),
		core.NewMessage(core.RoleUser, command),
	}, llm.Options{Temperature: llm.Temperature(0.1), MaxTokens: 100})
	if err != nil {
		a.logger.Warn("timer: model extraction failed", zap.Error(err))
		return none
	}
	cmd, err := parseTimerJSON(reply)
	if err != nil {
		a.logger.Debug("timer: unusable extraction reply", zap.String("reply", reply), zap.Error(err))
		return none
	}
	return cmd
}

func (a *Timer) set(ctx context.Context, userID uint, conversationID string, cmd timerCommand) (Result, error) {
	if cmd.Seconds > maxTimerSeconds {
		return Result{Message: "Timers can run for at most 24 hours."}, nil
	}
	name := cmd.Name
	if name == "" {
		name = defaultTimerName
	}
	now := a.now().UTC()
	t := &models.Timer{
		UserID:          userID,
		ConversationID:  conversationID,
		Name:            name,
		DurationSeconds: cmd.Seconds,
		EndTime:         now.Add(time.Duration(cmd.Seconds) * time.Second),
		Status:          models.TimerActive,
	}
	if err := a.store.Create(ctx, t); err != nil {
		return Result{}, err
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("%s set for %s.", capitalize(timerLabel(t)), humanDuration(cmd.Seconds)),
		Data:    map[string]any{"timer_id": t.ID, "seconds": cmd.Seconds, "name": name},
	}, nil
}

func (a *Timer) pause(ctx context.Context, userID uint, name string) (Result, error) {
	t, err := a.store.Find(ctx, userID, name, models.TimerActive)
	if err != nil {
		return Result{}, err
	}
	if t == nil {
		return Result{Message: notFound("running", name)}, nil
	}
	if err := pauseTimer(t, a.now().UTC()); err != nil {
		return Result{}, err
	}
	if ok, err := a.store.Transition(ctx, t, models.TimerActive); err != nil {
		return Result{}, err
	} else if !ok {
		return Result{Message: notFound("running", name)}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Paused %s with %s left.", timerLabel(t), humanDuration(*t.RemainingSeconds)),
		Data:    map[string]any{"timer_id": t.ID},
	}, nil
}

func (a *Timer) resume(ctx context.Context, userID uint, name string) (Result, error) {
	t, err := a.store.Find(ctx, userID, name, models.TimerPaused)
	if err != nil {
		return Result{}, err
	}
	if t == nil {
		return Result{Message: notFound("paused", name)}, nil
	}
	now := a.now().UTC()
	if err := resumeTimer(t, now); err != nil {
		return Result{}, err
	}
	if ok, err := a.store.Transition(ctx, t, models.TimerPaused); err != nil {
		return Result{}, err
	} else if !ok {
		return Result{Message: notFound("paused", name)}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Resumed %s, %s left.", timerLabel(t), humanDuration(remainingSeconds(t, now))),
		Data:    map[string]any{"timer_id": t.ID},
	}, nil
}

func (a *Timer) cancel(ctx context.Context, userID uint, name string) (Result, error) {
	t, err := a.store.Find(ctx, userID, name, models.TimerActive, models.TimerPaused)
	if err != nil {
		return Result{}, err
	}
	if t == nil {
		return Result{Message: notFound("active", name)}, nil
	}
	if err := cancelTimer(t); err != nil {
		return Result{}, err
	}
	if ok, err := a.store.Transition(ctx, t, models.TimerActive, models.TimerPaused); err != nil {
		return Result{}, err
	} else if !ok {
		return Result{Message: notFound("active", name)}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Cancelled %s.", timerLabel(t)),
		Data:    map[string]any{"timer_id": t.ID},
	}, nil
}

func (a *Timer) list(ctx context.Context, userID uint) (Result, error) {
	timers, err := a.store.Open(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if len(timers) == 0 {
		return Result{Success: true, Message: "You have no active timers."}, nil
	}
	now := a.now().UTC()
	lines := make([]string, 0, len(timers))
	for i := range timers {
		t := &timers[i]
		line := fmt.Sprintf("%s: %s left", capitalize(timerLabel(t)), humanDuration(remainingSeconds(t, now)))
		if t.Status == models.TimerPaused {
			line += " (paused)"
		}
		lines = append(lines, line+".")
	}
	return Result{
		Success: true,
		Message: strings.Join(lines, "\n"),
		Data:    map[string]any{"count": len(timers)},
	}, nil
}

func notFound(state, name string) string {
	if name != "" {
		return fmt.Sprintf("You have no %s timer called %s.", state, name)
	}
	return fmt.Sprintf("You have no %s timers.", state)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
