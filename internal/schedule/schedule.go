// Package schedule runs periodic background jobs (timer sweeps, session
// pruning) on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/bruno/internal/logging"
	"go.uber.org/zap"
)

// parser accepts standard 5-field expressions and descriptors such as
// "@every 15s" and "@hourly".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled task.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// NextDelay parses spec and returns the duration from now until its next
// activation.
func NextDelay(spec string, now time.Time) (time.Duration, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return 0, fmt.Errorf("schedule: parse %q: %w", spec, err)
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		d = 0
	}
	return d, nil
}

// Validate checks every job's spec without running anything.
func Validate(jobs ...Job) error {
	for _, j := range jobs {
		if j.Run == nil {
			return fmt.Errorf("schedule: job %q has no Run func", j.Name)
		}
		if _, err := parser.Parse(j.Spec); err != nil {
			return fmt.Errorf("schedule: job %q: parse %q: %w", j.Name, j.Spec, err)
		}
	}
	return nil
}

// Run executes jobs on their schedules until ctx is cancelled. A failing
// run is logged and the job is rescheduled. Run returns nil on
// cancellation.
func Run(ctx context.Context, logger *zap.Logger, jobs ...Job) error {
	if err := Validate(jobs...); err != nil {
		return err
	}
	logger = logging.OrNop(logger)

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			runJob(ctx, logger, j)
		}(j)
	}
	wg.Wait()
	return nil
}

func runJob(ctx context.Context, logger *zap.Logger, j Job) {
	d, _ := NextDelay(j.Spec, time.Now())
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("scheduled job failed", zap.String("job", j.Name), zap.Error(err))
			}
			d, _ := NextDelay(j.Spec, time.Now())
			timer.Reset(d)
		}
	}
}
