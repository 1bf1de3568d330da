// Package jobs runs periodic maintenance work on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Spec     string
	Schedule cron.Schedule
	Run      func(ctx context.Context) error
}

// New parses spec (standard 5-field cron or a descriptor such as "@every 1m"
// or "@daily") and returns the job.
func New(name, spec string, run func(ctx context.Context) error) (Job, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Job{}, fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return Job{Name: name, Spec: spec, Schedule: sched, Run: run}, nil
}

// Runner drives jobs on a clock.
type Runner struct {
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewRunner(clock clockwork.Clock, logger *slog.Logger) *Runner {
	return &Runner{clock: clock, logger: logger}
}

// Loop runs job at every scheduled time until ctx is cancelled. Failures are
// logged and do not stop the loop. Meant to run under server.RunWithRecovery.
func (r *Runner) Loop(job Job) func(ctx context.Context) {
	return func(ctx context.Context) {
		r.logger.Info("job scheduled", "job", job.Name, "schedule", job.Spec)
		for {
			now := r.clock.Now()
			next := job.Schedule.Next(now)

			select {
			case <-ctx.Done():
				return
			case <-r.clock.After(next.Sub(now)):
			}

			r.RunOnce(ctx, job)
		}
	}
}

// RunOnce runs job immediately and logs the outcome.
func (r *Runner) RunOnce(ctx context.Context, job Job) {
	start := r.clock.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("job failed", "job", job.Name, "err", err, "duration", r.clock.Since(start))
		return
	}
	r.logger.Debug("job complete", "job", job.Name, "duration", r.clock.Since(start))
}
