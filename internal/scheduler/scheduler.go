package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/elonfeng/skillradar/internal/pipeline"
)

// Runner executes one ingestion cycle.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// Scheduler runs ingestion cycles on a cron schedule, evaluated in UTC.
type Scheduler struct {
	runner     Runner
	spec       string
	schedule   cron.Schedule
	runOnStart bool
	log        *slog.Logger
}

// New creates a scheduler for a standard 5-field cron spec. When runOnStart is
// set a cycle runs as soon as Run is called.
func New(r Runner, spec string, runOnStart bool, log *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		runner:     r,
		spec:       spec,
		schedule:   schedule,
		runOnStart: runOnStart,
		log:        log,
	}, nil
}

// Next returns the first scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.UTC())
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.cycle(ctx) }))

	if s.runOnStart {
		s.log.Info("scheduler: initial cycle")
		s.cycle(ctx)
	}

	c.Start()
	s.log.Info("scheduler: running", "schedule", s.spec, "next", s.Next(time.Now()))

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler: stopped")
	return ctx.Err()
}

func (s *Scheduler) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunning):
		s.log.Warn("scheduler: cycle skipped, previous still running")
	case err != nil:
		s.log.Error("scheduler: cycle failed", "error", err)
	default:
		s.log.Info("scheduler: cycle done", "run_id", res.RunID, "skills", len(res.Trends.Records))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
