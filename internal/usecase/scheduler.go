package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"AffineNews/internal/logging"
	"AffineNews/internal/ports"
)

// Scheduler runs a pipeline cycle on every tick of the driver. A tick that
// arrives while a cycle is still running is dropped.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	log      *slog.Logger
	running  atomic.Bool
	cycles   atomic.Int64
}

// NewScheduler binds the pipeline to a ticking driver.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, log: logger}
}

// Start hands the cycle job to the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) { s.tick(ctx, trigger) })
}

func (s *Scheduler) tick(ctx context.Context, trigger time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("previous cycle still running, tick dropped", "trigger", trigger)
		return
	}
	defer s.running.Store(false)

	n := s.cycles.Add(1)
	if err := s.pipeline.RunCycle(ctx, trigger); err != nil {
		s.log.Warn("pipeline cycle finished with errors", "cycle", n, "error", err)
	}
}

// Cycles reports how many cycles have started.
func (s *Scheduler) Cycles() int64 { return s.cycles.Load() }

// Stop tears down the driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
