// Package worker runs the periodic jobs of the bot on a single goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/CedricFinance/paulpoll/domain/updates"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Config struct {
	DrainInterval        time.Duration
	PruneInterval        time.Duration
	TicketMaxAge         time.Duration
	NotificationInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		DrainInterval:        time.Second,
		PruneInterval:        8 * time.Hour,
		TicketMaxAge:         72 * time.Hour,
		NotificationInterval: time.Minute,
	}
}

// Jobs returns the drain-updates, prune-updates and send-notifications jobs.
func Jobs(scheduler *updates.Scheduler, notifier *Notifier, cfg Config) []Job {
	return []Job{
		{
			Name:     "drain-updates",
			Interval: cfg.DrainInterval,
			Run: func(ctx context.Context) error {
				_, err := scheduler.Drain(ctx)
				return err
			},
		},
		{
			Name:     "prune-updates",
			Interval: cfg.PruneInterval,
			Run: func(ctx context.Context) error {
				_, err := scheduler.Prune(ctx, cfg.TicketMaxAge)
				return err
			},
		},
		{
			Name:     "send-notifications",
			Interval: cfg.NotificationInterval,
			Run: func(ctx context.Context) error {
				_, err := notifier.SendNotifications(ctx)
				return err
			},
		},
	}
}

type scheduledJob struct {
	Job
	next time.Time
}

type Worker struct {
	clock  services.Clock
	logger *slog.Logger

	mu   sync.Mutex
	jobs []*scheduledJob
}

func New(clock services.Clock, logger *slog.Logger, jobs ...Job) *Worker {
	if clock == nil {
		clock = services.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{clock: clock, logger: logger}
	for _, job := range jobs {
		w.jobs = append(w.jobs, &scheduledJob{Job: job})
	}
	return w
}

// Run drives the jobs until ctx is done. Every job runs once right away.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	w.logger.Info("worker started", "jobs", len(w.jobs))
	for {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Start runs the worker on its own goroutine. The returned wait blocks until
// Run has returned, which happens once ctx is done and the current job ended.
func (w *Worker) Start(ctx context.Context) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			w.logger.Error("worker stopped", "error", err)
		}
	}()
	return func() { <-done }
}

// RunOnce runs every job whose interval elapsed since its previous run.
func (w *Worker) RunOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for _, job := range w.jobs {
		if ctx.Err() != nil {
			break
		}
		now := w.clock.Now()
		if now.Before(job.next) {
			continue
		}
		job.next = now.Add(job.Interval)

		start := time.Now()
		if err := w.run(ctx, job.Job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
			continue
		}
		w.logger.Debug("job done", "job", job.Name, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}

func (w *Worker) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", "job", job.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}

func (w *Worker) tick() time.Duration {
	tick := time.Duration(0)
	for _, job := range w.jobs {
		if job.Interval > 0 && (tick == 0 || job.Interval < tick) {
			tick = job.Interval
		}
	}
	if tick == 0 {
		tick = time.Second
	}
	return tick
}
