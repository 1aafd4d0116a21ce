package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/service/matching"
)

// Scheduler runs the periodic maintenance jobs: the auto-archive sweep and the
// full reconciliation. Each job has its own ticker; a slow reconcile never
// delays the sweep.
type Scheduler struct {
	core              *matching.Core
	sweepInterval     time.Duration
	reconcileInterval time.Duration
	logger            *slog.Logger
}

func NewScheduler(appCtx *app.AppContext, core *matching.Core) *Scheduler {
	cfg := appCtx.Config.Worker
	s := &Scheduler{
		core:              core,
		sweepInterval:     cfg.SweepInterval,
		reconcileInterval: cfg.ReconcileInterval,
		logger:            appCtx.Logger.With("component", "scheduler"),
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = time.Hour
	}
	if s.reconcileInterval <= 0 {
		s.reconcileInterval = 24 * time.Hour
	}
	return s
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting", "sweep_interval", s.sweepInterval, "reconcile_interval", s.reconcileInterval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.loop(ctx, s.reconcileInterval, func(ctx context.Context) { _, _ = s.Reconcile(ctx) })
	}()
	s.loop(ctx, s.sweepInterval, func(ctx context.Context) { _, _ = s.Sweep(ctx) })
	<-done

	s.logger.Info("scheduler stopping")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// Sweep archives idle conversations once.
func (s *Scheduler) Sweep(ctx context.Context) (int64, error) {
	n, err := s.core.Conversations.AutoArchive(ctx)
	if err != nil {
		s.logger.Error("auto-archive sweep failed", "archived", n, "err", err)
	}
	return n, err
}

// Reconcile runs a full reconciliation once.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	report, err := s.core.Reconciler.Run(ctx)
	if err != nil {
		s.logger.Error("reconciliation failed", "err", err)
	}
	if report == nil {
		return 0, err
	}
	return report.Drifted, err
}
