// Package worker runs the background loops of the matching core: the outbox
// dispatcher that finishes projections the request path left behind, and the
// scheduler for the auto-archive sweep and reconciliation.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/service/matching"
)

const (
	// eventLease hides a leased event from other dispatchers while it is handled.
	eventLease = time.Minute
	maxBackoff = 300 * time.Second
)

// Stats counts what one dispatch cycle did.
type Stats struct {
	Events       int
	EventsFailed int
	Actions      int
	Messages     int
}

// Dispatcher retries projections at least once until they succeed:
//   - pending match_created / match_ended outbox events
//   - actions still unprocessed after MATCHING_PROJECTION_GRACE
//   - messages still unprojected after the same grace
type Dispatcher struct {
	appCtx   *app.AppContext
	core     *matching.Core
	events   *repository.EventRepository
	actions  *repository.ActionRepository
	messages *repository.MessageRepository
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewDispatcher(appCtx *app.AppContext, core *matching.Core) *Dispatcher {
	cfg := appCtx.Config.Worker
	d := &Dispatcher{
		appCtx:   appCtx,
		core:     core,
		events:   repository.NewEventRepository(appCtx.DB),
		actions:  repository.NewActionRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
		interval: cfg.OutboxInterval,
		batch:    cfg.OutboxBatch,
		logger:   appCtx.Logger.With("component", "dispatcher"),
	}
	if d.interval <= 0 {
		d.interval = 2 * time.Second
	}
	if d.batch <= 0 {
		d.batch = 100
	}
	return d
}

// Run polls until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting", "batch", d.batch, "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return nil
		case <-ticker.C:
			if _, err := d.ProcessOnce(ctx); err != nil {
				// per-event backoff prevents hot-looping
				d.logger.Error("dispatch cycle failed", "err", err)
			}
		}
	}
}

// ProcessOnce runs a single cycle over the three sources.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	now := d.appCtx.Now()

	events, err := d.events.LeaseReady(ctx, now, eventLease, d.batch)
	if err != nil {
		return stats, fmt.Errorf("lease events: %w", err)
	}
	for _, e := range events {
		if err := d.handleEvent(ctx, e); err != nil {
			stats.EventsFailed++
			attempts := e.Attempts + 1
			next := now.Add(backoff(attempts))
			d.logger.Warn("event projection failed", "kind", e.Kind, "match", e.MatchID, "attempts", attempts, "err", err)
			if mErr := d.events.MarkFailed(ctx, e.ID, attempts, next, err.Error()); mErr != nil {
				d.logger.Error("mark event failed", "id", e.ID, "err", mErr)
			}
			continue
		}
		stats.Events++
	}

	cutoff := now.Add(-d.appCtx.Matching().ProjectionGrace)

	actions, err := d.actions.ListUnprocessed(ctx, cutoff, d.batch)
	if err != nil {
		return stats, fmt.Errorf("list unprocessed actions: %w", err)
	}
	for i := range actions {
		a := &actions[i]
		if _, err := d.core.ReplayAction(ctx, a); err != nil {
			d.logger.Warn("action replay failed", "actor", a.ActorID, "target", a.TargetID, "err", err)
			continue
		}
		stats.Actions++
	}

	msgs, err := d.messages.ListUnprojected(ctx, cutoff, d.batch)
	if err != nil {
		return stats, fmt.Errorf("list unprojected messages: %w", err)
	}
	for _, m := range msgs {
		if _, err := d.core.Projector.ProjectMessage(ctx, m.ID); err != nil {
			d.logger.Warn("message projection failed", "message", m.ID, "err", err)
			continue
		}
		stats.Messages++
	}

	if stats != (Stats{}) {
		d.logger.Info("dispatch cycle",
			"events", stats.Events,
			"events_failed", stats.EventsFailed,
			"actions", stats.Actions,
			"messages", stats.Messages,
		)
	}
	return stats, nil
}

func (d *Dispatcher) handleEvent(ctx context.Context, e db.MatchEvent) error {
	switch e.Kind {
	case db.EventMatchCreated:
		return d.core.Projector.ProjectMatch(ctx, e.MatchID)
	case db.EventMatchEnded:
		return d.core.Projector.ProjectMatchEnded(ctx, e.MatchID)
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// backoff is 2^attempts seconds, capped at five minutes.
func backoff(attempts int) time.Duration {
	if attempts >= 9 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempts)*time.Second, maxBackoff)
}
