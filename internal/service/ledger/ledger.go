// Package ledger records each user's current decision on each other user.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// BatchCounter counts an action against the actor's daily batch inside the
// ledger's transaction.
type BatchCounter interface {
	RecordActionAgainstBatchTx(ctx context.Context, tx *gorm.DB, batchID, actorID, targetID string) (bool, error)
}

// Result describes what RecordAction did.
type Result struct {
	Action *db.Action
	// Created is true for the first action of the pair.
	Created bool
	// Stale is true when a newer action was already stored; nothing was written.
	Stale bool
	// Counted is true when the action advanced its batch.
	Counted bool
}

// Ledger owns the actions table.
type Ledger struct {
	appCtx  *app.AppContext
	actions *repository.ActionRepository
	batches BatchCounter
	logger  *slog.Logger
}

// New builds a Ledger. batches may be nil when batch tracking is not wired.
func New(appCtx *app.AppContext, batches BatchCounter) *Ledger {
	return &Ledger{
		appCtx:  appCtx,
		actions: repository.NewActionRepository(appCtx.DB),
		batches: batches,
		logger:  appCtx.Logger.With("component", "ledger"),
	}
}

// RecordAction stores actorID's decision on targetID.
//
// Behavior:
//   - Rejects empty ids, self actions and unknown outcomes.
//   - Rejects the pair when either user blocked the other.
//   - First action of the pair inserts, later ones supersede (last write wins on acted_at).
//   - When batchID is set the batch counter runs in the same transaction, so a
//     completed batch fails the whole write with ErrBatchAlreadyComplete.
//   - Insert races and revision conflicts are retried up to MATCHING_RETRY_LIMIT times.
//
// Example:
//
//	res, err := l.RecordAction(ctx, "u1", "u2", db.OutcomeLike, batchID)
func (l *Ledger) RecordAction(ctx context.Context, actorID, targetID string, outcome db.Outcome, batchID string) (*Result, error) {
	actorID, targetID = strings.TrimSpace(actorID), strings.TrimSpace(targetID)
	if actorID == "" || targetID == "" || actorID == targetID {
		return nil, fmt.Errorf("actor %q on target %q: %w", actorID, targetID, svcErr.ErrInvalidActionTarget)
	}
	if !outcome.Valid() {
		return nil, fmt.Errorf("outcome %q: %w", outcome, svcErr.ErrInvalidOutcome)
	}

	blocked, err := l.appCtx.Safety.IsBlocked(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("safety check: %w", err)
	}
	if blocked {
		return nil, fmt.Errorf("%s and %s: %w", actorID, targetID, svcErr.ErrAlreadyBlocked)
	}

	var res *Result
	err = repository.RetryOnConflict(ctx, l.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, l.appCtx.DB, func(tx *gorm.DB) error {
			var err error
			res, err = l.write(ctx, tx, actorID, targetID, outcome, batchID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if !res.Stale {
		// a changed outcome moves both users' "liked you" counts
		l.invalidateLikeCounts(ctx, targetID, actorID)
		l.logger.Debug("action recorded",
			"actor", actorID,
			"target", targetID,
			"outcome", outcome,
			"revision", res.Action.Revision,
			"counted", res.Counted,
		)
	}
	return res, nil
}

func (l *Ledger) write(
	ctx context.Context,
	tx *gorm.DB,
	actorID, targetID string,
	outcome db.Outcome,
	batchID string,
) (*Result, error) {
	actions := l.actions.WithTx(tx)
	now := l.appCtx.Now()

	current, err := actions.FindForUpdate(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("load action: %w", err)
	}

	res := &Result{}
	switch {
	case current == nil:
		a := &db.Action{
			ActorID:   actorID,
			TargetID:  targetID,
			Outcome:   outcome,
			BatchID:   batchID,
			ActedAt:   now,
			Revision:  1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		inserted, err := actions.Insert(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("insert action: %w", err)
		}
		if !inserted {
			return nil, fmt.Errorf("insert %s->%s: %w", actorID, targetID, svcErr.ErrConcurrentWriteLost)
		}
		res.Action, res.Created = a, true

	case current.ActedAt.After(now):
		return &Result{Action: current, Stale: true}, nil

	default:
		next := *current
		next.Outcome = outcome
		next.BatchID = batchID
		next.ActedAt = now
		ok, err := actions.Supersede(ctx, &next, current.Revision)
		if err != nil {
			return nil, fmt.Errorf("supersede action: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("supersede %s->%s@%d: %w", actorID, targetID, current.Revision, svcErr.ErrConcurrentWriteLost)
		}
		next.UpdatedAt = now
		res.Action = &next
	}

	if batchID != "" && l.batches != nil {
		counted, err := l.batches.RecordActionAgainstBatchTx(ctx, tx, batchID, actorID, targetID)
		if err != nil {
			return nil, err
		}
		res.Counted = counted
	}
	return res, nil
}

// HasActed reports whether actorID has any current action on targetID.
func (l *Ledger) HasActed(ctx context.Context, actorID, targetID string) (bool, error) {
	return l.actions.HasActed(ctx, actorID, targetID)
}

// Get returns actorID's current action on targetID, or nil.
func (l *Ledger) Get(ctx context.Context, actorID, targetID string) (*db.Action, error) {
	return l.actions.Find(ctx, actorID, targetID)
}

// FindReciprocal returns targetID's current action on actorID, or nil.
func (l *Ledger) FindReciprocal(ctx context.Context, actorID, targetID string) (*db.Action, error) {
	return l.actions.Find(ctx, targetID, actorID)
}

// ListLikers pages through the users whose current action on recipientID is LIKE,
// newest first. newOnly drops users the recipient already liked back.
func (l *Ledger) ListLikers(
	ctx context.Context,
	recipientID string,
	newOnly bool,
	token *string,
	limit int,
) ([]db.Action, *string, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, nil, fmt.Errorf("recipient id is required: %w", svcErr.ErrInvalidArgument)
	}
	likers, next, err := l.actions.GetLikers(ctx, recipientID, newOnly, token, pagination.ClampLimit(limit))
	if err != nil {
		return nil, nil, fmt.Errorf("list likers: %w", err)
	}
	return likers, next, nil
}

// CountLikers returns how many users currently like recipientID.
// Cache-first: Redis likes:count:<id>, falling back to the DB and repopulating.
func (l *Ledger) CountLikers(ctx context.Context, recipientID string) (int64, error) {
	if strings.TrimSpace(recipientID) == "" {
		return 0, fmt.Errorf("recipient id is required: %w", svcErr.ErrInvalidArgument)
	}

	rc := l.appCtx.RedisCache
	key := cache.KeyForLikeCount(recipientID)
	if rc != nil {
		n, ok, err := rc.GetCount(ctx, key)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("like count cache read failed", "user", recipientID, "err", err)
		}
		if ok {
			return n, nil
		}
	}

	n, err := l.actions.CountLikers(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("count likers: %w", err)
	}
	if rc != nil {
		_ = rc.SetCount(ctx, key, n)
	}
	return n, nil
}

func (l *Ledger) invalidateLikeCounts(ctx context.Context, userIDs ...string) {
	if l.appCtx.RedisCache == nil {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, cache.KeyForLikeCount(id))
	}
	if err := l.appCtx.RedisCache.Del(ctx, keys...); err != nil {
		l.logger.Warn("like count invalidation failed", "err", err)
	}
}
