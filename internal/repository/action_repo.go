package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// ActionRepository provides data access methods for the Action ledger.
// It encapsulates all queries related to likes/passes between users.
type ActionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new repository bound to the given DB connection.
func NewActionRepository(database *gorm.DB) *ActionRepository {
	return &ActionRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *ActionRepository) WithTx(tx *gorm.DB) *ActionRepository {
	return &ActionRepository{db: tx}
}

// Find returns the actor's current action on target, or nil when there is none.
func (r *ActionRepository) Find(ctx context.Context, actorID, targetID string) (*db.Action, error) {
	return takeOrNil[db.Action](r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID))
}

// FindForUpdate is Find with a row lock, for use inside a transaction.
func (r *ActionRepository) FindForUpdate(ctx context.Context, actorID, targetID string) (*db.Action, error) {
	return takeOrNil[db.Action](forUpdate(r.db.WithContext(ctx)).
		Where("actor_id = ? AND target_id = ?", actorID, targetID))
}

// Insert creates the first action of a pair.
//
// Behavior:
//   - Returns false when a row for (actor_id, target_id) already exists; the caller
//     lost an insert race and must re-read and supersede instead.
//   - Composite PK ensures the ledger never holds two rows for a pair.
func (r *ActionRepository) Insert(ctx context.Context, a *db.Action) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(a)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Supersede overwrites the pair's outcome when the stored revision is still prevRevision.
// The row becomes unprocessed so the projector moves its counters.
func (r *ActionRepository) Supersede(ctx context.Context, a *db.Action, prevRevision int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Action{}).
		Where("actor_id = ? AND target_id = ? AND revision = ?", a.ActorID, a.TargetID, prevRevision).
		Updates(map[string]any{
			"outcome":    a.Outcome,
			"batch_id":   a.BatchID,
			"acted_at":   a.ActedAt,
			"revision":   prevRevision + 1,
			"processed":  false,
			"updated_at": a.ActedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		a.Revision = prevRevision + 1
		a.Processed = false
	}
	return res.RowsAffected == 1, nil
}

// MarkProjected records what the aggregates now reflect for this revision.
// Returns false when the action was superseded in the meantime.
func (r *ActionRepository) MarkProjected(ctx context.Context, a *db.Action, day string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Action{}).
		Where("actor_id = ? AND target_id = ? AND revision = ?", a.ActorID, a.TargetID, a.Revision).
		Updates(map[string]any{
			"processed":         true,
			"projected_outcome": a.Outcome,
			"projected_day":     day,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// HasActed checks whether an actor has any decision on target.
func (r *ActionRepository) HasActed(ctx context.Context, actorID, targetID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Action{}).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Count(&count).Error
	return count > 0, err
}

// GetLikers returns users whose current action on recipient is LIKE.
//
// Behavior:
//   - Excludes users the recipient passed or disliked.
//   - newOnly additionally excludes mutual likes (recipient already liked them back).
//   - Ordered by acted_at DESC, actor_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.GetLikers(ctx, "42", false, nil, 20) // first 20 people who liked user 42
func (r *ActionRepository) GetLikers(
	ctx context.Context,
	recipientID string,
	newOnly bool,
	paginationToken *string,
	limit int,
) ([]db.Action, *string, error) {
	var actions []db.Action

	// decode cursor if provided
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.likersQuery(ctx, recipientID, newOnly).
		Order("a.acted_at DESC, a.actor_id DESC").
		Limit(limit + 1)

	// apply cursor
	if cursor.Key != "" && cursor.UnixMilli > 0 {
		ts := time.UnixMilli(cursor.UnixMilli).UTC()
		query = query.Where(
			"(a.acted_at < ? OR (a.acted_at = ? AND a.actor_id < ?))",
			ts, ts, cursor.Key,
		)
	}

	if err := query.Find(&actions).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	actions, next := pagination.Page(actions, limit, func(a db.Action) pagination.Cursor {
		return pagination.Cursor{Key: a.ActorID, UnixMilli: a.ActedAt.UnixMilli()}
	})
	return actions, next, nil
}

// CountLikers returns how many users currently like the recipient.
// Used in conjunction with Redis cache (DB is fallback).
func (r *ActionRepository) CountLikers(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	if err := r.likersQuery(ctx, recipientID, false).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ActionRepository) likersQuery(ctx context.Context, recipientID string, newOnly bool) *gorm.DB {
	query := r.db.WithContext(ctx).
		Table("actions a").
		Where("a.target_id = ? AND a.outcome = ?", recipientID, db.OutcomeLike).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM actions a2
				WHERE a2.actor_id = ?
				  AND a2.target_id = a.actor_id
				  AND a2.outcome IN (?, ?)
			)`, recipientID, db.OutcomePass, db.OutcomeDislike)
	if newOnly {
		// subquery to exclude mutual likes
		query = query.Where(`
			NOT EXISTS (
				SELECT 1 FROM actions a3
				WHERE a3.actor_id = a.target_id
				  AND a3.target_id = a.actor_id
				  AND a3.outcome = ?
			)`, db.OutcomeLike)
	}
	return query
}

// ListByActor returns every current action of the actor.
func (r *ActionRepository) ListByActor(ctx context.Context, actorID string) ([]db.Action, error) {
	var actions []db.Action
	err := r.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("target_id").
		Find(&actions).Error
	return actions, err
}

// ListUnprocessed returns actions whose projection has not run and that were last
// written before olderThan.
func (r *ActionRepository) ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]db.Action, error) {
	var actions []db.Action
	err := r.db.WithContext(ctx).
		Where("processed = ? AND updated_at < ?", false, olderThan).
		Order("updated_at").
		Limit(limit).
		Find(&actions).Error
	return actions, err
}

// ListActorIDs returns every user that has acted at least once.
func (r *ActionRepository) ListActorIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.Action{}).
		Distinct("actor_id").
		Order("actor_id").
		Pluck("actor_id", &ids).Error
	return ids, err
}
