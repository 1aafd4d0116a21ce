package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
)

// EventRepository is the match_events outbox.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(database *gorm.DB) *EventRepository {
	return &EventRepository{db: database}
}

func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: tx}
}

// Enqueue writes a pending event. (kind, match_id) is unique, so enqueueing the
// same change twice is a no-op.
func (r *EventRepository) Enqueue(ctx context.Context, kind db.EventKind, matchID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.MatchEvent{
			Kind:          kind,
			MatchID:       matchID,
			Status:        db.EventPending,
			NextAttemptAt: at,
			CreatedAt:     at,
			UpdatedAt:     at,
		}).Error
}

// Complete marks the event for (kind, matchID) done.
func (r *EventRepository) Complete(ctx context.Context, kind db.EventKind, matchID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.MatchEvent{}).
		Where("kind = ? AND match_id = ? AND status = ?", kind, matchID, db.EventPending).
		Updates(map[string]any{"status": db.EventDone, "updated_at": at}).Error
}

// LeaseReady locks up to limit due events and pushes their next_attempt_at past
// the lease so a concurrent dispatcher skips them.
func (r *EventRepository) LeaseReady(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]db.MatchEvent, error) {
	var events []db.MatchEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", db.EventPending, now).
			Order("id").
			Limit(limit).
			Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		ids := make([]uint64, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		return tx.Model(&db.MatchEvent{}).
			Where("id IN ?", ids).
			Update("next_attempt_at", now.Add(lease)).Error
	})
	return events, err
}

// MarkFailed records a failed attempt and when to try next.
func (r *EventRepository) MarkFailed(ctx context.Context, id uint64, attempts int, next time.Time, cause string) error {
	return r.db.WithContext(ctx).
		Model(&db.MatchEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        attempts,
			"next_attempt_at": next,
			"last_error":      truncate(cause, 1000),
		}).Error
}

// CountPending returns how many events still wait for projection.
func (r *EventRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.MatchEvent{}).
		Where("status = ?", db.EventPending).
		Count(&n).Error
	return n, err
}
