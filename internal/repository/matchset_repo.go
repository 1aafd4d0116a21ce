package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
)

// MatchSetRepository stores daily discovery batches and which candidates were
// already counted against them.
type MatchSetRepository struct {
	db *gorm.DB
}

func NewMatchSetRepository(database *gorm.DB) *MatchSetRepository {
	return &MatchSetRepository{db: database}
}

func (r *MatchSetRepository) WithTx(tx *gorm.DB) *MatchSetRepository {
	return &MatchSetRepository{db: tx}
}

// Create inserts the batch unless the user already has one for that date.
func (r *MatchSetRepository) Create(ctx context.Context, s *db.MatchSet) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Find returns nil, nil when the batch does not exist.
func (r *MatchSetRepository) Find(ctx context.Context, id string) (*db.MatchSet, error) {
	return takeOrNil[db.MatchSet](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *MatchSetRepository) FindForUpdate(ctx context.Context, id string) (*db.MatchSet, error) {
	return takeOrNil[db.MatchSet](forUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
}

func (r *MatchSetRepository) FindByUserDate(ctx context.Context, userID, date string) (*db.MatchSet, error) {
	return takeOrNil[db.MatchSet](r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date))
}

// MarkCounted records that targetID was counted against the batch.
// Returns false when it already was.
func (r *MatchSetRepository) MarkCounted(ctx context.Context, setID, targetID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.MatchSetAction{MatchSetID: setID, TargetID: targetID, CountedAt: at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IsCounted reports whether targetID was already counted against the batch.
func (r *MatchSetRepository) IsCounted(ctx context.Context, setID, targetID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.MatchSetAction{}).
		Where("match_set_id = ? AND target_id = ?", setID, targetID).
		Count(&n).Error
	return n > 0, err
}

// SaveProgress writes counters and status if the stored counters still equal the
// expected ones. Returns false on a lost race.
func (r *MatchSetRepository) SaveProgress(
	ctx context.Context,
	s *db.MatchSet,
	expectActions, expectMatches int64,
	at time.Time,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.MatchSet{}).
		Where("id = ? AND actions_submitted = ? AND matches_found = ?", s.ID, expectActions, expectMatches).
		Updates(map[string]any{
			"actions_submitted": s.ActionsSubmitted,
			"matches_found":     s.MatchesFound,
			"status":            s.Status,
			"completed_at":      s.CompletedAt,
			"updated_at":        at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddViewTime adds seconds to the batch's view time.
func (r *MatchSetRepository) AddViewTime(ctx context.Context, id string, seconds int64) error {
	return r.db.WithContext(ctx).
		Model(&db.MatchSet{}).
		Where("id = ?", id).
		UpdateColumn("view_time", gorm.Expr("view_time + ?", seconds)).Error
}

// ListForUser returns all of the user's batches, oldest first.
func (r *MatchSetRepository) ListForUser(ctx context.Context, userID string) ([]db.MatchSet, error) {
	var sets []db.MatchSet
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date").
		Find(&sets).Error
	return sets, err
}

// ListUserIDs returns every user that owns a batch.
func (r *MatchSetRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.MatchSet{}).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}
