package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
)

// MatchRepository reads and writes match rows.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// Find returns nil, nil when the match does not exist.
func (r *MatchRepository) Find(ctx context.Context, id string) (*db.Match, error) {
	return takeOrNil[db.Match](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *MatchRepository) FindForUpdate(ctx context.Context, id string) (*db.Match, error) {
	return takeOrNil[db.Match](forUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
}

// InsertIfAbsent is the conditional create keyed by the deterministic pair id.
// Exactly one concurrent caller gets true; the others read the winner's row.
func (r *MatchRepository) InsertIfAbsent(ctx context.Context, m *db.Match) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// End flips an ACTIVE match to UNMATCHED. The row is kept for audit.
// Returns false when the match was not ACTIVE.
func (r *MatchRepository) End(ctx context.Context, id, endedBy, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND status = ?", id, db.MatchActive).
		Updates(map[string]any{
			"status":     db.MatchUnmatched,
			"ended_by":   endedBy,
			"end_reason": reason,
			"ended_at":   at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TouchActivity moves last_activity_at forward only (last writer by time wins).
func (r *MatchRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND last_activity_at < ?", id, at).
		Update("last_activity_at", at).Error
}

// ListForUser returns every match the user took part in, any status.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("matched_at, id").
		Find(&matches).Error
	return matches, err
}

// ListParticipantIDs returns every user that appears in a match.
func (r *MatchRepository) ListParticipantIDs(ctx context.Context) ([]string, error) {
	var a, b []string
	if err := r.db.WithContext(ctx).Model(&db.Match{}).Distinct("user_a_id").Pluck("user_a_id", &a).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&db.Match{}).Distinct("user_b_id").Pluck("user_b_id", &b).Error; err != nil {
		return nil, err
	}
	return append(a, b...), nil
}
