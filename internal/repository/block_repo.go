package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
)

// BlockRepository stores user blocks.
type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

// Upsert activates or deactivates blocker -> blocked.
func (r *BlockRepository) Upsert(ctx context.Context, blockerID, blockedID, reason string, active bool, at time.Time) error {
	b := db.Block{
		BlockerID: blockerID,
		BlockedID: blockedID,
		Reason:    reason,
		Active:    active,
		CreatedAt: at,
		UpdatedAt: at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "active", "updated_at"}),
		}).
		Create(&b).Error
}

// IsBlocked reports an active block in either direction.
func (r *BlockRepository) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("active = ? AND ((blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?))", true, a, b, b, a).
		Count(&count).Error
	return count > 0, err
}
