package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// AggregateRepository stores the per-user UserMatches and UserActivity aggregates.
//
// Aggregate rows carry a version. Save* is a compare-and-set on that version and
// returns ErrConcurrentWriteLost when another writer got there first. Entry and
// day rows are keyed so that inserts are set-unions and counters are plain deltas.
type AggregateRepository struct {
	db *gorm.DB
}

func NewAggregateRepository(database *gorm.DB) *AggregateRepository {
	return &AggregateRepository{db: database}
}

func (r *AggregateRepository) WithTx(tx *gorm.DB) *AggregateRepository {
	return &AggregateRepository{db: tx}
}

// DayDelta is a signed change to one dailySummary row.
type DayDelta struct {
	Actions          int64
	Likes            int64
	Passes           int64
	Dislikes         int64
	Matches          int64
	ViewTime         int64
	BatchesCompleted int64
}

// Add returns the field-wise sum.
func (d DayDelta) Add(o DayDelta) DayDelta {
	return DayDelta{
		Actions:          d.Actions + o.Actions,
		Likes:            d.Likes + o.Likes,
		Passes:           d.Passes + o.Passes,
		Dislikes:         d.Dislikes + o.Dislikes,
		Matches:          d.Matches + o.Matches,
		ViewTime:         d.ViewTime + o.ViewTime,
		BatchesCompleted: d.BatchesCompleted + o.BatchesCompleted,
	}
}

func (d DayDelta) IsZero() bool { return d == DayDelta{} }

func (d DayDelta) assignments() map[string]any {
	out := map[string]any{}
	add := func(col string, v int64) {
		if v != 0 {
			out[col] = gorm.Expr(col+" + ?", v)
		}
	}
	add("actions", d.Actions)
	add("likes", d.Likes)
	add("passes", d.Passes)
	add("dislikes", d.Dislikes)
	add("matches", d.Matches)
	add("view_time", d.ViewTime)
	add("batches_completed", d.BatchesCompleted)
	return out
}

// --- UserMatches ---

// GetMatches returns ErrAggregateNotFound before the first write.
func (r *AggregateRepository) GetMatches(ctx context.Context, userID string) (*db.UserMatches, error) {
	um, err := takeOrNil[db.UserMatches](r.db.WithContext(ctx).Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}
	if um == nil {
		return nil, fmt.Errorf("user matches %s: %w", userID, svcErr.ErrAggregateNotFound)
	}
	return um, nil
}

// LockMatches creates the aggregate if missing and returns it locked for update.
func (r *AggregateRepository) LockMatches(ctx context.Context, userID string) (*db.UserMatches, error) {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.UserMatches{UserID: userID}).Error; err != nil {
		return nil, err
	}
	var um db.UserMatches
	if err := forUpdate(r.db.WithContext(ctx)).Where("user_id = ?", userID).Take(&um).Error; err != nil {
		return nil, err
	}
	return &um, nil
}

// SaveMatches writes the counters if the stored version is still um.Version.
func (r *AggregateRepository) SaveMatches(ctx context.Context, um *db.UserMatches, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&db.UserMatches{}).
		Where("user_id = ? AND version = ?", um.UserID, um.Version).
		Updates(map[string]any{
			"total_matches":         um.TotalMatches,
			"active_matches":        um.ActiveMatches,
			"new_matches":           um.NewMatches,
			"conversations_started": um.ConversationsStarted,
			"last_match_at":         um.LastMatchAt,
			"version":               um.Version + 1,
			"updated_at":            at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user matches %s@%d: %w", um.UserID, um.Version, svcErr.ErrConcurrentWriteLost)
	}
	um.Version++
	um.UpdatedAt = at
	return nil
}

// ListEntries returns the user's match entries, newest match first.
func (r *AggregateRepository) ListEntries(ctx context.Context, userID string) ([]db.UserMatchEntry, error) {
	var entries []db.UserMatchEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("matched_at DESC, match_id").
		Find(&entries).Error
	return entries, err
}

// FindEntryForUpdate returns nil, nil when the entry was never projected.
func (r *AggregateRepository) FindEntryForUpdate(ctx context.Context, userID, matchID string) (*db.UserMatchEntry, error) {
	return takeOrNil[db.UserMatchEntry](forUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND match_id = ?", userID, matchID))
}

// InsertEntry adds the entry unless (user_id, match_id) exists. Only the inserting
// caller may bump the aggregate counters.
func (r *AggregateRepository) InsertEntry(ctx context.Context, e *db.UserMatchEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateEntry applies column updates to one entry.
func (r *AggregateRepository) UpdateEntry(ctx context.Context, userID, matchID string, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&db.UserMatchEntry{}).
		Where("user_id = ? AND match_id = ?", userID, matchID).
		Updates(updates).Error
}

// EndEntry flips an ACTIVE entry to UNMATCHED. Returns false if it was not ACTIVE.
func (r *AggregateRepository) EndEntry(ctx context.Context, userID, matchID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.UserMatchEntry{}).
		Where("user_id = ? AND match_id = ? AND status = ?", userID, matchID, db.MatchActive).
		Updates(map[string]any{
			"status":     db.MatchUnmatched,
			"seen":       true,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementEntryUnread adds n to the entry's unread counter.
func (r *AggregateRepository) IncrementEntryUnread(ctx context.Context, userID, matchID string, n int64) error {
	return r.db.WithContext(ctx).
		Model(&db.UserMatchEntry{}).
		Where("user_id = ? AND match_id = ?", userID, matchID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", n)).Error
}

// TouchEntryLastMessage sets the last message preview if at is newer than the stored one.
func (r *AggregateRepository) TouchEntryLastMessage(ctx context.Context, userID, matchID string, at time.Time, text string) error {
	return r.db.WithContext(ctx).
		Model(&db.UserMatchEntry{}).
		Where("user_id = ? AND match_id = ? AND (last_message_at IS NULL OR last_message_at < ?)", userID, matchID, at).
		Updates(map[string]any{
			"last_message_at":   at,
			"last_message_text": truncate(text, 1000),
		}).Error
}

// ReplaceEntries makes the stored entries equal to entries.
func (r *AggregateRepository) ReplaceEntries(ctx context.Context, userID string, entries []db.UserMatchEntry) error {
	keep := make([]string, 0, len(entries))
	for i := range entries {
		keep = append(keep, entries[i].MatchID)
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&entries[i]).Error; err != nil {
			return err
		}
	}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(keep) > 0 {
		q = q.Where("match_id NOT IN ?", keep)
	}
	return q.Delete(&db.UserMatchEntry{}).Error
}

// SumUnread totals the user's unread counters across entries.
func (r *AggregateRepository) SumUnread(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&db.UserMatchEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}

// --- UserActivity ---

// GetActivity returns ErrAggregateNotFound before the first write.
func (r *AggregateRepository) GetActivity(ctx context.Context, userID string) (*db.UserActivity, error) {
	a, err := takeOrNil[db.UserActivity](r.db.WithContext(ctx).Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("user activity %s: %w", userID, svcErr.ErrAggregateNotFound)
	}
	return a, nil
}

// LockActivity creates the aggregate if missing and returns it locked for update.
func (r *AggregateRepository) LockActivity(ctx context.Context, userID string) (*db.UserActivity, error) {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.UserActivity{UserID: userID}).Error; err != nil {
		return nil, err
	}
	var a db.UserActivity
	if err := forUpdate(r.db.WithContext(ctx)).Where("user_id = ?", userID).Take(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveActivity writes the counters if the stored version is still a.Version.
func (r *AggregateRepository) SaveActivity(ctx context.Context, a *db.UserActivity, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&db.UserActivity{}).
		Where("user_id = ? AND version = ?", a.UserID, a.Version).
		Updates(map[string]any{
			"total_actions":       a.TotalActions,
			"total_likes":         a.TotalLikes,
			"total_passes":        a.TotalPasses,
			"total_dislikes":      a.TotalDislikes,
			"total_matches":       a.TotalMatches,
			"total_view_time":     a.TotalViewTime,
			"match_success_rate":  a.MatchSuccessRate,
			"avg_actions_per_day": a.AvgActionsPerDay,
			"active_days":         a.ActiveDays,
			"current_streak":      a.CurrentStreak,
			"longest_streak":      a.LongestStreak,
			"last_action_day":     a.LastActionDay,
			"version":             a.Version + 1,
			"updated_at":          at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user activity %s@%d: %w", a.UserID, a.Version, svcErr.ErrConcurrentWriteLost)
	}
	a.Version++
	a.UpdatedAt = at
	return nil
}

// ApplyDayDelta adds d to the (user, day) summary row, creating it first if needed.
func (r *AggregateRepository) ApplyDayDelta(ctx context.Context, userID, day string, d DayDelta) error {
	if d.IsZero() {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.UserActivityDay{UserID: userID, Day: day}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&db.UserActivityDay{}).
		Where("user_id = ? AND day = ?", userID, day).
		UpdateColumns(d.assignments()).Error
}

// CountActiveDays counts days on which the user has at least one action.
func (r *AggregateRepository) CountActiveDays(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.UserActivityDay{}).
		Where("user_id = ? AND actions > 0", userID).
		Count(&n).Error
	return n, err
}

// ListDays returns the dailySummary rows in day order.
func (r *AggregateRepository) ListDays(ctx context.Context, userID string) ([]db.UserActivityDay, error) {
	var days []db.UserActivityDay
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("day").
		Find(&days).Error
	return days, err
}

// ReplaceDays makes the stored dailySummary rows equal to days.
func (r *AggregateRepository) ReplaceDays(ctx context.Context, userID string, days []db.UserActivityDay) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&db.UserActivityDay{}).Error; err != nil {
		return err
	}
	if len(days) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&days).Error
}

// ListUserIDs returns every user that has an aggregate row.
func (r *AggregateRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var a, m []string
	if err := r.db.WithContext(ctx).Model(&db.UserActivity{}).Pluck("user_id", &a).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&db.UserMatches{}).Pluck("user_id", &m).Error; err != nil {
		return nil, err
	}
	return append(a, m...), nil
}
