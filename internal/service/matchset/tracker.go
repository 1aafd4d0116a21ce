package matchset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/repository"
)

// Tracker keeps one discovery batch per user per day and its progress counters.
//
// Invariants held after every call:
//   - actionsSubmitted <= len(candidates)
//   - matchesFound <= actionsSubmitted
type Tracker struct {
	appCtx     *app.AppContext
	sets       *repository.MatchSetRepository
	aggregates *repository.AggregateRepository
	logger     *slog.Logger
}

func NewTracker(appCtx *app.AppContext) *Tracker {
	return &Tracker{
		appCtx:     appCtx,
		sets:       repository.NewMatchSetRepository(appCtx.DB),
		aggregates: repository.NewAggregateRepository(appCtx.DB),
		logger:     appCtx.Logger.With("component", "matchset"),
	}
}

// CreateBatch stores the scorer's candidate list for userID on date as a PENDING batch.
// A second call for the same user and date returns the existing batch unchanged.
// Candidates are de-duplicated and the user is removed from their own list.
func (t *Tracker) CreateBatch(
	ctx context.Context,
	userID, date string,
	candidates []db.Candidate,
	algorithmVersion string,
) (*db.MatchSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", svcErr.ErrInvalidArgument)
	}
	if _, err := time.Parse(db.DayLayout, date); err != nil {
		return nil, fmt.Errorf("date %q must be YYYY-MM-DD: %w", date, svcErr.ErrInvalidArgument)
	}

	list := dedupe(userID, candidates)
	now := t.appCtx.Now()
	set := &db.MatchSet{
		ID:               uuid.NewString(),
		UserID:           userID,
		Date:             date,
		Candidates:       datatypes.NewJSONType(list),
		TotalCandidates:  int64(len(list)),
		Status:           db.MatchSetPending,
		AlgorithmVersion: algorithmVersion,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := t.sets.Create(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("create match set: %w", err)
	}
	if !created {
		existing, err := t.sets.FindByUserDate(ctx, userID, date)
		if err != nil {
			return nil, fmt.Errorf("load match set: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("match set %s/%s: %w", userID, date, svcErr.ErrAggregateNotFound)
		}
		return existing, nil
	}

	t.logger.Debug("match set created", "user", userID, "date", date, "candidates", len(list))
	return set, nil
}

// RecordActionAgainstBatch counts actorID's action on targetID against the batch.
// It returns false when the action does not count (not a candidate, or already counted).
func (t *Tracker) RecordActionAgainstBatch(ctx context.Context, batchID, actorID, targetID string) (bool, error) {
	var counted bool
	err := repository.RetryOnConflict(ctx, t.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, t.appCtx.DB, func(tx *gorm.DB) error {
			var err error
			counted, err = t.RecordActionAgainstBatchTx(ctx, tx, batchID, actorID, targetID)
			return err
		})
	})
	return counted, err
}

// RecordActionAgainstBatchTx is RecordActionAgainstBatch inside the caller's transaction.
// The ledger uses it so the action and the batch counter commit together.
func (t *Tracker) RecordActionAgainstBatchTx(ctx context.Context, tx *gorm.DB, batchID, actorID, targetID string) (bool, error) {
	sets := t.sets.WithTx(tx)

	set, err := sets.FindForUpdate(ctx, batchID)
	if err != nil {
		return false, fmt.Errorf("load match set: %w", err)
	}
	if set == nil {
		return false, fmt.Errorf("match set %s: %w", batchID, svcErr.ErrAggregateNotFound)
	}
	if set.UserID != actorID {
		return false, fmt.Errorf("match set %s belongs to another user: %w", batchID, svcErr.ErrInvalidArgument)
	}

	if set.ActionsSubmitted >= set.TotalCandidates {
		already, err := sets.IsCounted(ctx, set.ID, targetID)
		if err != nil {
			return false, err
		}
		if already {
			// re-deciding on a counted candidate is fine
			return false, nil
		}
		return false, fmt.Errorf("match set %s: %w", batchID, svcErr.ErrBatchAlreadyComplete)
	}
	if !set.HasCandidate(targetID) {
		return false, nil
	}

	now := t.appCtx.Now()
	fresh, err := sets.MarkCounted(ctx, set.ID, targetID, now)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	expectActions, expectMatches := set.ActionsSubmitted, set.MatchesFound
	set.ActionsSubmitted++
	if set.Status == db.MatchSetPending {
		set.Status = db.MatchSetActive
	}
	completed := t.completeIfDone(set, now)

	if err := t.save(ctx, tx, set, expectActions, expectMatches, completed, now); err != nil {
		return false, err
	}
	return true, nil
}

// RecordMatchAgainstBatch counts a match found through the batch.
func (t *Tracker) RecordMatchAgainstBatch(ctx context.Context, batchID string) error {
	return repository.RetryOnConflict(ctx, t.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, t.appCtx.DB, func(tx *gorm.DB) error {
			return t.RecordMatchAgainstBatchTx(ctx, tx, batchID)
		})
	})
}

// RecordMatchAgainstBatchTx is RecordMatchAgainstBatch inside the caller's transaction.
func (t *Tracker) RecordMatchAgainstBatchTx(ctx context.Context, tx *gorm.DB, batchID string) error {
	set, err := t.sets.WithTx(tx).FindForUpdate(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load match set: %w", err)
	}
	if set == nil {
		return fmt.Errorf("match set %s: %w", batchID, svcErr.ErrAggregateNotFound)
	}
	if set.MatchesFound >= set.ActionsSubmitted {
		return fmt.Errorf("match set %s: matches would exceed actions: %w", batchID, svcErr.ErrBatchInvariant)
	}

	now := t.appCtx.Now()
	expectActions, expectMatches := set.ActionsSubmitted, set.MatchesFound
	set.MatchesFound++
	completed := t.completeIfDone(set, now)
	return t.save(ctx, tx, set, expectActions, expectMatches, completed, now)
}

// RecordViewTime adds seconds of viewing to the batch and the owner's dailySummary.
func (t *Tracker) RecordViewTime(ctx context.Context, batchID string, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("view time cannot be negative: %w", svcErr.ErrInvalidArgument)
	}
	if seconds == 0 {
		return nil
	}
	return repository.RetryOnConflict(ctx, t.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, t.appCtx.DB, func(tx *gorm.DB) error {
			sets := t.sets.WithTx(tx)
			aggs := t.aggregates.WithTx(tx)

			set, err := sets.FindForUpdate(ctx, batchID)
			if err != nil {
				return fmt.Errorf("load match set: %w", err)
			}
			if set == nil {
				return fmt.Errorf("match set %s: %w", batchID, svcErr.ErrAggregateNotFound)
			}
			if err := sets.AddViewTime(ctx, set.ID, seconds); err != nil {
				return fmt.Errorf("add view time: %w", err)
			}
			if err := aggs.ApplyDayDelta(ctx, set.UserID, set.Date, repository.DayDelta{ViewTime: seconds}); err != nil {
				return fmt.Errorf("apply day delta: %w", err)
			}
			activity, err := aggs.LockActivity(ctx, set.UserID)
			if err != nil {
				return fmt.Errorf("lock activity: %w", err)
			}
			activity.TotalViewTime += seconds
			return aggs.SaveActivity(ctx, activity, t.appCtx.Now())
		})
	})
}

// Get returns the batch or ErrAggregateNotFound.
func (t *Tracker) Get(ctx context.Context, batchID string) (*db.MatchSet, error) {
	set, err := t.sets.Find(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load match set: %w", err)
	}
	if set == nil {
		return nil, fmt.Errorf("match set %s: %w", batchID, svcErr.ErrAggregateNotFound)
	}
	return set, nil
}

// ForUserDate returns the user's batch for date or ErrAggregateNotFound.
func (t *Tracker) ForUserDate(ctx context.Context, userID, date string) (*db.MatchSet, error) {
	set, err := t.sets.FindByUserDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("load match set: %w", err)
	}
	if set == nil {
		return nil, fmt.Errorf("match set %s/%s: %w", userID, date, svcErr.ErrAggregateNotFound)
	}
	return set, nil
}

// completeIfDone moves the batch to COMPLETED once every candidate was acted on.
// Reports whether this call did the transition.
func (t *Tracker) completeIfDone(set *db.MatchSet, now time.Time) bool {
	if set.Status == db.MatchSetCompleted || set.ActionsSubmitted < set.TotalCandidates {
		return false
	}
	set.Status = db.MatchSetCompleted
	set.CompletedAt = &now
	return true
}

func (t *Tracker) save(
	ctx context.Context,
	tx *gorm.DB,
	set *db.MatchSet,
	expectActions, expectMatches int64,
	completed bool,
	now time.Time,
) error {
	if err := checkInvariants(set); err != nil {
		return err
	}
	ok, err := t.sets.WithTx(tx).SaveProgress(ctx, set, expectActions, expectMatches, now)
	if err != nil {
		return fmt.Errorf("save match set: %w", err)
	}
	if !ok {
		return fmt.Errorf("match set %s: %w", set.ID, svcErr.ErrConcurrentWriteLost)
	}
	if completed {
		if err := t.aggregates.WithTx(tx).ApplyDayDelta(ctx, set.UserID, set.Date, repository.DayDelta{BatchesCompleted: 1}); err != nil {
			return fmt.Errorf("apply day delta: %w", err)
		}
		t.logger.Debug("match set completed", "id", set.ID, "user", set.UserID)
	}
	return nil
}

func checkInvariants(set *db.MatchSet) error {
	if set.ActionsSubmitted > set.TotalCandidates || set.MatchesFound > set.ActionsSubmitted || set.MatchesFound < 0 {
		return fmt.Errorf("match set %s (actions=%d matches=%d total=%d): %w",
			set.ID, set.ActionsSubmitted, set.MatchesFound, set.TotalCandidates, svcErr.ErrBatchInvariant)
	}
	return nil
}

func dedupe(userID string, candidates []db.Candidate) []db.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]db.Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.UserID = strings.TrimSpace(c.UserID)
		if c.UserID == "" || c.UserID == userID {
			continue
		}
		if _, dup := seen[c.UserID]; dup {
			continue
		}
		seen[c.UserID] = struct{}{}
		out = append(out, c)
	}
	return out
}
