package matchset_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/service/matchset"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func candidates(ids ...string) []db.Candidate {
	out := make([]db.Candidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, db.Candidate{UserID: id, Score: float64(len(ids) - i)})
	}
	return out
}

func setup(t *testing.T) (*matchset.Tracker, *repository.AggregateRepository) {
	t.Helper()
	appCtx := testutil.NewApp(t, testutil.NewClock(t0))
	return matchset.NewTracker(appCtx), repository.NewAggregateRepository(appCtx.DB)
}

func TestCreateBatch(t *testing.T) {
	ctx := context.Background()
	tracker, _ := setup(t)

	set, err := tracker.CreateBatch(ctx, "u1", "2026-03-02", candidates("a", "b", "a", "u1", ""), "v2")
	require.NoError(t, err)
	assert.Equal(t, db.MatchSetPending, set.Status)
	assert.Equal(t, int64(2), set.TotalCandidates, "duplicates, self and blanks are dropped")
	assert.Equal(t, "v2", set.AlgorithmVersion)

	again, err := tracker.CreateBatch(ctx, "u1", "2026-03-02", candidates("x", "y", "z"), "v3")
	require.NoError(t, err)
	assert.Equal(t, set.ID, again.ID, "one batch per user per day")
	assert.Equal(t, int64(2), again.TotalCandidates)

	got, err := tracker.ForUserDate(ctx, "u1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{got.Candidates.Data()[0].UserID, got.Candidates.Data()[1].UserID})

	_, err = tracker.CreateBatch(ctx, "u1", "02/03/2026", nil, "")
	assert.True(t, errors.Is(err, svcErr.ErrInvalidArgument))
	_, err = tracker.CreateBatch(ctx, " ", "2026-03-02", nil, "")
	assert.True(t, errors.Is(err, svcErr.ErrInvalidArgument))
}

func TestRecordActionAgainstBatch_CompletesBatch(t *testing.T) {
	ctx := context.Background()
	tracker, aggs := setup(t)

	set, err := tracker.CreateBatch(ctx, "u1", "2026-03-02", candidates("a", "b"), "")
	require.NoError(t, err)

	counted, err := tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "a")
	require.NoError(t, err)
	assert.True(t, counted)

	got, err := tracker.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MatchSetActive, got.Status)
	assert.Equal(t, int64(1), got.ActionsSubmitted)

	// the same candidate does not count twice
	counted, err = tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "a")
	require.NoError(t, err)
	assert.False(t, counted)

	// strangers are not counted
	counted, err = tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "stranger")
	require.NoError(t, err)
	assert.False(t, counted)

	counted, err = tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "b")
	require.NoError(t, err)
	assert.True(t, counted)

	got, err = tracker.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MatchSetCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, t0, got.CompletedAt.UTC())

	days, err := aggs.ListDays(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, int64(1), days[0].BatchesCompleted)
}

func TestRecordActionAgainstBatch_AlreadyComplete(t *testing.T) {
	ctx := context.Background()
	tracker, _ := setup(t)

	set, err := tracker.CreateBatch(ctx, "u1", "2026-03-02", candidates("a"), "")
	require.NoError(t, err)
	_, err = tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "a")
	require.NoError(t, err)

	// re-deciding on a counted candidate is not an error
	counted, err := tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "a")
	require.NoError(t, err)
	assert.False(t, counted)

	_, err = tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "stranger")
	assert.True(t, errors.Is(err, svcErr.ErrBatchAlreadyComplete))
}

func TestRecordActionAgainstBatch_Errors(t *testing.T) {
	ctx := context.Background()
	tracker, _ := setup(t)

	_, err := tracker.RecordActionAgainstBatch(ctx, "missing", "u1", "a")
	assert.True(t, errors.Is(err, svcErr.ErrAggregateNotFound))

	set, err := tracker.CreateBatch(ctx, "u1", "2026-03-02", candidates("a"), "")
	require.NoError(t, err)
	_, err = tracker.RecordActionAgainstBatch(ctx, set.ID, "u2", "a")
	assert.True(t, errors.Is(err, svcErr.ErrInvalidArgument))
}

func TestRecordMatchAgainstBatch(t *testing.T) {
	ctx := context.Background()
	tracker, _ := setup(t)

	set, err := tracker.CreateBatch(ctx, "u1", "2026-03-02", candidates("a", "b"), "")
	require.NoError(t, err)

	// no action yet, so a match would break matchesFound <= actionsSubmitted
	err = tracker.RecordMatchAgainstBatch(ctx, set.ID)
	assert.True(t, errors.Is(err, svcErr.ErrBatchInvariant))

	_, err = tracker.RecordActionAgainstBatch(ctx, set.ID, "u1", "a")
	require.NoError(t, err)
	require.NoError(t, tracker.RecordMatchAgainstBatch(ctx, set.ID))

	got, err := tracker.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.MatchesFound)
	assert.Equal(t, db.MatchSetActive, got.Status)

	err = tracker.RecordMatchAgainstBatch(ctx, set.ID)
	assert.True(t, errors.Is(err, svcErr.ErrBatchInvariant))
}

func TestRecordViewTime(t *testing.T) {
	ctx := context.Background()
	tracker, aggs := setup(t)

	set, err := tracker.CreateBatch(ctx, "u1", "2026-03-01", candidates("a"), "")
	require.NoError(t, err)

	require.NoError(t, tracker.RecordViewTime(ctx, set.ID, 40))
	require.NoError(t, tracker.RecordViewTime(ctx, set.ID, 2))
	require.NoError(t, tracker.RecordViewTime(ctx, set.ID, 0))
	assert.True(t, errors.Is(tracker.RecordViewTime(ctx, set.ID, -1), svcErr.ErrInvalidArgument))

	got, err := tracker.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ViewTime)

	activity, err := aggs.GetActivity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), activity.TotalViewTime)

	days, err := aggs.ListDays(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-01", days[0].Day, "view time lands on the batch's day")
	assert.Equal(t, int64(42), days[0].ViewTime)
}
