package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/safety"
	"github.com/oggyb/muzz-matching/internal/service/ledger"
	"github.com/oggyb/muzz-matching/internal/service/matchset"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	appCtx  *app.AppContext
	clock   *testutil.Clock
	ledger  *ledger.Ledger
	tracker *matchset.Tracker
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(t0)
	appCtx := testutil.NewApp(t, clock)
	tracker := matchset.NewTracker(appCtx)
	return &fixture{
		appCtx:  appCtx,
		clock:   clock,
		ledger:  ledger.New(appCtx, tracker),
		tracker: tracker,
	}
}

func TestRecordAction_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.ledger.RecordAction(ctx, "u1", "u1", db.OutcomeLike, "")
	assert.True(t, errors.Is(err, svcErr.ErrInvalidActionTarget))

	_, err = f.ledger.RecordAction(ctx, "", "u2", db.OutcomeLike, "")
	assert.True(t, errors.Is(err, svcErr.ErrInvalidActionTarget))

	_, err = f.ledger.RecordAction(ctx, "u1", "u2", db.Outcome("SUPERLIKE"), "")
	assert.True(t, errors.Is(err, svcErr.ErrInvalidOutcome))
}

func TestRecordAction_Blocked(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	blocker, ok := f.appCtx.Safety.(safety.Blocker)
	require.True(t, ok)
	require.NoError(t, blocker.Block(ctx, "u2", "u1", "spam"))

	// blocks apply in both directions
	_, err := f.ledger.RecordAction(ctx, "u1", "u2", db.OutcomeLike, "")
	assert.True(t, errors.Is(err, svcErr.ErrAlreadyBlocked))

	acted, err := f.ledger.HasActed(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, acted, "nothing is written for a blocked pair")
}

func TestRecordAction_Supersession(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	res, err := f.ledger.RecordAction(ctx, "u1", "u2", db.OutcomeLike, "")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, int64(1), res.Action.Revision)

	f.clock.Advance(time.Minute)
	res, err = f.ledger.RecordAction(ctx, "u1", "u2", db.OutcomePass, "")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Stale)
	assert.Equal(t, int64(2), res.Action.Revision)

	got, err := f.ledger.Get(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, db.OutcomePass, got.Outcome)
	assert.Equal(t, t0.Add(time.Minute), got.ActedAt.UTC())
	assert.False(t, got.Processed)

	reciprocal, err := f.ledger.FindReciprocal(ctx, "u2", "u1")
	require.NoError(t, err)
	require.NotNil(t, reciprocal)
	assert.Equal(t, db.OutcomePass, reciprocal.Outcome)
}

func TestRecordAction_OlderWriteIsStale(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.ledger.RecordAction(ctx, "u1", "u2", db.OutcomeLike, "")
	require.NoError(t, err)

	// a write stamped before the stored one loses
	f.clock.Set(t0.Add(-time.Minute))
	res, err := f.ledger.RecordAction(ctx, "u1", "u2", db.OutcomeDislike, "")
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, db.OutcomeLike, res.Action.Outcome)

	got, err := f.ledger.Get(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, db.OutcomeLike, got.Outcome)
	assert.Equal(t, int64(1), got.Revision)
}

func TestRecordAction_CountsAgainstBatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	set, err := f.tracker.CreateBatch(ctx, "u1", "2026-03-02", []db.Candidate{{UserID: "u2"}}, "")
	require.NoError(t, err)

	res, err := f.ledger.RecordAction(ctx, "u1", "u2", db.OutcomeLike, set.ID)
	require.NoError(t, err)
	assert.True(t, res.Counted)

	// changing the decision does not count again
	f.clock.Advance(time.Second)
	res, err = f.ledger.RecordAction(ctx, "u1", "u2", db.OutcomePass, set.ID)
	require.NoError(t, err)
	assert.False(t, res.Counted)

	got, err := f.tracker.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ActionsSubmitted)
	assert.Equal(t, db.MatchSetCompleted, got.Status)

	// the batch is full, so a new pair against it fails and is rolled back
	_, err = f.ledger.RecordAction(ctx, "u1", "u3", db.OutcomeLike, set.ID)
	assert.True(t, errors.Is(err, svcErr.ErrBatchAlreadyComplete))
	acted, err := f.ledger.HasActed(ctx, "u1", "u3")
	require.NoError(t, err)
	assert.False(t, acted)
}

func TestLikers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	for i, actor := range []string{"a", "b", "c"} {
		f.clock.Set(t0.Add(time.Duration(i) * time.Minute))
		_, err := f.ledger.RecordAction(ctx, actor, "me", db.OutcomeLike, "")
		require.NoError(t, err)
	}
	// me passed on c, and liked b back
	_, err := f.ledger.RecordAction(ctx, "me", "c", db.OutcomePass, "")
	require.NoError(t, err)
	_, err = f.ledger.RecordAction(ctx, "me", "b", db.OutcomeLike, "")
	require.NoError(t, err)

	likers, next, err := f.ledger.ListLikers(ctx, "me", false, nil, 1)
	require.NoError(t, err)
	require.Len(t, likers, 1)
	assert.Equal(t, "b", likers[0].ActorID)
	require.NotNil(t, next)

	likers, next, err = f.ledger.ListLikers(ctx, "me", false, next, 1)
	require.NoError(t, err)
	require.Len(t, likers, 1)
	assert.Equal(t, "a", likers[0].ActorID)
	assert.Nil(t, next)

	fresh, _, err := f.ledger.ListLikers(ctx, "me", true, nil, 0)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "a", fresh[0].ActorID)

	n, err := f.ledger.CountLikers(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// the count is served from Redis until an action invalidates it
	cached, ok, err := f.appCtx.RedisCache.GetCount(ctx, cache.KeyForLikeCount("me"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), cached)

	f.clock.Advance(time.Hour)
	_, err = f.ledger.RecordAction(ctx, "d", "me", db.OutcomeLike, "")
	require.NoError(t, err)
	n, err = f.ledger.CountLikers(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
