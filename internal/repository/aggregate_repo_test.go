package repository_test

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
	"github.com/oggyb/muzz-matching/internal/testutil"
)

func TestGetBeforeFirstWrite(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAggregateRepository(testutil.NewTestDB(t))

	_, err := repo.GetMatches(ctx, "nobody")
	assert.True(t, errors.Is(err, svcErr.ErrAggregateNotFound))

	_, err = repo.GetActivity(ctx, "nobody")
	assert.True(t, errors.Is(err, svcErr.ErrAggregateNotFound))
}

func TestSaveActivity_VersionCAS(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAggregateRepository(testutil.NewTestDB(t))

	first, err := repo.LockActivity(ctx, "u1")
	require.NoError(t, err)
	second := *first

	first.TotalActions = 1
	require.NoError(t, repo.SaveActivity(ctx, first, t0))
	assert.Equal(t, int64(1), first.Version)

	// second writer read version 0 and must lose
	second.TotalActions = 5
	err = repo.SaveActivity(ctx, &second, t0)
	assert.True(t, errors.Is(err, svcErr.ErrConcurrentWriteLost))

	got, err := repo.GetActivity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TotalActions)
	assert.Equal(t, int64(1), got.Version)
}

func TestSaveMatches_VersionCAS(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAggregateRepository(testutil.NewTestDB(t))

	um, err := repo.LockMatches(ctx, "u1")
	require.NoError(t, err)
	um.TotalMatches = 2
	require.NoError(t, repo.SaveMatches(ctx, um, t0))

	// LockMatches on an existing row does not reset it
	again, err := repo.LockMatches(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.TotalMatches)
	assert.Equal(t, int64(1), again.Version)
}

func TestApplyDayDelta(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAggregateRepository(testutil.NewTestDB(t))

	require.NoError(t, repo.ApplyDayDelta(ctx, "u1", "2026-03-02", repository.DayDelta{Actions: 1, Likes: 1}))
	require.NoError(t, repo.ApplyDayDelta(ctx, "u1", "2026-03-02", repository.DayDelta{Actions: 1, Passes: 1}))
	require.NoError(t, repo.ApplyDayDelta(ctx, "u1", "2026-03-03", repository.DayDelta{ViewTime: 30}))

	days, err := repo.ListDays(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, int64(2), days[0].Actions)
	assert.Equal(t, int64(1), days[0].Likes)
	assert.Equal(t, int64(1), days[0].Passes)
	assert.Equal(t, int64(30), days[1].ViewTime)

	n, err := repo.CountActiveDays(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEntries_SetUnion(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAggregateRepository(testutil.NewTestDB(t))

	e := db.UserMatchEntry{UserID: "u1", MatchID: "m1", OtherUserID: "u2", ConversationID: "c1", MatchedAt: t0, Status: db.MatchActive}
	ok, err := repo.InsertEntry(ctx, &e)
	require.NoError(t, err)
	assert.True(t, ok)

	dup := e
	ok, err = repo.InsertEntry(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.IncrementEntryUnread(ctx, "u1", "m1", 2))
	require.NoError(t, repo.TouchEntryLastMessage(ctx, "u1", "m1", t0.Add(time.Minute), "hey"))
	// an older message does not overwrite the preview
	require.NoError(t, repo.TouchEntryLastMessage(ctx, "u1", "m1", t0, "older"))

	total, err := repo.SumUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	ended, err := repo.EndEntry(ctx, "u1", "m1", t0)
	require.NoError(t, err)
	assert.True(t, ended)
	ended, err = repo.EndEntry(ctx, "u1", "m1", t0)
	require.NoError(t, err)
	assert.False(t, ended)

	entries, err := repo.ListEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hey", entries[0].LastMessageText)
	assert.Equal(t, db.MatchUnmatched, entries[0].Status)
	assert.True(t, entries[0].Seen)
}

func TestReplaceEntries(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAggregateRepository(testutil.NewTestDB(t))

	for _, id := range []string{"m1", "m2"} {
		_, err := repo.InsertEntry(ctx, &db.UserMatchEntry{UserID: "u1", MatchID: id, OtherUserID: "x", ConversationID: "c" + id, MatchedAt: t0, Status: db.MatchActive})
		require.NoError(t, err)
	}

	require.NoError(t, repo.ReplaceEntries(ctx, "u1", []db.UserMatchEntry{
		{UserID: "u1", MatchID: "m2", OtherUserID: "x", ConversationID: "cm2", MatchedAt: t0, Status: db.MatchActive, UnreadCount: 4},
	}))

	entries, err := repo.ListEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m2", entries[0].MatchID)
	assert.Equal(t, int64(4), entries[0].UnreadCount)
}
