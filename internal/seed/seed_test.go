package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/seed"
	"github.com/oggyb/muzz-matching/internal/service/matching"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

func newCore(t *testing.T) *matching.Core {
	t.Helper()
	return matching.NewCore(testutil.NewApp(t, testutil.NewClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))))
}

func TestRun_BuildsConsistentDataset(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	sum, err := seed.Run(ctx, core, seed.Options{Users: 4, Candidates: 2, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Users)
	assert.Equal(t, 4, sum.MatchSets)
	assert.GreaterOrEqual(t, sum.Actions, 8)
	assert.GreaterOrEqual(t, sum.Matches, 1, "the first pair is always mutual")
	assert.GreaterOrEqual(t, sum.Messages, sum.Matches)

	var sets []db.MatchSet
	require.NoError(t, core.App().DB.Find(&sets).Error)
	require.Len(t, sets, 4)
	for _, s := range sets {
		assert.Equal(t, int64(2), s.TotalCandidates)
		assert.Equal(t, db.MatchSetCompleted, s.Status, s.UserID)
	}

	report, err := core.Reconciler.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Drifted, "seeding goes through the projector")
}

func TestRun_DeterministicForSeed(t *testing.T) {
	ctx := context.Background()
	a, err := seed.Run(ctx, newCore(t), seed.Options{Users: 6, Candidates: 3, Seed: 7})
	require.NoError(t, err)
	b, err := seed.Run(ctx, newCore(t), seed.Options{Users: 6, Candidates: 3, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_Reset(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	_, err := seed.Run(ctx, core, seed.Options{Users: 4, Candidates: 2, Seed: 1})
	require.NoError(t, err)
	again, err := seed.Run(ctx, core, seed.Options{Users: 4, Candidates: 2, Seed: 1, Reset: true})
	require.NoError(t, err)

	var sets int64
	require.NoError(t, core.App().DB.Model(&db.MatchSet{}).Count(&sets).Error)
	assert.Equal(t, int64(4), sets)

	var matches int64
	require.NoError(t, core.App().DB.Model(&db.Match{}).Count(&matches).Error)
	assert.Equal(t, int64(again.Matches), matches)
}
