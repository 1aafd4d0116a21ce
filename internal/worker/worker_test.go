package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/service/conversation"
	"github.com/oggyb/muzz-matching/internal/service/matching"
	"github.com/oggyb/muzz-matching/internal/testutil"
	"github.com/oggyb/muzz-matching/internal/worker"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	appCtx *app.AppContext
	clock  *testutil.Clock
	core   *matching.Core
	events *repository.EventRepository
}

func setup(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	clock := testutil.NewClock(t0)
	appCtx := testutil.NewApp(t, clock, app.WithConfig(cfg))
	return &fixture{
		appCtx: appCtx,
		clock:  clock,
		core:   matching.NewCore(appCtx),
		events: repository.NewEventRepository(appCtx.DB),
	}
}

// unprojectedMatch records a mutual like and creates the match without
// projecting anything, as if the request path died after the detector.
func (f *fixture) unprojectedMatch(t *testing.T, a, b string) *db.Match {
	t.Helper()
	ctx := context.Background()
	_, err := f.core.Ledger.RecordAction(ctx, a, b, db.OutcomeLike, "")
	require.NoError(t, err)
	res, err := f.core.Ledger.RecordAction(ctx, b, a, db.OutcomeLike, "")
	require.NoError(t, err)
	det, err := f.core.Detector.Evaluate(ctx, res.Action)
	require.NoError(t, err)
	require.True(t, det.Created)
	return det.Match
}

func TestProcessOnce_ProjectsPendingMatchEvent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	m := f.unprojectedMatch(t, "alice", "bob")

	pending, err := f.events.CountPending(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), pending)

	stats, err := worker.NewDispatcher(f.appCtx, f.core).ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Events)
	assert.Zero(t, stats.Actions, "actions inside the grace window belong to the request path")

	pending, err = f.events.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	for _, user := range []string{"alice", "bob"} {
		um, err := f.core.Projector.Matches(ctx, user)
		require.NoError(t, err)
		require.Len(t, um.Entries, 1, user)
		assert.Equal(t, m.ID, um.Entries[0].MatchID)
		assert.Equal(t, int64(1), um.ActiveMatches)
	}
}

func TestProcessOnce_ReplaysActionsPastGrace(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	d := worker.NewDispatcher(f.appCtx, f.core)

	_, err := f.core.Ledger.RecordAction(ctx, "alice", "bob", db.OutcomeLike, "")
	require.NoError(t, err)
	_, err = f.core.Ledger.RecordAction(ctx, "bob", "alice", db.OutcomeLike, "")
	require.NoError(t, err)

	stats, err := d.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Actions)

	f.clock.Advance(31 * time.Second)
	stats, err = d.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Actions)

	activity, err := f.core.Projector.Activity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), activity.TotalLikes)
	assert.Equal(t, int64(1), activity.TotalMatches)

	um, err := f.core.Projector.Matches(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, um.Entries, 1, "replay detects the match the request path missed")

	stats, err = d.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, worker.Stats{}, stats, "nothing left to do")
}

func TestProcessOnce_ProjectsStaleMessages(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	res, err := f.core.SubmitAction(ctx, "alice", "bob", db.OutcomeLike, "")
	require.NoError(t, err)
	require.False(t, res.Detection.Matched)
	res, err = f.core.SubmitAction(ctx, "bob", "alice", db.OutcomeLike, "")
	require.NoError(t, err)
	require.True(t, res.Detection.Created)

	// a lifecycle without projections leaves the message for the sweep
	bare := conversation.New(f.appCtx, nil)
	_, err = bare.SendMessage(ctx, res.Detection.Match.ConversationID, "alice", "hi")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	stats, err := worker.NewDispatcher(f.appCtx, f.core).ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Messages)

	unread, err := f.core.Projector.UnreadTotal(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestProcessOnce_FailedEventBacksOff(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	d := worker.NewDispatcher(f.appCtx, f.core)

	require.NoError(t, f.events.Enqueue(ctx, db.EventMatchCreated, "no-such-match", t0))

	stats, err := d.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsFailed)

	early, err := f.events.LeaseReady(ctx, t0.Add(time.Second), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, early)

	f.clock.Set(t0.Add(2 * time.Second))
	stats, err = d.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsFailed)

	// second failure doubles the delay
	again, err := f.events.LeaseReady(ctx, t0.Add(5*time.Second), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
	again, err = f.events.LeaseReady(ctx, t0.Add(6*time.Second), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 2, again[0].Attempts)
	assert.Contains(t, again[0].LastError, "no-such-match")
}

func TestDispatcherRun(t *testing.T) {
	f := setup(t, &config.Config{Worker: config.WorkerConfig{OutboxInterval: 10 * time.Millisecond}})
	f.unprojectedMatch(t, "alice", "bob")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.NewDispatcher(f.appCtx, f.core).Run(ctx) }()

	assert.Eventually(t, func() bool {
		n, err := f.events.CountPending(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestScheduler_SweepAndReconcile(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	s := worker.NewScheduler(f.appCtx, f.core)

	_, err := f.core.SubmitAction(ctx, "alice", "bob", db.OutcomeLike, "")
	require.NoError(t, err)
	res, err := f.core.SubmitAction(ctx, "bob", "alice", db.OutcomeLike, "")
	require.NoError(t, err)
	convID := res.Detection.Match.ConversationID

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(721 * time.Hour)
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	conv, err := f.core.Conversations.Get(ctx, convID, "alice")
	require.NoError(t, err)
	assert.Equal(t, db.ConversationArchived, conv.Status)

	drifted, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, drifted)
}

func TestSchedulerRun_StopsOnCancel(t *testing.T) {
	f := setup(t, &config.Config{Worker: config.WorkerConfig{
		SweepInterval:     5 * time.Millisecond,
		ReconcileInterval: 5 * time.Millisecond,
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, worker.NewScheduler(f.appCtx, f.core).Run(ctx))
}
