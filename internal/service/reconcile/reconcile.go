// Package reconcile recomputes the per-user aggregates from the authoritative
// actions, matches, match sets and messages, and corrects whatever drifted
// after a partial failure.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/repository"
)

// Report describes one user's reconciliation.
type Report struct {
	UserID        string
	ActivityDrift bool
	MatchesDrift  bool
	// ActionsMarked counts actions whose pending projection was absorbed.
	ActionsMarked int
}

func (r *Report) Drifted() bool { return r.ActivityDrift || r.MatchesDrift }

// RunReport summarises a full run.
type RunReport struct {
	Users   int
	Drifted int
	Failed  int
}

type Job struct {
	appCtx      *app.AppContext
	actions     *repository.ActionRepository
	matches     *repository.MatchRepository
	sets        *repository.MatchSetRepository
	messages    *repository.MessageRepository
	aggregates  *repository.AggregateRepository
	concurrency int
	logger      *slog.Logger
}

func New(appCtx *app.AppContext) *Job {
	return &Job{
		appCtx:      appCtx,
		actions:     repository.NewActionRepository(appCtx.DB),
		matches:     repository.NewMatchRepository(appCtx.DB),
		sets:        repository.NewMatchSetRepository(appCtx.DB),
		messages:    repository.NewMessageRepository(appCtx.DB),
		aggregates:  repository.NewAggregateRepository(appCtx.DB),
		concurrency: max(appCtx.Config.Worker.ReconcileConcurrency, 1),
		logger:      appCtx.Logger.With("component", "reconcile"),
	}
}

// ReconcileUser rewrites userID's UserActivity, daily summary, UserMatches and
// entries from the authoritative rows in one transaction, bumping both versions.
// The user's unprojected actions are marked projected since the recomputation
// already counts them.
func (j *Job) ReconcileUser(ctx context.Context, userID string) (*Report, error) {
	var report *Report
	err := repository.RetryOnConflict(ctx, j.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, j.appCtx.DB, func(tx *gorm.DB) error {
			var err error
			report, err = j.reconcileTx(ctx, tx, userID)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", userID, err)
	}
	if report.Drifted() {
		j.logger.Info("aggregate drift corrected",
			"user", userID,
			"activity", report.ActivityDrift,
			"matches", report.MatchesDrift,
			"actions_marked", report.ActionsMarked,
		)
	}
	return report, nil
}

func (j *Job) reconcileTx(ctx context.Context, tx *gorm.DB, userID string) (*Report, error) {
	aggs := j.aggregates.WithTx(tx)
	actionRepo := j.actions.WithTx(tx)
	now := j.appCtx.Now()

	// lock the aggregates first so concurrent projections wait for us
	activity, err := aggs.LockActivity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock activity: %w", err)
	}
	um, err := aggs.LockMatches(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock matches: %w", err)
	}

	actions, err := actionRepo.ListByActor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	matches, err := j.matches.WithTx(tx).ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	sets, err := j.sets.WithTx(tx).ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list match sets: %w", err)
	}
	msgs, err := j.messages.WithTx(tx).ListProjectedForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	priorEntries, err := aggs.ListEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	priorDays, err := aggs.ListDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}

	report := &Report{UserID: userID}

	wantActivity := Compute(userID, actions, matches, sets)
	report.ActivityDrift = !sameActivity(activity, &wantActivity) || !sameDays(priorDays, wantActivity.Days)
	wantActivity.Version = activity.Version
	if err := aggs.SaveActivity(ctx, &wantActivity, now); err != nil {
		return nil, err
	}
	if err := aggs.ReplaceDays(ctx, userID, wantActivity.Days); err != nil {
		return nil, fmt.Errorf("replace days: %w", err)
	}

	wantMatches := ComputeMatches(userID, matches, msgs, priorEntries)
	report.MatchesDrift = !sameMatches(um, &wantMatches) || !sameEntries(priorEntries, wantMatches.Entries)
	wantMatches.Version = um.Version
	if err := aggs.SaveMatches(ctx, &wantMatches, now); err != nil {
		return nil, err
	}
	for i := range wantMatches.Entries {
		wantMatches.Entries[i].UpdatedAt = now
	}
	if err := aggs.ReplaceEntries(ctx, userID, wantMatches.Entries); err != nil {
		return nil, fmt.Errorf("replace entries: %w", err)
	}

	for i := range actions {
		a := &actions[i]
		day := db.DayOf(a.ActedAt)
		if a.Processed && a.ProjectedOutcome == a.Outcome && a.ProjectedDay == day {
			continue
		}
		ok, err := actionRepo.MarkProjected(ctx, a, day)
		if err != nil {
			return nil, fmt.Errorf("mark action projected: %w", err)
		}
		if ok {
			report.ActionsMarked++
		}
	}
	if report.ActionsMarked > 0 {
		report.ActivityDrift = true
	}
	return report, nil
}

// Run reconciles every known user with bounded concurrency. A failing user is
// logged and counted; the run carries on with the rest.
func (j *Job) Run(ctx context.Context) (*RunReport, error) {
	users, err := j.userIDs(ctx)
	if err != nil {
		return nil, err
	}

	var drifted, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(j.concurrency)
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			report, err := j.ReconcileUser(ctx, userID)
			if err != nil {
				failed.Add(1)
				j.logger.Error("reconcile user failed", "user", userID, "err", err)
				return nil
			}
			if report.Drifted() {
				drifted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &RunReport{Users: len(users), Drifted: int(drifted.Load()), Failed: int(failed.Load())}
	j.logger.Info("reconciliation finished", "users", out.Users, "drifted", out.Drifted, "failed", out.Failed)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (j *Job) userIDs(ctx context.Context) ([]string, error) {
	sources := []func(context.Context) ([]string, error){
		j.actions.ListActorIDs,
		j.matches.ListParticipantIDs,
		j.aggregates.ListUserIDs,
		j.sets.ListUserIDs,
	}
	set := map[string]struct{}{}
	for _, list := range sources {
		ids, err := list(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func sameActivity(got, want *db.UserActivity) bool {
	return got.TotalActions == want.TotalActions &&
		got.TotalLikes == want.TotalLikes &&
		got.TotalPasses == want.TotalPasses &&
		got.TotalDislikes == want.TotalDislikes &&
		got.TotalMatches == want.TotalMatches &&
		got.TotalViewTime == want.TotalViewTime &&
		got.ActiveDays == want.ActiveDays &&
		got.CurrentStreak == want.CurrentStreak &&
		got.LongestStreak == want.LongestStreak &&
		got.LastActionDay == want.LastActionDay
}

func sameDays(got, want []db.UserActivityDay) bool {
	nonZero := got[:0:0]
	for _, d := range got {
		if d.Actions != 0 || d.Likes != 0 || d.Passes != 0 || d.Dislikes != 0 ||
			d.Matches != 0 || d.ViewTime != 0 || d.BatchesCompleted != 0 {
			nonZero = append(nonZero, d)
		}
	}
	if len(nonZero) != len(want) {
		return false
	}
	for i := range want {
		if nonZero[i] != want[i] {
			return false
		}
	}
	return true
}

func sameMatches(got, want *db.UserMatches) bool {
	return got.TotalMatches == want.TotalMatches &&
		got.ActiveMatches == want.ActiveMatches &&
		got.NewMatches == want.NewMatches &&
		got.ConversationsStarted == want.ConversationsStarted
}

func sameEntries(got, want []db.UserMatchEntry) bool {
	if len(got) != len(want) {
		return false
	}
	byID := make(map[string]db.UserMatchEntry, len(got))
	for _, e := range got {
		byID[e.MatchID] = e
	}
	for _, w := range want {
		g, ok := byID[w.MatchID]
		if !ok ||
			g.Status != w.Status ||
			g.UnreadCount != w.UnreadCount ||
			g.HasMessaged != w.HasMessaged ||
			g.Seen != w.Seen {
			return false
		}
	}
	return true
}
