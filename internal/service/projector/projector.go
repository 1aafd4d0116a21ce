// Package projector folds actions, matches and messages into the per-user
// UserMatches and UserActivity aggregates.
//
// Every projection is idempotent. Actions are guarded by their processed flag and
// revision, matches by the (user, match) entry key, messages by their projected
// flag and reads by the entry's seen flag. Aggregate rows are written with a
// version compare-and-set and the whole projection is retried on a lost race.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/repository"
)

type Projector struct {
	appCtx        *app.AppContext
	actions       *repository.ActionRepository
	matches       *repository.MatchRepository
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	aggregates    *repository.AggregateRepository
	events        *repository.EventRepository
	logger        *slog.Logger
}

func New(appCtx *app.AppContext) *Projector {
	return &Projector{
		appCtx:        appCtx,
		actions:       repository.NewActionRepository(appCtx.DB),
		matches:       repository.NewMatchRepository(appCtx.DB),
		conversations: repository.NewConversationRepository(appCtx.DB),
		messages:      repository.NewMessageRepository(appCtx.DB),
		aggregates:    repository.NewAggregateRepository(appCtx.DB),
		events:        repository.NewEventRepository(appCtx.DB),
		logger:        appCtx.Logger.With("component", "projector"),
	}
}

// retry runs fn in a transaction, again on ErrConcurrentWriteLost.
func (p *Projector) retry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return repository.RetryOnConflict(ctx, p.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, p.appCtx.DB, fn)
	})
}

// ProjectAction applies the current revision of actorID's action on targetID to
// the actor's UserActivity. Returns false when there was nothing to do.
//
// A first projection counts the action. A later revision moves the outcome and
// day counters from what was projected before, so totalActions never double counts.
func (p *Projector) ProjectAction(ctx context.Context, actorID, targetID string) (bool, error) {
	var applied bool
	err := p.retry(ctx, func(tx *gorm.DB) error {
		applied = false
		actions := p.actions.WithTx(tx)
		aggs := p.aggregates.WithTx(tx)

		a, err := actions.FindForUpdate(ctx, actorID, targetID)
		if err != nil {
			return fmt.Errorf("load action: %w", err)
		}
		if a == nil || a.Processed {
			return nil
		}

		activity, err := aggs.LockActivity(ctx, a.ActorID)
		if err != nil {
			return fmt.Errorf("lock activity: %w", err)
		}

		day := db.DayOf(a.ActedAt)
		deltas := map[string]repository.DayDelta{}
		if a.ProjectedOutcome == "" {
			activity.TotalActions++
		} else {
			AddOutcome(activity, a.ProjectedOutcome, -1)
			deltas[a.ProjectedDay] = OutcomeDelta(a.ProjectedOutcome, -1)
		}
		AddOutcome(activity, a.Outcome, 1)
		deltas[day] = deltas[day].Add(OutcomeDelta(a.Outcome, 1))
		AdvanceStreak(activity, day)

		if err := applyDeltas(ctx, aggs, a.ActorID, deltas); err != nil {
			return err
		}
		if err := p.refreshDerived(ctx, aggs, activity); err != nil {
			return err
		}
		if err := aggs.SaveActivity(ctx, activity, p.appCtx.Now()); err != nil {
			return err
		}

		ok, err := actions.MarkProjected(ctx, a, day)
		if err != nil {
			return fmt.Errorf("mark action projected: %w", err)
		}
		if !ok {
			return fmt.Errorf("action %s->%s@%d: %w", a.ActorID, a.TargetID, a.Revision, svcErr.ErrConcurrentWriteLost)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		p.logger.Debug("action projected", "actor", actorID, "target", targetID)
	}
	return applied, nil
}

// ProjectMatch adds the match to both participants' aggregates and completes its
// match_created event.
func (p *Projector) ProjectMatch(ctx context.Context, matchID string) error {
	return p.retry(ctx, func(tx *gorm.DB) error {
		m, err := p.loadMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if err := p.projectMatchTx(ctx, tx, m); err != nil {
			return err
		}
		return p.events.WithTx(tx).Complete(ctx, db.EventMatchCreated, m.ID, p.appCtx.Now())
	})
}

// ProjectMatchEnded flips both entries to UNMATCHED and takes the match out of
// activeMatches once. Entries missing because the creation was never projected
// are added first.
func (p *Projector) ProjectMatchEnded(ctx context.Context, matchID string) error {
	return p.retry(ctx, func(tx *gorm.DB) error {
		m, err := p.loadMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m.Status != db.MatchUnmatched {
			return nil
		}
		if err := p.projectMatchTx(ctx, tx, m); err != nil {
			return err
		}

		aggs := p.aggregates.WithTx(tx)
		now := p.appCtx.Now()
		for _, userID := range participants(m) {
			entry, err := aggs.FindEntryForUpdate(ctx, userID, m.ID)
			if err != nil {
				return fmt.Errorf("load entry: %w", err)
			}
			if entry == nil || entry.Status != db.MatchActive {
				continue
			}
			ended, err := aggs.EndEntry(ctx, userID, m.ID, now)
			if err != nil {
				return fmt.Errorf("end entry: %w", err)
			}
			if !ended {
				continue
			}

			um, err := aggs.LockMatches(ctx, userID)
			if err != nil {
				return fmt.Errorf("lock matches: %w", err)
			}
			um.ActiveMatches = max(um.ActiveMatches-1, 0)
			if !entry.Seen {
				um.NewMatches = max(um.NewMatches-1, 0)
			}
			if err := aggs.SaveMatches(ctx, um, now); err != nil {
				return err
			}
		}

		events := p.events.WithTx(tx)
		if err := events.Complete(ctx, db.EventMatchCreated, m.ID, now); err != nil {
			return err
		}
		return events.Complete(ctx, db.EventMatchEnded, m.ID, now)
	})
}

// ProjectMessage folds a delivered message into both participants' entries.
// Returns false when the message was already projected.
func (p *Projector) ProjectMessage(ctx context.Context, messageID string) (bool, error) {
	var (
		applied     bool
		recipientID string
	)
	err := p.retry(ctx, func(tx *gorm.DB) error {
		applied = false
		msgs := p.messages.WithTx(tx)
		aggs := p.aggregates.WithTx(tx)

		msg, err := msgs.FindForUpdate(ctx, messageID)
		if err != nil {
			return fmt.Errorf("load message: %w", err)
		}
		if msg == nil {
			return fmt.Errorf("message %s: %w", messageID, svcErr.ErrAggregateNotFound)
		}
		if msg.Projected {
			return nil
		}
		recipientID = msg.RecipientID

		conv, err := p.conversations.WithTx(tx).Find(ctx, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		if conv == nil {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, svcErr.ErrAggregateNotFound)
		}
		m, err := p.loadMatch(ctx, tx, conv.MatchID)
		if err != nil {
			return err
		}
		if err := p.projectMatchTx(ctx, tx, m); err != nil {
			return err
		}

		now := p.appCtx.Now()
		for _, userID := range participants(m) {
			entry, err := aggs.FindEntryForUpdate(ctx, userID, m.ID)
			if err != nil {
				return fmt.Errorf("load entry: %w", err)
			}
			um, err := aggs.LockMatches(ctx, userID)
			if err != nil {
				return fmt.Errorf("lock matches: %w", err)
			}

			switch userID {
			case msg.RecipientID:
				if msg.ReadAt == nil {
					if err := aggs.IncrementEntryUnread(ctx, userID, m.ID, 1); err != nil {
						return fmt.Errorf("increment unread: %w", err)
					}
				}
			case msg.SenderID:
				if entry != nil && !entry.HasMessaged {
					if err := aggs.UpdateEntry(ctx, userID, m.ID, map[string]any{"has_messaged": true, "updated_at": now}); err != nil {
						return fmt.Errorf("mark has messaged: %w", err)
					}
					um.ConversationsStarted++
				}
			}
			if err := aggs.TouchEntryLastMessage(ctx, userID, m.ID, msg.SentAt, msg.Content); err != nil {
				return fmt.Errorf("touch last message: %w", err)
			}
			if err := aggs.SaveMatches(ctx, um, now); err != nil {
				return err
			}
		}

		if err := p.matches.WithTx(tx).TouchActivity(ctx, m.ID, msg.SentAt); err != nil {
			return fmt.Errorf("touch match activity: %w", err)
		}
		ok, err := msgs.MarkProjected(ctx, msg.ID)
		if err != nil {
			return fmt.Errorf("mark message projected: %w", err)
		}
		if !ok {
			return fmt.Errorf("message %s: %w", msg.ID, svcErr.ErrConcurrentWriteLost)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		p.invalidateUnread(ctx, recipientID)
	}
	return applied, nil
}

// ProjectRead clears userID's unread counter for the match. The first read also
// marks the entry seen and takes it out of newMatches.
func (p *Projector) ProjectRead(ctx context.Context, userID, matchID string) error {
	err := p.retry(ctx, func(tx *gorm.DB) error {
		aggs := p.aggregates.WithTx(tx)

		entry, err := aggs.FindEntryForUpdate(ctx, userID, matchID)
		if err != nil {
			return fmt.Errorf("load entry: %w", err)
		}
		if entry == nil {
			m, err := p.loadMatch(ctx, tx, matchID)
			if err != nil {
				return err
			}
			if !m.HasParticipant(userID) {
				return fmt.Errorf("user %s in match %s: %w", userID, matchID, svcErr.ErrNotParticipant)
			}
			if err := p.projectMatchTx(ctx, tx, m); err != nil {
				return err
			}
			if entry, err = aggs.FindEntryForUpdate(ctx, userID, matchID); err != nil {
				return fmt.Errorf("load entry: %w", err)
			}
		}
		if entry.UnreadCount == 0 && entry.Seen {
			return nil
		}

		now := p.appCtx.Now()
		um, err := aggs.LockMatches(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock matches: %w", err)
		}
		updates := map[string]any{"unread_count": 0, "updated_at": now}
		if !entry.Seen {
			updates["seen"] = true
			if entry.Status == db.MatchActive {
				um.NewMatches = max(um.NewMatches-1, 0)
			}
		}
		if err := aggs.UpdateEntry(ctx, userID, matchID, updates); err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		return aggs.SaveMatches(ctx, um, now)
	})
	if err != nil {
		return err
	}
	p.invalidateUnread(ctx, userID)
	return nil
}

// projectMatchTx inserts the missing entries of m and bumps the counters of the
// users whose entry was inserted by this call.
func (p *Projector) projectMatchTx(ctx context.Context, tx *gorm.DB, m *db.Match) error {
	aggs := p.aggregates.WithTx(tx)
	now := p.appCtx.Now()
	active := m.Status == db.MatchActive

	for _, userID := range participants(m) {
		inserted, err := aggs.InsertEntry(ctx, &db.UserMatchEntry{
			UserID:         userID,
			MatchID:        m.ID,
			OtherUserID:    m.Other(userID),
			ConversationID: m.ConversationID,
			MatchedAt:      m.MatchedAt,
			Status:         m.Status,
			Seen:           !active,
			MatchSetID:     m.MatchSetID,
			UpdatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		if !inserted {
			continue
		}

		um, err := aggs.LockMatches(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock matches: %w", err)
		}
		um.TotalMatches++
		if active {
			um.ActiveMatches++
			um.NewMatches++
		}
		if um.LastMatchAt == nil || um.LastMatchAt.Before(m.MatchedAt) {
			at := m.MatchedAt
			um.LastMatchAt = &at
		}
		if err := aggs.SaveMatches(ctx, um, now); err != nil {
			return err
		}

		activity, err := aggs.LockActivity(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock activity: %w", err)
		}
		activity.TotalMatches++
		activity.MatchSuccessRate = SuccessRate(activity.TotalMatches, activity.TotalLikes)
		if err := aggs.SaveActivity(ctx, activity, now); err != nil {
			return err
		}
		if err := aggs.ApplyDayDelta(ctx, userID, db.DayOf(m.MatchedAt), repository.DayDelta{Matches: 1}); err != nil {
			return fmt.Errorf("apply day delta: %w", err)
		}
	}
	return nil
}

func (p *Projector) loadMatch(ctx context.Context, tx *gorm.DB, matchID string) (*db.Match, error) {
	m, err := p.matches.WithTx(tx).FindForUpdate(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("match %s: %w", matchID, svcErr.ErrAggregateNotFound)
	}
	return m, nil
}

// refreshDerived recomputes the ratios from the counters and the day rows.
func (p *Projector) refreshDerived(ctx context.Context, aggs *repository.AggregateRepository, a *db.UserActivity) error {
	days, err := aggs.CountActiveDays(ctx, a.UserID)
	if err != nil {
		return fmt.Errorf("count active days: %w", err)
	}
	a.ActiveDays = days
	a.MatchSuccessRate = SuccessRate(a.TotalMatches, a.TotalLikes)
	a.AvgActionsPerDay = AvgPerDay(a.TotalActions, days)
	return nil
}

func (p *Projector) invalidateUnread(ctx context.Context, userID string) {
	if p.appCtx.RedisCache == nil || userID == "" {
		return
	}
	if err := p.appCtx.RedisCache.Del(ctx, cache.KeyForUnread(userID)); err != nil {
		p.logger.Warn("unread cache invalidation failed", "user", userID, "err", err)
	}
}

// applyDeltas writes day deltas in day order so concurrent writers lock rows alike.
func applyDeltas(ctx context.Context, aggs *repository.AggregateRepository, userID string, deltas map[string]repository.DayDelta) error {
	days := make([]string, 0, len(deltas))
	for day := range deltas {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		if err := aggs.ApplyDayDelta(ctx, userID, day, deltas[day]); err != nil {
			return fmt.Errorf("apply day delta %s: %w", day, err)
		}
	}
	return nil
}

// participants returns the match's users in lock order.
func participants(m *db.Match) []string {
	return []string{m.UserAID, m.UserBID}
}
