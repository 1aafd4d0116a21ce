// Package detector turns mutual likes into matches.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/pairkey"
	"github.com/oggyb/muzz-matching/internal/repository"
)

// BatchCounter bumps matchesFound on the batch the match came from, inside the
// detector's transaction.
type BatchCounter interface {
	RecordMatchAgainstBatchTx(ctx context.Context, tx *gorm.DB, batchID string) error
}

// Detection is the outcome of Evaluate.
type Detection struct {
	// Matched is true when the pair has an ACTIVE match after the call.
	Matched bool
	// Created is true only for the caller whose insert won.
	Created bool
	// Excluded is true when the pair matched before and was unmatched. Unmatch is permanent.
	Excluded bool
	Match    *db.Match
}

type Detector struct {
	appCtx        *app.AppContext
	actions       *repository.ActionRepository
	matches       *repository.MatchRepository
	conversations *repository.ConversationRepository
	events        *repository.EventRepository
	batches       BatchCounter
	logger        *slog.Logger
}

// New builds a Detector. batches may be nil.
func New(appCtx *app.AppContext, batches BatchCounter) *Detector {
	return &Detector{
		appCtx:        appCtx,
		actions:       repository.NewActionRepository(appCtx.DB),
		matches:       repository.NewMatchRepository(appCtx.DB),
		conversations: repository.NewConversationRepository(appCtx.DB),
		events:        repository.NewEventRepository(appCtx.DB),
		batches:       batches,
		logger:        appCtx.Logger.With("component", "detector"),
	}
}

// Evaluate checks whether action completes a mutual like and, if so, creates the
// pair's Match and Conversation exactly once.
//
// Behavior:
//   - Only LIKE triggers; the reverse action must currently be LIKE too.
//   - A blocked pair never matches.
//   - The match id is derived from the pair, so concurrent callers collide on one
//     row. The winner writes Match, Conversation and a match_created outbox event
//     in one transaction; losers read the winner's row.
//   - An UNMATCHED pair stays excluded.
//   - The winner notifies both users.
func (d *Detector) Evaluate(ctx context.Context, action *db.Action) (*Detection, error) {
	if action == nil || action.Outcome != db.OutcomeLike {
		return &Detection{}, nil
	}
	actorID, targetID := action.ActorID, action.TargetID

	reverse, err := d.actions.Find(ctx, targetID, actorID)
	if err != nil {
		return nil, fmt.Errorf("load reverse action: %w", err)
	}
	if reverse == nil || reverse.Outcome != db.OutcomeLike {
		return &Detection{}, nil
	}

	blocked, err := d.appCtx.Safety.IsBlocked(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("safety check: %w", err)
	}
	if blocked {
		d.logger.Debug("mutual like on blocked pair ignored", "a", actorID, "b", targetID)
		return &Detection{}, nil
	}

	matchID := pairkey.MatchID(actorID, targetID)
	existing, err := d.matches.Find(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if existing != nil {
		return detectionFor(existing, false), nil
	}

	var (
		match   *db.Match
		created bool
	)
	err = repository.InTx(ctx, d.appCtx.DB, func(tx *gorm.DB) error {
		var err error
		match, created, err = d.create(ctx, tx, action)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		d.logger.Info("match created", "match", match.ID, "a", match.UserAID, "b", match.UserBID)
		d.notifyBoth(ctx, match)
	}
	return detectionFor(match, created), nil
}

func (d *Detector) create(ctx context.Context, tx *gorm.DB, action *db.Action) (*db.Match, bool, error) {
	matches := d.matches.WithTx(tx)
	now := d.appCtx.Now()

	a, b := pairkey.Sorted(action.ActorID, action.TargetID)
	m := &db.Match{
		ID:             pairkey.MatchID(a, b),
		UserAID:        a,
		UserBID:        b,
		ConversationID: pairkey.ConversationID(a, b),
		Status:         db.MatchActive,
		MatchSetID:     action.BatchID,
		MatchedAt:      now,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	inserted, err := matches.InsertIfAbsent(ctx, m)
	if err != nil {
		return nil, false, fmt.Errorf("insert match: %w", err)
	}
	if !inserted {
		winner, err := matches.Find(ctx, m.ID)
		if err != nil {
			return nil, false, fmt.Errorf("load match: %w", err)
		}
		if winner == nil {
			return nil, false, fmt.Errorf("match %s vanished: %w", m.ID, svcErr.ErrConcurrentWriteLost)
		}
		return winner, false, nil
	}

	conv := &db.Conversation{
		ID:           m.ConversationID,
		MatchID:      m.ID,
		ParticipantA: a,
		ParticipantB: b,
		Status:       db.ConversationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.conversations.WithTx(tx).Create(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	if err := d.events.WithTx(tx).Enqueue(ctx, db.EventMatchCreated, m.ID, now); err != nil {
		return nil, false, fmt.Errorf("enqueue match event: %w", err)
	}

	if m.MatchSetID != "" && d.batches != nil {
		err := d.batches.RecordMatchAgainstBatchTx(ctx, tx, m.MatchSetID)
		switch {
		case err == nil:
		case errors.Is(err, svcErr.ErrBatchInvariant), errors.Is(err, svcErr.ErrAggregateNotFound):
			// the match stands even if the batch cannot take it
			d.logger.Warn("match not counted against batch", "match", m.ID, "batch", m.MatchSetID, "err", err)
		default:
			return nil, false, err
		}
	}
	return m, true, nil
}

func (d *Detector) notifyBoth(ctx context.Context, m *db.Match) {
	for _, userID := range []string{m.UserAID, m.UserBID} {
		d.appCtx.Notifier.Notify(ctx, notify.Event{
			Kind:           notify.KindMatchCreated,
			UserID:         userID,
			OtherUserID:    m.Other(userID),
			MatchID:        m.ID,
			ConversationID: m.ConversationID,
			At:             m.MatchedAt,
		})
	}
}

func detectionFor(m *db.Match, created bool) *Detection {
	if m.Status == db.MatchUnmatched {
		return &Detection{Excluded: true, Match: m}
	}
	return &Detection{Matched: true, Created: created, Match: m}
}
