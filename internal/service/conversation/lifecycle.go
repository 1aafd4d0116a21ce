// Package conversation owns the conversation state machine and its messages.
//
//	ACTIVE   --archive-->   ARCHIVED
//	ARCHIVED --unarchive--> ACTIVE
//	ACTIVE   --message-->   ACTIVE
//	ARCHIVED --message-->   ACTIVE
//	ACTIVE, ARCHIVED --unmatch/report/block--> UNMATCHED (terminal)
//
// Status changes are compare-and-set on the current status.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/pairkey"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

const (
	MaxMessageLength = 1000
	archiveBatchSize = 500
)

// Projections folds conversation changes into the per-user aggregates.
type Projections interface {
	ProjectMessage(ctx context.Context, messageID string) (bool, error)
	ProjectRead(ctx context.Context, userID, matchID string) error
	ProjectMatchEnded(ctx context.Context, matchID string) error
}

type Lifecycle struct {
	appCtx        *app.AppContext
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	matches       *repository.MatchRepository
	events        *repository.EventRepository
	projections   Projections
	logger        *slog.Logger
}

func New(appCtx *app.AppContext, projections Projections) *Lifecycle {
	return &Lifecycle{
		appCtx:        appCtx,
		conversations: repository.NewConversationRepository(appCtx.DB),
		messages:      repository.NewMessageRepository(appCtx.DB),
		matches:       repository.NewMatchRepository(appCtx.DB),
		events:        repository.NewEventRepository(appCtx.DB),
		projections:   projections,
		logger:        appCtx.Logger.With("component", "conversation"),
	}
}

// Get returns the conversation if userID takes part in it.
func (l *Lifecycle) Get(ctx context.Context, conversationID, userID string) (*db.Conversation, error) {
	conv, err := l.conversations.Find(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if err := checkParticipant(conv, conversationID, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListForUser pages through the user's open conversations, most recent first.
func (l *Lifecycle) ListForUser(
	ctx context.Context,
	userID string,
	includeArchived bool,
	token *string,
	limit int,
) ([]db.Conversation, *string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, fmt.Errorf("user id is required: %w", svcErr.ErrInvalidArgument)
	}
	convs, next, err := l.conversations.ListForUser(ctx, userID, includeArchived, token, pagination.ClampLimit(limit))
	if err != nil {
		return nil, nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, next, nil
}

// Archive hides the conversation. Archiving an archived conversation is a no-op.
func (l *Lifecycle) Archive(ctx context.Context, conversationID, userID string) (*db.Conversation, error) {
	return l.toggleArchive(ctx, conversationID, userID, db.ConversationActive, db.ConversationArchived)
}

// Unarchive brings an archived conversation back. Unarchiving an active one is a no-op.
func (l *Lifecycle) Unarchive(ctx context.Context, conversationID, userID string) (*db.Conversation, error) {
	return l.toggleArchive(ctx, conversationID, userID, db.ConversationArchived, db.ConversationActive)
}

func (l *Lifecycle) toggleArchive(
	ctx context.Context,
	conversationID, userID string,
	from, to db.ConversationStatus,
) (*db.Conversation, error) {
	var conv *db.Conversation
	err := repository.RetryOnConflict(ctx, l.appCtx.Matching().RetryLimit, func() error {
		var err error
		conv, err = l.Get(ctx, conversationID, userID)
		if err != nil {
			return err
		}
		switch conv.Status {
		case db.ConversationUnmatched:
			return fmt.Errorf("conversation %s: %w", conversationID, svcErr.ErrConversationClosed)
		case to:
			return nil
		}

		now := l.appCtx.Now()
		ok, err := l.conversations.Transition(ctx, conv.ID, from, to, to == db.ConversationArchived, now)
		if err != nil {
			return fmt.Errorf("transition conversation: %w", err)
		}
		if !ok {
			return fmt.Errorf("conversation %s left %s: %w", conv.ID, from, svcErr.ErrConcurrentWriteLost)
		}
		conv.Status, conv.Archived, conv.UpdatedAt = to, to == db.ConversationArchived, now
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debug("conversation status", "conversation", conv.ID, "user", userID, "status", conv.Status)
	return conv, nil
}

// Unmatch ends the match behind the conversation. The pair can never match again.
func (l *Lifecycle) Unmatch(ctx context.Context, conversationID, requesterID string) (*db.Conversation, error) {
	return l.end(ctx, conversationID, requesterID, "unmatch")
}

// Report ends the match on behalf of a moderation report.
func (l *Lifecycle) Report(ctx context.Context, conversationID, reporterID, reason string) (*db.Conversation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}
	return l.end(ctx, conversationID, reporterID, "report: "+reason)
}

// EndForBlock ends the pair's match, if any, after blockerID blocked blockedID.
func (l *Lifecycle) EndForBlock(ctx context.Context, blockerID, blockedID string) error {
	_, err := l.end(ctx, pairkey.ConversationID(blockerID, blockedID), blockerID, "block")
	if errors.Is(err, svcErr.ErrAggregateNotFound) {
		return nil
	}
	return err
}

// end moves the conversation to UNMATCHED, ends the match and enqueues a
// match_ended event in one transaction, then projects it best-effort. The
// dispatcher retries a failed projection from the outbox.
func (l *Lifecycle) end(ctx context.Context, conversationID, requesterID, reason string) (*db.Conversation, error) {
	var (
		conv  *db.Conversation
		ended bool
	)
	err := repository.RetryOnConflict(ctx, l.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, l.appCtx.DB, func(tx *gorm.DB) error {
			convs := l.conversations.WithTx(tx)
			var err error
			conv, err = convs.FindForUpdate(ctx, conversationID)
			if err != nil {
				return fmt.Errorf("load conversation: %w", err)
			}
			if err := checkParticipant(conv, conversationID, requesterID); err != nil {
				return err
			}
			if conv.Status == db.ConversationUnmatched {
				ended = false
				return nil
			}

			now := l.appCtx.Now()
			ok, err := convs.Transition(ctx, conv.ID, conv.Status, db.ConversationUnmatched, conv.Archived, now)
			if err != nil {
				return fmt.Errorf("transition conversation: %w", err)
			}
			if !ok {
				return fmt.Errorf("conversation %s left %s: %w", conv.ID, conv.Status, svcErr.ErrConcurrentWriteLost)
			}
			if _, err := l.matches.WithTx(tx).End(ctx, conv.MatchID, requesterID, reason, now); err != nil {
				return fmt.Errorf("end match: %w", err)
			}
			if err := l.events.WithTx(tx).Enqueue(ctx, db.EventMatchEnded, conv.MatchID, now); err != nil {
				return fmt.Errorf("enqueue match event: %w", err)
			}
			conv.Status, conv.UpdatedAt = db.ConversationUnmatched, now
			ended = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if ended {
		l.logger.Info("match ended", "match", conv.MatchID, "by", requesterID, "reason", reason)
		if l.projections != nil {
			if err := l.projections.ProjectMatchEnded(ctx, conv.MatchID); err != nil {
				l.logger.Warn("match end projection deferred", "match", conv.MatchID, "err", err)
			}
		}
	}
	return conv, nil
}

// SendMessage stores a message from senderID and updates the conversation.
//
// Behavior:
//   - Content must be non-empty and at most MaxMessageLength characters.
//   - UNMATCHED conversations reject messages with ErrConversationClosed.
//   - A message into an ARCHIVED conversation brings it back to ACTIVE.
//   - The aggregates are projected after commit; a failed projection is picked up
//     by the dispatcher sweep of unprojected messages.
//   - The recipient is notified fire-and-forget.
func (l *Lifecycle) SendMessage(ctx context.Context, conversationID, senderID, content string) (*db.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is empty: %w", svcErr.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, fmt.Errorf("message longer than %d characters: %w", MaxMessageLength, svcErr.ErrInvalidArgument)
	}

	var msg *db.Message
	err := repository.RetryOnConflict(ctx, l.appCtx.Matching().RetryLimit, func() error {
		return repository.InTx(ctx, l.appCtx.DB, func(tx *gorm.DB) error {
			convs := l.conversations.WithTx(tx)
			msgs := l.messages.WithTx(tx)

			conv, err := convs.FindForUpdate(ctx, conversationID)
			if err != nil {
				return fmt.Errorf("load conversation: %w", err)
			}
			if err := checkParticipant(conv, conversationID, senderID); err != nil {
				return err
			}
			if conv.Status == db.ConversationUnmatched {
				return fmt.Errorf("conversation %s: %w", conversationID, svcErr.ErrConversationClosed)
			}

			now := l.appCtx.Now()
			msg = &db.Message{
				ID:             uuid.NewString(),
				ConversationID: conv.ID,
				SenderID:       senderID,
				RecipientID:    conv.Other(senderID),
				Content:        content,
				SentAt:         now,
				CreatedAt:      now,
			}
			if err := msgs.Create(ctx, msg); err != nil {
				return fmt.Errorf("create message: %w", err)
			}
			unread, err := msgs.CountUnread(ctx, conv.ID, msg.RecipientID)
			if err != nil {
				return fmt.Errorf("count unread: %w", err)
			}
			ok, err := convs.ApplyMessage(ctx, conv.ID, conv.Status, msg, unread)
			if err != nil {
				return fmt.Errorf("apply message: %w", err)
			}
			if !ok {
				return fmt.Errorf("conversation %s left %s: %w", conv.ID, conv.Status, svcErr.ErrConcurrentWriteLost)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if l.projections != nil {
		if _, err := l.projections.ProjectMessage(ctx, msg.ID); err != nil {
			l.logger.Warn("message projection deferred", "message", msg.ID, "err", err)
		}
	}
	l.appCtx.Notifier.Notify(ctx, notify.Event{
		Kind:           notify.KindMessageReceived,
		UserID:         msg.RecipientID,
		OtherUserID:    msg.SenderID,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		At:             msg.SentAt,
	})
	return msg, nil
}

// MarkRead marks every message addressed to readerID as read and returns how many
// were marked.
func (l *Lifecycle) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	var (
		marked  int64
		matchID string
	)
	err := repository.InTx(ctx, l.appCtx.DB, func(tx *gorm.DB) error {
		conv, err := l.conversations.WithTx(tx).FindForUpdate(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		if err := checkParticipant(conv, conversationID, readerID); err != nil {
			return err
		}
		matchID = conv.MatchID

		if marked, err = l.messages.WithTx(tx).MarkRead(ctx, conv.ID, readerID, l.appCtx.Now()); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		return l.conversations.WithTx(tx).ClearUnread(ctx, conv.ID, readerID)
	})
	if err != nil {
		return 0, err
	}

	if l.projections != nil {
		if err := l.projections.ProjectRead(ctx, readerID, matchID); err != nil {
			l.logger.Warn("read projection failed", "conversation", conversationID, "user", readerID, "err", err)
		}
	}
	return marked, nil
}

// ListMessages pages through the conversation, newest first.
func (l *Lifecycle) ListMessages(
	ctx context.Context,
	conversationID, userID string,
	token *string,
	limit int,
) ([]db.Message, *string, error) {
	if _, err := l.Get(ctx, conversationID, userID); err != nil {
		return nil, nil, err
	}
	msgs, next, err := l.messages.ListByConversation(ctx, conversationID, token, pagination.ClampLimit(limit))
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, next, nil
}

// AutoArchive archives ACTIVE conversations idle for longer than
// MATCHING_AUTO_ARCHIVE_AFTER and returns how many it archived.
func (l *Lifecycle) AutoArchive(ctx context.Context) (int64, error) {
	now := l.appCtx.Now()
	cutoff := now.Add(-l.appCtx.Matching().AutoArchiveAfter)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := l.conversations.ListStaleActive(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("list stale conversations: %w", err)
		}
		n, err := l.conversations.ArchiveStale(ctx, ids, cutoff, now)
		if err != nil {
			return total, fmt.Errorf("archive stale conversations: %w", err)
		}
		total += n
		if len(ids) < archiveBatchSize {
			break
		}
	}
	if total > 0 {
		l.logger.Info("auto-archived conversations", "count", total, "cutoff", cutoff)
	}
	return total, nil
}

func checkParticipant(conv *db.Conversation, conversationID, userID string) error {
	if conv == nil {
		return fmt.Errorf("conversation %s: %w", conversationID, svcErr.ErrAggregateNotFound)
	}
	if !conv.HasParticipant(userID) {
		return fmt.Errorf("user %s in conversation %s: %w", userID, conversationID, svcErr.ErrNotParticipant)
	}
	return nil
}
