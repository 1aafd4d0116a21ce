package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// ConversationRepository reads and writes conversation rows. Status changes are
// compare-and-set on the current status.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

func (r *ConversationRepository) WithTx(tx *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) Create(ctx context.Context, c *db.Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// Find returns nil, nil when the conversation does not exist.
func (r *ConversationRepository) Find(ctx context.Context, id string) (*db.Conversation, error) {
	return takeOrNil[db.Conversation](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *ConversationRepository) FindForUpdate(ctx context.Context, id string) (*db.Conversation, error) {
	return takeOrNil[db.Conversation](forUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
}

// Transition moves the conversation from -> to. Returns false when the status
// was no longer from.
func (r *ConversationRepository) Transition(
	ctx context.Context,
	id string,
	from, to db.ConversationStatus,
	archived bool,
	at time.Time,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"archived":   archived,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ApplyMessage records a delivered message on the conversation. A message into an
// ARCHIVED conversation brings it back to ACTIVE.
func (r *ConversationRepository) ApplyMessage(
	ctx context.Context,
	id string,
	from db.ConversationStatus,
	msg *db.Message,
	unread int64,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":          db.ConversationActive,
			"archived":        false,
			"unread_count":    unread,
			"last_message":    truncate(msg.Content, 1000),
			"last_sender_id":  msg.SenderID,
			"last_message_at": msg.SentAt,
			"updated_at":      msg.SentAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearUnread zeroes the unread counter when reader is the recipient of the last
// message. Reading is not activity, so updated_at is left alone.
func (r *ConversationRepository) ClearUnread(ctx context.Context, id, readerID string) error {
	return r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("id = ? AND last_sender_id <> ?", id, readerID).
		UpdateColumn("unread_count", 0).Error
}

// ListStaleActive returns ids of ACTIVE, non-archived conversations idle since cutoff.
func (r *ConversationRepository) ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("status = ? AND archived = ? AND updated_at < ?", db.ConversationActive, false, cutoff).
		Order("updated_at").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ArchiveStale archives the given conversations, re-checking the sweep predicate so
// a conversation that received a message meanwhile is skipped.
func (r *ConversationRepository) ArchiveStale(ctx context.Context, ids []string, cutoff, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("id IN ? AND status = ? AND archived = ? AND updated_at < ?", ids, db.ConversationActive, false, cutoff).
		Updates(map[string]any{
			"status":     db.ConversationArchived,
			"archived":   true,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

// ListForUser returns the user's conversations, most recently active first.
// UNMATCHED conversations are never listed; ARCHIVED ones only when asked.
func (r *ConversationRepository) ListForUser(
	ctx context.Context,
	userID string,
	includeArchived bool,
	paginationToken *string,
	limit int,
) ([]db.Conversation, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	statuses := []db.ConversationStatus{db.ConversationActive}
	if includeArchived {
		statuses = append(statuses, db.ConversationArchived)
	}

	query := r.db.WithContext(ctx).
		Where("(participant_a = ? OR participant_b = ?) AND status IN ?", userID, userID, statuses).
		Order("updated_at DESC, id DESC").
		Limit(limit + 1)
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.UnixMilli).UTC()
		query = query.Where("(updated_at < ? OR (updated_at = ? AND id < ?))", ts, ts, cursor.Key)
	}

	var convs []db.Conversation
	if err := query.Find(&convs).Error; err != nil {
		return nil, nil, err
	}
	convs, next := pagination.Page(convs, limit, func(c db.Conversation) pagination.Cursor {
		return pagination.Cursor{Key: c.ID, UnixMilli: c.UpdatedAt.UnixMilli()}
	})
	return convs, next, nil
}

// MessageRepository reads and writes messages.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MessageRepository) FindForUpdate(ctx context.Context, id string) (*db.Message, error) {
	return takeOrNil[db.Message](forUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
}

// CountUnread counts messages addressed to recipientID that are still unread.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID, recipientID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conversationID, recipientID).
		Count(&n).Error
	return n, err
}

// MarkRead stamps read_at on every unread message addressed to recipientID.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, recipientID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conversationID, recipientID).
		UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// MarkProjected flips the projected flag once. Returns false if it was already set.
func (r *MessageRepository) MarkProjected(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id = ? AND projected = ?", id, false).
		UpdateColumn("projected", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByConversation pages through a conversation, newest first.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC, id DESC").
		Limit(limit + 1)
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.UnixMilli).UTC()
		query = query.Where("(sent_at < ? OR (sent_at = ? AND id < ?))", ts, ts, cursor.Key)
	}

	var msgs []db.Message
	if err := query.Find(&msgs).Error; err != nil {
		return nil, nil, err
	}
	msgs, next := pagination.Page(msgs, limit, func(m db.Message) pagination.Cursor {
		return pagination.Cursor{Key: m.ID, UnixMilli: m.SentAt.UnixMilli()}
	})
	return msgs, next, nil
}

// ListUnprojected returns messages the projector has not seen, created before olderThan.
func (r *MessageRepository) ListUnprojected(ctx context.Context, olderThan time.Time, limit int) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("projected = ? AND created_at < ?", false, olderThan).
		Order("created_at").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// ListProjectedForUser returns projected messages the user sent or received.
func (r *MessageRepository) ListProjectedForUser(ctx context.Context, userID string) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? OR recipient_id = ?) AND projected = ?", userID, userID, true).
		Order("sent_at, id").
		Find(&msgs).Error
	return msgs, err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
