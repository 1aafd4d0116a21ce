package db

import (
	"time"

	"gorm.io/datatypes"
)

// DayLayout is the key format of daily summaries and match sets.
const DayLayout = "2006-01-02"

// DayOf returns the UTC calendar day of t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

type Outcome string

const (
	OutcomeLike    Outcome = "LIKE"
	OutcomePass    Outcome = "PASS"
	OutcomeDislike Outcome = "DISLIKE"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeLike, OutcomePass, OutcomeDislike:
		return true
	}
	return false
}

type MatchStatus string

const (
	MatchActive    MatchStatus = "ACTIVE"
	MatchUnmatched MatchStatus = "UNMATCHED"
)

type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "ACTIVE"
	ConversationArchived  ConversationStatus = "ARCHIVED"
	ConversationUnmatched ConversationStatus = "UNMATCHED"
)

type MatchSetStatus string

const (
	MatchSetPending   MatchSetStatus = "PENDING"
	MatchSetActive    MatchSetStatus = "ACTIVE"
	MatchSetCompleted MatchSetStatus = "COMPLETED"
)

type EventKind string

const (
	EventMatchCreated EventKind = "match_created"
	EventMatchEnded   EventKind = "match_ended"
)

const (
	EventPending = "pending"
	EventDone    = "done"
)

// Action is an actor's current outcome on a target.
//
// Composite PK: (ActorID, TargetID)
//   - One row per pair; a later decision supersedes the earlier one and bumps Revision.
//
// Indexes:
//   - idx_actions_target_outcome_acted(target_id, outcome, acted_at DESC)
//     Serves reciprocal lookups and "who liked me" pages.
//   - idx_actions_processed_updated(processed, updated_at)
//     Lets the dispatcher find actions whose projection never ran.
//
// ProjectedOutcome/ProjectedDay record what the aggregates currently reflect, so a
// supersession can move counters instead of double counting.
type Action struct {
	ActorID          string    `gorm:"primaryKey;size:64"`
	TargetID         string    `gorm:"primaryKey;size:64;index:idx_actions_target_outcome_acted,priority:1"`
	Outcome          Outcome   `gorm:"size:16;not null;index:idx_actions_target_outcome_acted,priority:2"`
	BatchID          string    `gorm:"size:64"`
	ActedAt          time.Time `gorm:"not null;index:idx_actions_target_outcome_acted,priority:3,sort:desc"`
	Revision         int64     `gorm:"not null"`
	Processed        bool      `gorm:"not null;index:idx_actions_processed_updated,priority:1"`
	ProjectedOutcome Outcome   `gorm:"size:16"`
	ProjectedDay     string    `gorm:"size:10"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"index:idx_actions_processed_updated,priority:2"`
}

// Match is the confirmed mutual like of a pair. ID comes from pairkey.MatchID,
// UserAID < UserBID. Ended matches keep their row.
type Match struct {
	ID             string      `gorm:"primaryKey;size:64"`
	UserAID        string      `gorm:"size:64;not null;index"`
	UserBID        string      `gorm:"size:64;not null;index"`
	ConversationID string      `gorm:"size:64;not null;uniqueIndex"`
	Status         MatchStatus `gorm:"size:16;not null"`
	MatchSetID     string      `gorm:"size:64"`
	MatchedAt      time.Time   `gorm:"not null"`
	LastActivityAt time.Time   `gorm:"not null"`
	EndedBy        string      `gorm:"size:64"`
	EndReason      string      `gorm:"size:255"`
	EndedAt        *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time
}

func (m *Match) Other(userID string) string {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

func (m *Match) HasParticipant(userID string) bool {
	return m.UserAID == userID || m.UserBID == userID
}

// Conversation is created in the same transaction as its Match.
//
// UnreadCount counts unread messages addressed to the recipient of the last message.
type Conversation struct {
	ID            string             `gorm:"primaryKey;size:64"`
	MatchID       string             `gorm:"size:64;not null;uniqueIndex"`
	ParticipantA  string             `gorm:"size:64;not null;index"`
	ParticipantB  string             `gorm:"size:64;not null;index"`
	Status        ConversationStatus `gorm:"size:16;not null;index:idx_conversations_status_updated,priority:1"`
	Archived      bool               `gorm:"not null"`
	UnreadCount   int64              `gorm:"not null"`
	LastMessage   string             `gorm:"size:1000"`
	LastSenderID  string             `gorm:"size:64"`
	LastMessageAt *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"index:idx_conversations_status_updated,priority:2"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

func (c *Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message belongs to a conversation. Projected flips once the aggregates saw it.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ConversationID string    `gorm:"size:64;not null;index:idx_messages_conversation_sent,priority:1"`
	SenderID       string    `gorm:"size:64;not null"`
	RecipientID    string    `gorm:"size:64;not null;index"`
	Content        string    `gorm:"type:text;not null"`
	SentAt         time.Time `gorm:"not null;index:idx_messages_conversation_sent,priority:2"`
	ReadAt         *time.Time
	Projected      bool      `gorm:"not null;index:idx_messages_projected_sent,priority:1"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_messages_projected_sent,priority:2"`
}

// UserMatches is the per-user match list aggregate. Version guards every write.
type UserMatches struct {
	UserID               string `gorm:"primaryKey;size:64"`
	TotalMatches         int64  `gorm:"not null"`
	ActiveMatches        int64  `gorm:"not null"`
	NewMatches           int64  `gorm:"not null"`
	ConversationsStarted int64  `gorm:"not null"`
	LastMatchAt          *time.Time
	Version              int64 `gorm:"not null"`
	UpdatedAt            time.Time

	Entries []UserMatchEntry `gorm:"-"`
}

// UserMatchEntry is one match in a user's list. The (user_id, match_id) PK is the
// set-union key that keeps projection idempotent.
type UserMatchEntry struct {
	UserID          string      `gorm:"primaryKey;size:64"`
	MatchID         string      `gorm:"primaryKey;size:64"`
	OtherUserID     string      `gorm:"size:64;not null"`
	ConversationID  string      `gorm:"size:64;not null"`
	MatchedAt       time.Time   `gorm:"not null;index"`
	Status          MatchStatus `gorm:"size:16;not null"`
	UnreadCount     int64       `gorm:"not null"`
	HasMessaged     bool        `gorm:"not null"`
	Seen            bool        `gorm:"not null"`
	LastMessageAt   *time.Time
	LastMessageText string `gorm:"size:1000"`
	MatchSetID      string `gorm:"size:64"`
	UpdatedAt       time.Time
}

// UserActivity is the per-user activity aggregate. Everything here can be
// recomputed from actions, matches and match sets.
type UserActivity struct {
	UserID           string  `gorm:"primaryKey;size:64"`
	TotalActions     int64   `gorm:"not null"`
	TotalLikes       int64   `gorm:"not null"`
	TotalPasses      int64   `gorm:"not null"`
	TotalDislikes    int64   `gorm:"not null"`
	TotalMatches     int64   `gorm:"not null"`
	TotalViewTime    int64   `gorm:"not null"`
	MatchSuccessRate float64 `gorm:"not null"`
	AvgActionsPerDay float64 `gorm:"not null"`
	ActiveDays       int64   `gorm:"not null"`
	CurrentStreak    int64   `gorm:"not null"`
	LongestStreak    int64   `gorm:"not null"`
	LastActionDay    string  `gorm:"size:10"`
	Version          int64   `gorm:"not null"`
	UpdatedAt        time.Time

	Days []UserActivityDay `gorm:"-"`
}

// UserActivityDay is one dailySummary entry.
type UserActivityDay struct {
	UserID           string `gorm:"primaryKey;size:64"`
	Day              string `gorm:"primaryKey;size:10"`
	Actions          int64  `gorm:"not null"`
	Likes            int64  `gorm:"not null"`
	Passes           int64  `gorm:"not null"`
	Dislikes         int64  `gorm:"not null"`
	Matches          int64  `gorm:"not null"`
	ViewTime         int64  `gorm:"not null"`
	BatchesCompleted int64  `gorm:"not null"`
}

// Candidate is one entry of a scorer-produced batch.
type Candidate struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// MatchSet is a user's daily discovery batch.
//
// Invariants: ActionsSubmitted <= TotalCandidates, MatchesFound <= ActionsSubmitted.
type MatchSet struct {
	ID               string                          `gorm:"primaryKey;size:36"`
	UserID           string                          `gorm:"size:64;not null;uniqueIndex:idx_match_sets_user_date,priority:1"`
	Date             string                          `gorm:"size:10;not null;uniqueIndex:idx_match_sets_user_date,priority:2"`
	Candidates       datatypes.JSONType[[]Candidate] `gorm:"not null"`
	TotalCandidates  int64                           `gorm:"not null"`
	Status           MatchSetStatus                  `gorm:"size:16;not null"`
	ActionsSubmitted int64                           `gorm:"not null"`
	MatchesFound     int64                           `gorm:"not null"`
	ViewTime         int64                           `gorm:"not null"`
	AlgorithmVersion string                          `gorm:"size:32"`
	CompletedAt      *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time
}

func (s *MatchSet) HasCandidate(userID string) bool {
	for _, c := range s.Candidates.Data() {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// MatchSetAction records that a target was counted against a batch, so the same
// candidate never counts twice.
type MatchSetAction struct {
	MatchSetID string    `gorm:"primaryKey;size:36"`
	TargetID   string    `gorm:"primaryKey;size:64"`
	CountedAt  time.Time `gorm:"not null"`
}

// Block is the local rendering of the safety collaborator.
type Block struct {
	BlockerID string    `gorm:"primaryKey;size:64"`
	BlockedID string    `gorm:"primaryKey;size:64;index"`
	Reason    string    `gorm:"size:255"`
	Active    bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time
}

// MatchEvent is the transactional outbox row written next to a match change.
type MatchEvent struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	Kind          EventKind `gorm:"size:32;not null;uniqueIndex:idx_match_events_kind_match,priority:1"`
	MatchID       string    `gorm:"size:64;not null;uniqueIndex:idx_match_events_kind_match,priority:2"`
	Status        string    `gorm:"size:16;not null;index:idx_match_events_status_next,priority:1"`
	Attempts      int       `gorm:"not null"`
	NextAttemptAt time.Time `gorm:"not null;index:idx_match_events_status_next,priority:2"`
	LastError     string    `gorm:"size:1000"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Action{},
		&Match{},
		&Conversation{},
		&Message{},
		&UserMatches{},
		&UserMatchEntry{},
		&UserActivity{},
		&UserActivityDay{},
		&MatchSet{},
		&MatchSetAction{},
		&Block{},
		&MatchEvent{},
	}
}
