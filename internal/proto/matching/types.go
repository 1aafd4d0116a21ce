// Package matchingpb holds the wire types and service description of
// matching.v1.MatchingService. Messages travel as JSON (see Codec); timestamps
// are unix milliseconds, zero meaning unset.
package matchingpb

type SubmitActionRequest struct {
	ActorUserId  string `json:"actor_user_id"`
	TargetUserId string `json:"target_user_id"`
	// Outcome is LIKE, PASS or DISLIKE.
	Outcome    string `json:"outcome"`
	MatchSetId string `json:"match_set_id,omitempty"`
}

func (r *SubmitActionRequest) GetActorUserId() string {
	if r == nil {
		return ""
	}
	return r.ActorUserId
}

func (r *SubmitActionRequest) GetTargetUserId() string {
	if r == nil {
		return ""
	}
	return r.TargetUserId
}

type SubmitActionResponse struct {
	// Stale is true when a newer action of the pair was already stored.
	Stale bool `json:"stale"`
	// CountedInMatchSet is true when the action advanced the match set.
	CountedInMatchSet bool   `json:"counted_in_match_set"`
	Matched           bool   `json:"matched"`
	NewMatch          bool   `json:"new_match"`
	MatchId           string `json:"match_id,omitempty"`
	ConversationId    string `json:"conversation_id,omitempty"`
}

// UserRequest addresses a single user.
type UserRequest struct {
	UserId string `json:"user_id"`
}

func (r *UserRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

type MatchEntry struct {
	MatchId         string `json:"match_id"`
	OtherUserId     string `json:"other_user_id"`
	ConversationId  string `json:"conversation_id"`
	Status          string `json:"status"`
	MatchedAt       int64  `json:"matched_at"`
	UnreadCount     int64  `json:"unread_count"`
	HasMessaged     bool   `json:"has_messaged"`
	Seen            bool   `json:"seen"`
	LastMessageAt   int64  `json:"last_message_at,omitempty"`
	LastMessageText string `json:"last_message_text,omitempty"`
	MatchSetId      string `json:"match_set_id,omitempty"`
}

type UserMatchesResponse struct {
	UserId               string        `json:"user_id"`
	TotalMatches         int64         `json:"total_matches"`
	ActiveMatches        int64         `json:"active_matches"`
	NewMatches           int64         `json:"new_matches"`
	ConversationsStarted int64         `json:"conversations_started"`
	LastMatchAt          int64         `json:"last_match_at,omitempty"`
	Matches              []*MatchEntry `json:"matches"`
}

type ActivityDay struct {
	Day              string `json:"day"`
	Actions          int64  `json:"actions"`
	Likes            int64  `json:"likes"`
	Passes           int64  `json:"passes"`
	Dislikes         int64  `json:"dislikes"`
	Matches          int64  `json:"matches"`
	ViewTime         int64  `json:"view_time"`
	BatchesCompleted int64  `json:"batches_completed"`
}

type UserActivityResponse struct {
	UserId           string         `json:"user_id"`
	TotalActions     int64          `json:"total_actions"`
	TotalLikes       int64          `json:"total_likes"`
	TotalPasses      int64          `json:"total_passes"`
	TotalDislikes    int64          `json:"total_dislikes"`
	TotalMatches     int64          `json:"total_matches"`
	TotalViewTime    int64          `json:"total_view_time"`
	MatchSuccessRate float64        `json:"match_success_rate"`
	AvgActionsPerDay float64        `json:"avg_actions_per_day"`
	ActiveDays       int64          `json:"active_days"`
	CurrentStreak    int64          `json:"current_streak"`
	LongestStreak    int64          `json:"longest_streak"`
	LastActionDay    string         `json:"last_action_day,omitempty"`
	Days             []*ActivityDay `json:"days"`
}

type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	SenderUserId   string `json:"sender_user_id"`
	Content        string `json:"content"`
}

type Message struct {
	Id             string `json:"id"`
	ConversationId string `json:"conversation_id"`
	SenderId       string `json:"sender_id"`
	RecipientId    string `json:"recipient_id"`
	Content        string `json:"content"`
	SentAt         int64  `json:"sent_at"`
	ReadAt         int64  `json:"read_at,omitempty"`
}

// ConversationRequest is a user acting on one conversation.
type ConversationRequest struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
}

type Conversation struct {
	Id            string `json:"id"`
	MatchId       string `json:"match_id"`
	Status        string `json:"status"`
	Archived      bool   `json:"archived"`
	UnreadCount   int64  `json:"unread_count"`
	LastMessage   string `json:"last_message,omitempty"`
	LastSenderId  string `json:"last_sender_id,omitempty"`
	LastMessageAt int64  `json:"last_message_at,omitempty"`
	UpdatedAt     int64  `json:"updated_at"`
}

type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

type ListMessagesRequest struct {
	ConversationId  string  `json:"conversation_id"`
	UserId          string  `json:"user_id"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int32   `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Messages            []*Message `json:"messages"`
	NextPaginationToken *string    `json:"next_pagination_token,omitempty"`
}

type ListConversationsRequest struct {
	UserId          string  `json:"user_id"`
	IncludeArchived bool    `json:"include_archived,omitempty"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int32   `json:"limit,omitempty"`
}

type ListConversationsResponse struct {
	Conversations       []*Conversation `json:"conversations"`
	NextPaginationToken *string         `json:"next_pagination_token,omitempty"`
}

type Candidate struct {
	UserId string  `json:"user_id"`
	Score  float64 `json:"score,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

type CreateMatchSetRequest struct {
	UserId           string       `json:"user_id"`
	Date             string       `json:"date"`
	Candidates       []*Candidate `json:"candidates"`
	AlgorithmVersion string       `json:"algorithm_version,omitempty"`
}

type GetMatchSetRequest struct {
	MatchSetId string `json:"match_set_id"`
}

type RecordViewTimeRequest struct {
	MatchSetId string `json:"match_set_id"`
	Seconds    int64  `json:"seconds"`
}

type MatchSet struct {
	Id               string       `json:"id"`
	UserId           string       `json:"user_id"`
	Date             string       `json:"date"`
	Status           string       `json:"status"`
	Candidates       []*Candidate `json:"candidates"`
	TotalCandidates  int64        `json:"total_candidates"`
	ActionsSubmitted int64        `json:"actions_submitted"`
	MatchesFound     int64        `json:"matches_found"`
	ViewTime         int64        `json:"view_time"`
	AlgorithmVersion string       `json:"algorithm_version,omitempty"`
	CompletedAt      int64        `json:"completed_at,omitempty"`
}

type ListLikedYouRequest struct {
	RecipientUserId string `json:"recipient_user_id"`
	// NewOnly drops likers the recipient already liked back.
	NewOnly         bool    `json:"new_only,omitempty"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int32   `json:"limit,omitempty"`
}

type ListLikedYouResponse_Liker struct {
	ActorId       string `json:"actor_id"`
	UnixTimestamp uint64 `json:"unix_timestamp"`
}

type ListLikedYouResponse struct {
	Likers              []*ListLikedYouResponse_Liker `json:"likers"`
	NextPaginationToken *string                       `json:"next_pagination_token,omitempty"`
}

func (r *ListLikedYouResponse) GetNextPaginationToken() string {
	if r == nil || r.NextPaginationToken == nil {
		return ""
	}
	return *r.NextPaginationToken
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type BlockUserRequest struct {
	BlockerUserId string `json:"blocker_user_id"`
	BlockedUserId string `json:"blocked_user_id"`
	Reason        string `json:"reason,omitempty"`
}

type UnblockUserRequest struct {
	BlockerUserId string `json:"blocker_user_id"`
	BlockedUserId string `json:"blocked_user_id"`
}

type ReportMatchRequest struct {
	ConversationId string `json:"conversation_id"`
	ReporterUserId string `json:"reporter_user_id"`
	Reason         string `json:"reason,omitempty"`
}

type ReconcileUserResponse struct {
	UserId        string `json:"user_id"`
	ActivityDrift bool   `json:"activity_drift"`
	MatchesDrift  bool   `json:"matches_drift"`
	ActionsMarked int64  `json:"actions_marked"`
}
