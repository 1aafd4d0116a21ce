package matching

import (
	"context"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	pb "github.com/oggyb/muzz-matching/internal/proto/matching"
)

// Service implements the MatchingService gRPC API on top of Core.
// Each method validates the request, calls the owning component and maps
// domain errors to gRPC statuses with svcErr.Map.
type Service struct {
	appCtx *app.AppContext
	core   *Core

	pb.UnimplementedMatchingServiceServer
}

func NewService(appCtx *app.AppContext, core *Core) *Service {
	return &Service{appCtx: appCtx, core: core}
}

// SubmitAction records a LIKE, PASS or DISLIKE and reports whether it produced a match.
//
// Behavior:
//   - Outcome is case-insensitive.
//   - A stale action (older than the stored one) is acknowledged but changes nothing.
//   - matched is true whenever the pair has an ACTIVE match afterwards; new_match only
//     for the request that created it.
//
// Example:
//
//	svc.SubmitAction(ctx, &pb.SubmitActionRequest{ActorUserId: "u1", TargetUserId: "u2", Outcome: "LIKE"})
func (s *Service) SubmitAction(ctx context.Context, req *pb.SubmitActionRequest) (*pb.SubmitActionResponse, error) {
	s.appCtx.Logger.Debug("SubmitAction called",
		"actor", req.GetActorUserId(),
		"target", req.GetTargetUserId(),
		"outcome", req.Outcome,
	)

	outcome := db.Outcome(strings.ToUpper(strings.TrimSpace(req.Outcome)))
	res, err := s.core.SubmitAction(ctx, req.GetActorUserId(), req.GetTargetUserId(), outcome, req.MatchSetId)
	if err != nil {
		s.appCtx.Logger.Debug("SubmitAction failed", "err", err)
		return nil, svcErr.Map(err)
	}

	resp := &pb.SubmitActionResponse{
		Stale:             res.Recorded.Stale,
		CountedInMatchSet: res.Recorded.Counted,
		Matched:           res.Detection.Matched,
		NewMatch:          res.Detection.Created,
	}
	if m := res.Detection.Match; m != nil && res.Detection.Matched {
		resp.MatchId = m.ID
		resp.ConversationId = m.ConversationID
	}
	return resp, nil
}

// GetUserMatches returns the user's match list aggregate. A user with no matches
// gets zero counters and an empty list.
func (s *Service) GetUserMatches(ctx context.Context, req *pb.UserRequest) (*pb.UserMatchesResponse, error) {
	if strings.TrimSpace(req.GetUserId()) == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	um, err := s.core.Projector.Matches(ctx, req.GetUserId())
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toUserMatches(um), nil
}

// GetUserActivity returns the user's activity aggregate with its daily summary.
func (s *Service) GetUserActivity(ctx context.Context, req *pb.UserRequest) (*pb.UserActivityResponse, error) {
	if strings.TrimSpace(req.GetUserId()) == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	a, err := s.core.Projector.Activity(ctx, req.GetUserId())
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toUserActivity(a), nil
}

func (s *Service) SendMessage(ctx context.Context, req *pb.SendMessageRequest) (*pb.Message, error) {
	s.appCtx.Logger.Debug("SendMessage called", "conversation", req.ConversationId, "sender", req.SenderUserId)

	msg, err := s.core.Conversations.SendMessage(ctx, req.ConversationId, req.SenderUserId, req.Content)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toMessage(msg), nil
}

// Unmatch ends the match for both users. It cannot be undone.
func (s *Service) Unmatch(ctx context.Context, req *pb.ConversationRequest) (*pb.Conversation, error) {
	s.appCtx.Logger.Debug("Unmatch called", "conversation", req.ConversationId, "user", req.UserId)

	conv, err := s.core.Conversations.Unmatch(ctx, req.ConversationId, req.UserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toConversation(conv), nil
}

func (s *Service) MarkRead(ctx context.Context, req *pb.ConversationRequest) (*pb.MarkReadResponse, error) {
	n, err := s.core.Conversations.MarkRead(ctx, req.ConversationId, req.UserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &pb.MarkReadResponse{Marked: n}, nil
}

func (s *Service) ArchiveConversation(ctx context.Context, req *pb.ConversationRequest) (*pb.Conversation, error) {
	conv, err := s.core.Conversations.Archive(ctx, req.ConversationId, req.UserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toConversation(conv), nil
}

func (s *Service) UnarchiveConversation(ctx context.Context, req *pb.ConversationRequest) (*pb.Conversation, error) {
	conv, err := s.core.Conversations.Unarchive(ctx, req.ConversationId, req.UserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toConversation(conv), nil
}

// ListConversations pages through the user's conversations, most recently
// updated first. Archived ones are included only on request.
func (s *Service) ListConversations(ctx context.Context, req *pb.ListConversationsRequest) (*pb.ListConversationsResponse, error) {
	convs, next, err := s.core.Conversations.ListForUser(ctx, req.UserId, req.IncludeArchived, req.PaginationToken, int(req.Limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &pb.ListConversationsResponse{NextPaginationToken: next}
	for i := range convs {
		resp.Conversations = append(resp.Conversations, toConversation(&convs[i]))
	}
	return resp, nil
}

// ListMessages pages through a conversation, newest first.
func (s *Service) ListMessages(ctx context.Context, req *pb.ListMessagesRequest) (*pb.ListMessagesResponse, error) {
	msgs, next, err := s.core.Conversations.ListMessages(ctx, req.ConversationId, req.UserId, req.PaginationToken, int(req.Limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &pb.ListMessagesResponse{NextPaginationToken: next}
	for i := range msgs {
		resp.Messages = append(resp.Messages, toMessage(&msgs[i]))
	}
	return resp, nil
}

// CreateMatchSet stores the scorer's daily batch for a user. Calling it again for
// the same user and date returns the stored batch.
func (s *Service) CreateMatchSet(ctx context.Context, req *pb.CreateMatchSetRequest) (*pb.MatchSet, error) {
	s.appCtx.Logger.Debug("CreateMatchSet called", "user", req.UserId, "date", req.Date, "candidates", len(req.Candidates))

	candidates := make([]db.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		if c == nil {
			continue
		}
		candidates = append(candidates, db.Candidate{UserID: c.UserId, Score: c.Score, Reason: c.Reason})
	}
	set, err := s.core.Tracker.CreateBatch(ctx, req.UserId, req.Date, candidates, req.AlgorithmVersion)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toMatchSet(set), nil
}

func (s *Service) GetMatchSet(ctx context.Context, req *pb.GetMatchSetRequest) (*pb.MatchSet, error) {
	set, err := s.core.Tracker.Get(ctx, req.MatchSetId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toMatchSet(set), nil
}

// RecordViewTime adds seconds of viewing to the batch and returns it.
func (s *Service) RecordViewTime(ctx context.Context, req *pb.RecordViewTimeRequest) (*pb.MatchSet, error) {
	if err := s.core.Tracker.RecordViewTime(ctx, req.MatchSetId, req.Seconds); err != nil {
		return nil, svcErr.Map(err)
	}
	return s.GetMatchSet(ctx, &pb.GetMatchSetRequest{MatchSetId: req.MatchSetId})
}

// ListLikedYou returns the users whose current action on the recipient is LIKE.
//
// Behavior:
//   - Excludes users the recipient passed or disliked.
//   - new_only also excludes users the recipient already liked back.
//   - Supports cursor-based pagination with pagination_token.
//   - Returns actor_id + timestamp pairs.
//
// Example:
//
//	svc.ListLikedYou(ctx, &pb.ListLikedYouRequest{RecipientUserId: "u42"})
func (s *Service) ListLikedYou(ctx context.Context, req *pb.ListLikedYouRequest) (*pb.ListLikedYouResponse, error) {
	s.appCtx.Logger.Debug("ListLikedYou called", "recipient", req.RecipientUserId, "new_only", req.NewOnly)

	likers, next, err := s.core.Ledger.ListLikers(ctx, req.RecipientUserId, req.NewOnly, req.PaginationToken, int(req.Limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &pb.ListLikedYouResponse{NextPaginationToken: next}
	for _, a := range likers {
		resp.Likers = append(resp.Likers, &pb.ListLikedYouResponse_Liker{
			ActorId:       a.ActorID,
			UnixTimestamp: uint64(a.ActedAt.UnixMilli()),
		})
	}

	s.appCtx.Logger.Debug("ListLikedYou result", "liker_count", len(resp.Likers), "next_token", resp.GetNextPaginationToken())
	return resp, nil
}

// CountLikedYou returns how many users currently like the recipient. Served from
// Redis when cached.
func (s *Service) CountLikedYou(ctx context.Context, req *pb.UserRequest) (*pb.CountResponse, error) {
	n, err := s.core.Ledger.CountLikers(ctx, req.GetUserId())
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &pb.CountResponse{Count: n}, nil
}

// CountUnread returns the user's unread badge across all matches.
func (s *Service) CountUnread(ctx context.Context, req *pb.UserRequest) (*pb.CountResponse, error) {
	if strings.TrimSpace(req.GetUserId()) == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	n, err := s.core.Projector.UnreadTotal(ctx, req.GetUserId())
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &pb.CountResponse{Count: n}, nil
}

// BlockUser blocks in one direction and ends any conversation between the pair.
func (s *Service) BlockUser(ctx context.Context, req *pb.BlockUserRequest) (*emptypb.Empty, error) {
	s.appCtx.Logger.Debug("BlockUser called", "blocker", req.BlockerUserId, "blocked", req.BlockedUserId)

	if err := s.core.Block(ctx, req.BlockerUserId, req.BlockedUserId, req.Reason); err != nil {
		return nil, svcErr.Map(err)
	}
	return &emptypb.Empty{}, nil
}

// UnblockUser lifts a block in one direction.
func (s *Service) UnblockUser(ctx context.Context, req *pb.UnblockUserRequest) (*emptypb.Empty, error) {
	s.appCtx.Logger.Debug("UnblockUser called", "blocker", req.BlockerUserId, "blocked", req.BlockedUserId)

	if err := s.core.Unblock(ctx, req.BlockerUserId, req.BlockedUserId); err != nil {
		return nil, svcErr.Map(err)
	}
	return &emptypb.Empty{}, nil
}

// ReportMatch ends the match on behalf of the reporter, keeping the reason.
func (s *Service) ReportMatch(ctx context.Context, req *pb.ReportMatchRequest) (*pb.Conversation, error) {
	conv, err := s.core.Conversations.Report(ctx, req.ConversationId, req.ReporterUserId, req.Reason)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return toConversation(conv), nil
}

// ReconcileUser recomputes the user's aggregates from the authoritative records.
func (s *Service) ReconcileUser(ctx context.Context, req *pb.UserRequest) (*pb.ReconcileUserResponse, error) {
	if strings.TrimSpace(req.GetUserId()) == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	report, err := s.core.Reconciler.ReconcileUser(ctx, req.GetUserId())
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &pb.ReconcileUserResponse{
		UserId:        report.UserID,
		ActivityDrift: report.ActivityDrift,
		MatchesDrift:  report.MatchesDrift,
		ActionsMarked: int64(report.ActionsMarked),
	}, nil
}

// --- conversions ---

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisPtr(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return millis(*t)
}

func toUserMatches(um *db.UserMatches) *pb.UserMatchesResponse {
	resp := &pb.UserMatchesResponse{
		UserId:               um.UserID,
		TotalMatches:         um.TotalMatches,
		ActiveMatches:        um.ActiveMatches,
		NewMatches:           um.NewMatches,
		ConversationsStarted: um.ConversationsStarted,
		LastMatchAt:          millisPtr(um.LastMatchAt),
		Matches:              []*pb.MatchEntry{},
	}
	for _, e := range um.Entries {
		resp.Matches = append(resp.Matches, &pb.MatchEntry{
			MatchId:         e.MatchID,
			OtherUserId:     e.OtherUserID,
			ConversationId:  e.ConversationID,
			Status:          string(e.Status),
			MatchedAt:       millis(e.MatchedAt),
			UnreadCount:     e.UnreadCount,
			HasMessaged:     e.HasMessaged,
			Seen:            e.Seen,
			LastMessageAt:   millisPtr(e.LastMessageAt),
			LastMessageText: e.LastMessageText,
			MatchSetId:      e.MatchSetID,
		})
	}
	return resp
}

func toUserActivity(a *db.UserActivity) *pb.UserActivityResponse {
	resp := &pb.UserActivityResponse{
		UserId:           a.UserID,
		TotalActions:     a.TotalActions,
		TotalLikes:       a.TotalLikes,
		TotalPasses:      a.TotalPasses,
		TotalDislikes:    a.TotalDislikes,
		TotalMatches:     a.TotalMatches,
		TotalViewTime:    a.TotalViewTime,
		MatchSuccessRate: a.MatchSuccessRate,
		AvgActionsPerDay: a.AvgActionsPerDay,
		ActiveDays:       a.ActiveDays,
		CurrentStreak:    a.CurrentStreak,
		LongestStreak:    a.LongestStreak,
		LastActionDay:    a.LastActionDay,
		Days:             []*pb.ActivityDay{},
	}
	for _, d := range a.Days {
		resp.Days = append(resp.Days, &pb.ActivityDay{
			Day:              d.Day,
			Actions:          d.Actions,
			Likes:            d.Likes,
			Passes:           d.Passes,
			Dislikes:         d.Dislikes,
			Matches:          d.Matches,
			ViewTime:         d.ViewTime,
			BatchesCompleted: d.BatchesCompleted,
		})
	}
	return resp
}

func toMessage(m *db.Message) *pb.Message {
	return &pb.Message{
		Id:             m.ID,
		ConversationId: m.ConversationID,
		SenderId:       m.SenderID,
		RecipientId:    m.RecipientID,
		Content:        m.Content,
		SentAt:         millis(m.SentAt),
		ReadAt:         millisPtr(m.ReadAt),
	}
}

func toConversation(c *db.Conversation) *pb.Conversation {
	return &pb.Conversation{
		Id:            c.ID,
		MatchId:       c.MatchID,
		Status:        string(c.Status),
		Archived:      c.Archived,
		UnreadCount:   c.UnreadCount,
		LastMessage:   c.LastMessage,
		LastSenderId:  c.LastSenderID,
		LastMessageAt: millisPtr(c.LastMessageAt),
		UpdatedAt:     millis(c.UpdatedAt),
	}
}

func toMatchSet(s *db.MatchSet) *pb.MatchSet {
	resp := &pb.MatchSet{
		Id:               s.ID,
		UserId:           s.UserID,
		Date:             s.Date,
		Status:           string(s.Status),
		Candidates:       []*pb.Candidate{},
		TotalCandidates:  s.TotalCandidates,
		ActionsSubmitted: s.ActionsSubmitted,
		MatchesFound:     s.MatchesFound,
		ViewTime:         s.ViewTime,
		AlgorithmVersion: s.AlgorithmVersion,
		CompletedAt:      millisPtr(s.CompletedAt),
	}
	for _, c := range s.Candidates.Data() {
		resp.Candidates = append(resp.Candidates, &pb.Candidate{UserId: c.UserID, Score: c.Score, Reason: c.Reason})
	}
	return resp
}
