package matching_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/logger"
	pb "github.com/oggyb/muzz-matching/internal/proto/matching"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/service/matching"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type harness struct {
	appCtx *app.AppContext
	clock  *testutil.Clock
	client *pb.MatchingServiceClient
	conn   *grpc.ClientConn
}

// setup serves the Matching service over an in-memory listener and dials it
// with the JSON codec, the way a real client would.
func setup(t *testing.T) *harness {
	t.Helper()

	clock := testutil.NewClock(t0)
	appCtx := testutil.NewApp(t, clock)
	core := matching.NewCore(appCtx)
	gs := server.NewGRPCServer(&config.Config{}, logger.Nop(), matching.NewRegistrar(appCtx, core))

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- gs.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		require.NoError(t, <-served)
	})
	return &harness{appCtx: appCtx, clock: clock, client: pb.NewMatchingServiceClient(conn), conn: conn}
}

func (h *harness) like(t *testing.T, actor, target, setID string) *pb.SubmitActionResponse {
	t.Helper()
	resp, err := h.client.SubmitAction(context.Background(), &pb.SubmitActionRequest{
		ActorUserId:  actor,
		TargetUserId: target,
		Outcome:      "LIKE",
		MatchSetId:   setID,
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) matchPair(t *testing.T, a, b string) *pb.SubmitActionResponse {
	t.Helper()
	h.like(t, a, b, "")
	resp := h.like(t, b, a, "")
	require.True(t, resp.Matched)
	return resp
}

func code(err error) codes.Code { return status.Code(err) }

func TestScenario_OneSidedLike(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	set, err := h.client.CreateMatchSet(ctx, &pb.CreateMatchSetRequest{
		UserId:     "alice",
		Date:       "2026-03-02",
		Candidates: []*pb.Candidate{{UserId: "bob", Score: 0.9}, {UserId: "carol", Score: 0.4}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", set.Status)

	resp := h.like(t, "alice", "bob", set.Id)
	assert.False(t, resp.Matched)
	assert.False(t, resp.NewMatch)
	assert.True(t, resp.CountedInMatchSet)
	assert.Empty(t, resp.MatchId)

	set, err = h.client.GetMatchSet(ctx, &pb.GetMatchSetRequest{MatchSetId: set.Id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.ActionsSubmitted)
	assert.Equal(t, "ACTIVE", set.Status)

	var matches, convs int64
	require.NoError(t, h.appCtx.DB.Model(&db.Match{}).Count(&matches).Error)
	require.NoError(t, h.appCtx.DB.Model(&db.Conversation{}).Count(&convs).Error)
	assert.Zero(t, matches)
	assert.Zero(t, convs)
}

func TestScenario_MutualLike(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	set, err := h.client.CreateMatchSet(ctx, &pb.CreateMatchSetRequest{
		UserId:     "bob",
		Date:       "2026-03-02",
		Candidates: []*pb.Candidate{{UserId: "alice"}},
	})
	require.NoError(t, err)

	h.like(t, "alice", "bob", "")
	resp := h.like(t, "bob", "alice", set.Id)
	assert.True(t, resp.Matched)
	assert.True(t, resp.NewMatch)
	require.NotEmpty(t, resp.MatchId)
	require.NotEmpty(t, resp.ConversationId)

	for _, user := range []string{"alice", "bob"} {
		um, err := h.client.GetUserMatches(ctx, &pb.UserRequest{UserId: user})
		require.NoError(t, err)
		require.Len(t, um.Matches, 1, user)
		assert.Equal(t, resp.MatchId, um.Matches[0].MatchId)
		assert.Equal(t, "ACTIVE", um.Matches[0].Status)
		assert.Equal(t, int64(1), um.NewMatches)

		act, err := h.client.GetUserActivity(ctx, &pb.UserRequest{UserId: user})
		require.NoError(t, err)
		assert.Equal(t, int64(1), act.TotalMatches, user)
		assert.Equal(t, int64(1), act.TotalLikes, user)
		assert.InDelta(t, 100.0, act.MatchSuccessRate, 1e-9)
	}

	set, err = h.client.GetMatchSet(ctx, &pb.GetMatchSetRequest{MatchSetId: set.Id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.MatchesFound)
	assert.Equal(t, "COMPLETED", set.Status)

	// liking again reports the existing match without creating another
	again := h.like(t, "alice", "bob", "")
	assert.True(t, again.Matched)
	assert.False(t, again.NewMatch)
	assert.Equal(t, resp.MatchId, again.MatchId)
}

func TestScenario_Unmatch(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	m := h.matchPair(t, "alice", "bob")

	conv, err := h.client.Unmatch(ctx, &pb.ConversationRequest{ConversationId: m.ConversationId, UserId: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "UNMATCHED", conv.Status)

	_, err = h.client.SendMessage(ctx, &pb.SendMessageRequest{ConversationId: m.ConversationId, SenderUserId: "bob", Content: "hey"})
	assert.Equal(t, codes.FailedPrecondition, code(err))

	um, err := h.client.GetUserMatches(ctx, &pb.UserRequest{UserId: "bob"})
	require.NoError(t, err)
	require.Len(t, um.Matches, 1)
	assert.Equal(t, "UNMATCHED", um.Matches[0].Status)
	assert.Zero(t, um.ActiveMatches)

	// unmatch is permanent: liking again does not reopen the pair
	resp := h.like(t, "alice", "bob", "")
	assert.False(t, resp.Matched)
}

func TestScenario_UnreadMessages(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	m := h.matchPair(t, "alice", "bob")

	for _, text := range []string{"hi", "how are you", "?"} {
		h.clock.Advance(time.Second)
		msg, err := h.client.SendMessage(ctx, &pb.SendMessageRequest{ConversationId: m.ConversationId, SenderUserId: "alice", Content: text})
		require.NoError(t, err)
		assert.Equal(t, "bob", msg.RecipientId)
	}

	um, err := h.client.GetUserMatches(ctx, &pb.UserRequest{UserId: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), um.Matches[0].UnreadCount)
	assert.Equal(t, "?", um.Matches[0].LastMessageText)

	unread, err := h.client.CountUnread(ctx, &pb.UserRequest{UserId: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread.Count)

	read, err := h.client.MarkRead(ctx, &pb.ConversationRequest{ConversationId: m.ConversationId, UserId: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), read.Marked)

	um, err = h.client.GetUserMatches(ctx, &pb.UserRequest{UserId: "bob"})
	require.NoError(t, err)
	assert.Zero(t, um.Matches[0].UnreadCount)

	unread, err = h.client.CountUnread(ctx, &pb.UserRequest{UserId: "bob"})
	require.NoError(t, err)
	assert.Zero(t, unread.Count)

	page, err := h.client.ListMessages(ctx, &pb.ListMessagesRequest{ConversationId: m.ConversationId, UserId: "bob", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "?", page.Messages[0].Content)
	assert.NotZero(t, page.Messages[0].ReadAt)
	require.NotNil(t, page.NextPaginationToken)
}

func TestConcurrentMutualLikes(t *testing.T) {
	h := setup(t)
	const attempts = 8

	var created atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor, target := "alice", "bob"
			if i%2 == 1 {
				actor, target = target, actor
			}
			resp, err := h.client.SubmitAction(context.Background(), &pb.SubmitActionRequest{
				ActorUserId: actor, TargetUserId: target, Outcome: "like",
			})
			if assert.NoError(t, err) && resp.NewMatch {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), created.Load())
	var matches, convs int64
	require.NoError(t, h.appCtx.DB.Model(&db.Match{}).Count(&matches).Error)
	require.NoError(t, h.appCtx.DB.Model(&db.Conversation{}).Count(&convs).Error)
	assert.Equal(t, int64(1), matches)
	assert.Equal(t, int64(1), convs)

	um, err := h.client.GetUserMatches(context.Background(), &pb.UserRequest{UserId: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), um.TotalMatches)
}

func TestArchiveAndList(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	m := h.matchPair(t, "alice", "bob")

	conv, err := h.client.ArchiveConversation(ctx, &pb.ConversationRequest{ConversationId: m.ConversationId, UserId: "bob"})
	require.NoError(t, err)
	assert.True(t, conv.Archived)

	list, err := h.client.ListConversations(ctx, &pb.ListConversationsRequest{UserId: "bob"})
	require.NoError(t, err)
	assert.Empty(t, list.Conversations)
	list, err = h.client.ListConversations(ctx, &pb.ListConversationsRequest{UserId: "bob", IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, list.Conversations, 1)

	conv, err = h.client.UnarchiveConversation(ctx, &pb.ConversationRequest{ConversationId: m.ConversationId, UserId: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", conv.Status)

	_, err = h.client.ArchiveConversation(ctx, &pb.ConversationRequest{ConversationId: m.ConversationId, UserId: "mallory"})
	assert.Equal(t, codes.PermissionDenied, code(err))
}

func TestBlockAndReport(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	m := h.matchPair(t, "alice", "bob")

	_, err := h.client.BlockUser(ctx, &pb.BlockUserRequest{BlockerUserId: "bob", BlockedUserId: "alice", Reason: "rude"})
	require.NoError(t, err)

	um, err := h.client.GetUserMatches(ctx, &pb.UserRequest{UserId: "alice"})
	require.NoError(t, err)
	assert.Zero(t, um.ActiveMatches)

	_, err = h.client.SubmitAction(ctx, &pb.SubmitActionRequest{ActorUserId: "alice", TargetUserId: "bob", Outcome: "LIKE"})
	assert.Equal(t, codes.PermissionDenied, code(err))
	_, err = h.client.SendMessage(ctx, &pb.SendMessageRequest{ConversationId: m.ConversationId, SenderUserId: "alice", Content: "sorry"})
	assert.Equal(t, codes.FailedPrecondition, code(err))

	r := h.matchPair(t, "carol", "dave")
	conv, err := h.client.ReportMatch(ctx, &pb.ReportMatchRequest{ConversationId: r.ConversationId, ReporterUserId: "carol", Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, "UNMATCHED", conv.Status)
}

func TestUnblockUser(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	m := h.matchPair(t, "alice", "bob")

	_, err := h.client.BlockUser(ctx, &pb.BlockUserRequest{BlockerUserId: "bob", BlockedUserId: "alice"})
	require.NoError(t, err)
	_, err = h.client.UnblockUser(ctx, &pb.UnblockUserRequest{BlockerUserId: "bob", BlockedUserId: "alice"})
	require.NoError(t, err)

	// the pair may act on each other again
	_, err = h.client.SubmitAction(ctx, &pb.SubmitActionRequest{ActorUserId: "alice", TargetUserId: "bob", Outcome: "PASS"})
	require.NoError(t, err)

	// but the match the block ended stays ended
	_, err = h.client.SendMessage(ctx, &pb.SendMessageRequest{ConversationId: m.ConversationId, SenderUserId: "alice", Content: "hi"})
	assert.Equal(t, codes.FailedPrecondition, code(err))

	_, err = h.client.UnblockUser(ctx, &pb.UnblockUserRequest{BlockerUserId: "bob", BlockedUserId: "bob"})
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestLikedYou(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.like(t, "x1", "rita", "")
	h.clock.Advance(time.Second)
	h.like(t, "x2", "rita", "")

	list, err := h.client.ListLikedYou(ctx, &pb.ListLikedYouRequest{RecipientUserId: "rita"})
	require.NoError(t, err)
	require.Len(t, list.Likers, 2)
	assert.Equal(t, "x2", list.Likers[0].ActorId)
	assert.Equal(t, uint64(t0.Add(time.Second).UnixMilli()), list.Likers[0].UnixTimestamp)

	count, err := h.client.CountLikedYou(ctx, &pb.UserRequest{UserId: "rita"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.Count)

	// liking back moves x1 out of the "new" list
	h.like(t, "rita", "x1", "")
	list, err = h.client.ListLikedYou(ctx, &pb.ListLikedYouRequest{RecipientUserId: "rita", NewOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Likers, 1)
	assert.Equal(t, "x2", list.Likers[0].ActorId)

	// a pass drops x2 entirely and invalidates the cached count
	_, err = h.client.SubmitAction(ctx, &pb.SubmitActionRequest{ActorUserId: "x2", TargetUserId: "rita", Outcome: "PASS"})
	require.NoError(t, err)
	count, err = h.client.CountLikedYou(ctx, &pb.UserRequest{UserId: "rita"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count.Count)
}

func TestViewTimeAndReconcile(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	set, err := h.client.CreateMatchSet(ctx, &pb.CreateMatchSetRequest{
		UserId: "alice", Date: "2026-03-02", Candidates: []*pb.Candidate{{UserId: "bob"}},
	})
	require.NoError(t, err)
	set, err = h.client.RecordViewTime(ctx, &pb.RecordViewTimeRequest{MatchSetId: set.Id, Seconds: 45})
	require.NoError(t, err)
	assert.Equal(t, int64(45), set.ViewTime)

	_, err = h.client.RecordViewTime(ctx, &pb.RecordViewTimeRequest{MatchSetId: set.Id, Seconds: -1})
	assert.Equal(t, codes.InvalidArgument, code(err))

	h.matchPair(t, "alice", "bob")
	report, err := h.client.ReconcileUser(ctx, &pb.UserRequest{UserId: "alice"})
	require.NoError(t, err)
	assert.False(t, report.ActivityDrift)
	assert.False(t, report.MatchesDrift)

	act, err := h.client.GetUserActivity(ctx, &pb.UserRequest{UserId: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(45), act.TotalViewTime)
	require.Len(t, act.Days, 1)
	assert.Equal(t, "2026-03-02", act.Days[0].Day)
}

func TestErrorMapping(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	_, err := h.client.SubmitAction(ctx, &pb.SubmitActionRequest{ActorUserId: "alice", TargetUserId: "alice", Outcome: "LIKE"})
	assert.Equal(t, codes.InvalidArgument, code(err))
	_, err = h.client.SubmitAction(ctx, &pb.SubmitActionRequest{ActorUserId: "alice", TargetUserId: "bob", Outcome: "SUPERLIKE"})
	assert.Equal(t, codes.InvalidArgument, code(err))
	_, err = h.client.GetMatchSet(ctx, &pb.GetMatchSetRequest{MatchSetId: "missing"})
	assert.Equal(t, codes.NotFound, code(err))
	_, err = h.client.GetUserMatches(ctx, &pb.UserRequest{})
	assert.Equal(t, codes.InvalidArgument, code(err))

	// an unknown user reads as empty aggregates
	um, err := h.client.GetUserMatches(ctx, &pb.UserRequest{UserId: "nobody"})
	require.NoError(t, err)
	assert.Zero(t, um.TotalMatches)
	assert.Empty(t, um.Matches)
}

func TestHealth(t *testing.T) {
	h := setup(t)
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
