package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/httpapi"
	"github.com/oggyb/muzz-matching/internal/logger"
	pb "github.com/oggyb/muzz-matching/internal/proto/matching"
	"github.com/oggyb/muzz-matching/internal/service/matching"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	appCtx := testutil.NewApp(t, testutil.NewClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	svc := matching.NewService(appCtx, matching.NewCore(appCtx))
	ts := httptest.NewServer(httpapi.Handler(svc, logger.Nop()))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newGateway(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/health", nil, &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMatchAndMessageFlow(t *testing.T) {
	ts := newGateway(t)

	var first pb.SubmitActionResponse
	code := do(t, http.MethodPost, ts.URL+"/v1/actions",
		pb.SubmitActionRequest{ActorUserId: "alice", TargetUserId: "bob", Outcome: "LIKE"}, &first)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, first.Matched)

	var second pb.SubmitActionResponse
	do(t, http.MethodPost, ts.URL+"/v1/actions",
		pb.SubmitActionRequest{ActorUserId: "bob", TargetUserId: "alice", Outcome: "LIKE"}, &second)
	require.True(t, second.NewMatch)

	var msg pb.Message
	code = do(t, http.MethodPost, ts.URL+"/v1/conversations/"+second.ConversationId+"/messages",
		map[string]string{"sender_user_id": "alice", "content": "hello"}, &msg)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "bob", msg.RecipientId)

	var unread pb.CountResponse
	do(t, http.MethodGet, ts.URL+"/v1/users/bob/unread", nil, &unread)
	assert.Equal(t, int64(1), unread.Count)

	var matches pb.UserMatchesResponse
	do(t, http.MethodGet, ts.URL+"/v1/users/bob/matches", nil, &matches)
	require.Len(t, matches.Matches, 1)
	assert.Equal(t, "alice", matches.Matches[0].OtherUserId)

	var conv pb.Conversation
	code = do(t, http.MethodPost, ts.URL+"/v1/conversations/"+second.ConversationId+"/unmatch",
		map[string]string{"user_id": "bob"}, &conv)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "UNMATCHED", conv.Status)

	code = do(t, http.MethodPost, ts.URL+"/v1/conversations/"+second.ConversationId+"/messages",
		map[string]string{"sender_user_id": "alice", "content": "wait"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestErrors(t *testing.T) {
	ts := newGateway(t)

	code := do(t, http.MethodPost, ts.URL+"/v1/actions",
		pb.SubmitActionRequest{ActorUserId: "alice", TargetUserId: "alice", Outcome: "LIKE"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = do(t, http.MethodGet, ts.URL+"/v1/match-sets/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code = do(t, http.MethodGet, ts.URL+"/v1/users/bob/likes?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/actions", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	code = do(t, http.MethodPost, ts.URL+"/v1/users/alice/blocks", map[string]string{"blocked_user_id": "bob"}, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code = do(t, http.MethodPost, ts.URL+"/v1/actions",
		pb.SubmitActionRequest{ActorUserId: "bob", TargetUserId: "alice", Outcome: "LIKE"}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code = do(t, http.MethodDelete, ts.URL+"/v1/users/alice/blocks/bob", nil, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code = do(t, http.MethodPost, ts.URL+"/v1/actions",
		pb.SubmitActionRequest{ActorUserId: "bob", TargetUserId: "alice", Outcome: "LIKE"}, nil)
	assert.Equal(t, http.StatusOK, code)

	code = do(t, http.MethodDelete, ts.URL+"/v1/users/alice/blocks/alice", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMatchSetRoutes(t *testing.T) {
	ts := newGateway(t)

	var set pb.MatchSet
	code := do(t, http.MethodPost, ts.URL+"/v1/match-sets", pb.CreateMatchSetRequest{
		UserId:     "alice",
		Date:       "2026-03-02",
		Candidates: []*pb.Candidate{{UserId: "bob"}, {UserId: "bob"}, {UserId: "alice"}},
	}, &set)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), set.TotalCandidates, "duplicates and self are dropped")

	var updated pb.MatchSet
	do(t, http.MethodPost, ts.URL+"/v1/match-sets/"+set.Id+"/view-time", map[string]int64{"seconds": 20}, &updated)
	assert.Equal(t, int64(20), updated.ViewTime)

	var got pb.MatchSet
	do(t, http.MethodGet, ts.URL+"/v1/match-sets/"+set.Id, nil, &got)
	assert.Equal(t, set.Id, got.Id)
	assert.Equal(t, "PENDING", got.Status)
}
