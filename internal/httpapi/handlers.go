package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/oggyb/muzz-matching/internal/proto/matching"
)

type handler struct {
	svc    pb.MatchingServiceServer
	logger *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a service error with the HTTP status matching its gRPC code.
func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	writeJSON(w, httpStatus(st.Code()), errorBody{Error: st.Message(), Code: st.Code().String()})
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, status.Error(codes.InvalidArgument, "invalid JSON body"))
		return false
	}
	return true
}

// page reads page_token and limit from the query string.
func page(w http.ResponseWriter, r *http.Request) (*string, int32, bool) {
	q := r.URL.Query()
	var token *string
	if t := q.Get("page_token"); t != "" {
		token = &t
	}
	var limit int32
	if l := q.Get("limit"); l != "" {
		n, err := strconv.ParseInt(l, 10, 32)
		if err != nil {
			writeError(w, status.Error(codes.InvalidArgument, "limit must be an integer"))
			return nil, 0, false
		}
		limit = int32(n)
	}
	return token, limit, true
}

func (h *handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("http handler panic", "path", r.URL.Path, "panic", fmt.Sprint(rec))
				writeError(w, status.Error(codes.Internal, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// submitAction handles POST /v1/actions
func (h *handler) submitAction(w http.ResponseWriter, r *http.Request) {
	var req pb.SubmitActionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.SubmitAction(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getUserMatches(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetUserMatches(r.Context(), &pb.UserRequest{UserId: mux.Vars(r)["userId"]})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getUserActivity(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetUserActivity(r.Context(), &pb.UserRequest{UserId: mux.Vars(r)["userId"]})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// listLikedYou handles GET /v1/users/{userId}/likes?new_only=true&page_token=...&limit=...
func (h *handler) listLikedYou(w http.ResponseWriter, r *http.Request) {
	token, limit, ok := page(w, r)
	if !ok {
		return
	}
	newOnly, _ := strconv.ParseBool(r.URL.Query().Get("new_only"))
	resp, err := h.svc.ListLikedYou(r.Context(), &pb.ListLikedYouRequest{
		RecipientUserId: mux.Vars(r)["userId"],
		NewOnly:         newOnly,
		PaginationToken: token,
		Limit:           limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) countLikedYou(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.CountLikedYou(r.Context(), &pb.UserRequest{UserId: mux.Vars(r)["userId"]})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) countUnread(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.CountUnread(r.Context(), &pb.UserRequest{UserId: mux.Vars(r)["userId"]})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	token, limit, ok := page(w, r)
	if !ok {
		return
	}
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("include_archived"))
	resp, err := h.svc.ListConversations(r.Context(), &pb.ListConversationsRequest{
		UserId:          mux.Vars(r)["userId"],
		IncludeArchived: includeArchived,
		PaginationToken: token,
		Limit:           limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// blockUser handles POST /v1/users/{userId}/blocks {"blocked_user_id": "...", "reason": "..."}
func (h *handler) blockUser(w http.ResponseWriter, r *http.Request) {
	var req pb.BlockUserRequest
	if !decode(w, r, &req) {
		return
	}
	req.BlockerUserId = mux.Vars(r)["userId"]
	if _, err := h.svc.BlockUser(r.Context(), &req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// unblockUser handles DELETE /v1/users/{userId}/blocks/{blockedUserId}
func (h *handler) unblockUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req := &pb.UnblockUserRequest{BlockerUserId: vars["userId"], BlockedUserId: vars["blockedUserId"]}
	if _, err := h.svc.UnblockUser(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) reconcileUser(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ReconcileUser(r.Context(), &pb.UserRequest{UserId: mux.Vars(r)["userId"]})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// sendMessage handles POST /v1/conversations/{conversationId}/messages
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req pb.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	req.ConversationId = mux.Vars(r)["conversationId"]
	resp, err := h.svc.SendMessage(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// listMessages handles GET /v1/conversations/{conversationId}/messages?user_id=...
func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	token, limit, ok := page(w, r)
	if !ok {
		return
	}
	resp, err := h.svc.ListMessages(r.Context(), &pb.ListMessagesRequest{
		ConversationId:  mux.Vars(r)["conversationId"],
		UserId:          r.URL.Query().Get("user_id"),
		PaginationToken: token,
		Limit:           limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// conversationCall decodes {"user_id": "..."} and applies call to the conversation in the path.
func (h *handler) conversationCall(
	w http.ResponseWriter,
	r *http.Request,
	call func(*http.Request, *pb.ConversationRequest) (any, error),
) {
	var req pb.ConversationRequest
	if !decode(w, r, &req) {
		return
	}
	req.ConversationId = mux.Vars(r)["conversationId"]
	resp, err := call(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	h.conversationCall(w, r, func(r *http.Request, req *pb.ConversationRequest) (any, error) {
		return h.svc.MarkRead(r.Context(), req)
	})
}

func (h *handler) archive(w http.ResponseWriter, r *http.Request) {
	h.conversationCall(w, r, func(r *http.Request, req *pb.ConversationRequest) (any, error) {
		return h.svc.ArchiveConversation(r.Context(), req)
	})
}

func (h *handler) unarchive(w http.ResponseWriter, r *http.Request) {
	h.conversationCall(w, r, func(r *http.Request, req *pb.ConversationRequest) (any, error) {
		return h.svc.UnarchiveConversation(r.Context(), req)
	})
}

func (h *handler) unmatch(w http.ResponseWriter, r *http.Request) {
	h.conversationCall(w, r, func(r *http.Request, req *pb.ConversationRequest) (any, error) {
		return h.svc.Unmatch(r.Context(), req)
	})
}

func (h *handler) report(w http.ResponseWriter, r *http.Request) {
	var req pb.ReportMatchRequest
	if !decode(w, r, &req) {
		return
	}
	req.ConversationId = mux.Vars(r)["conversationId"]
	resp, err := h.svc.ReportMatch(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createMatchSet(w http.ResponseWriter, r *http.Request) {
	var req pb.CreateMatchSetRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.CreateMatchSet(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getMatchSet(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetMatchSet(r.Context(), &pb.GetMatchSetRequest{MatchSetId: mux.Vars(r)["matchSetId"]})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// recordViewTime handles POST /v1/match-sets/{matchSetId}/view-time {"seconds": 30}
func (h *handler) recordViewTime(w http.ResponseWriter, r *http.Request) {
	var req pb.RecordViewTimeRequest
	if !decode(w, r, &req) {
		return
	}
	req.MatchSetId = mux.Vars(r)["matchSetId"]
	resp, err := h.svc.RecordViewTime(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
