// Package httpapi exposes the Matching service as JSON over HTTP for clients
// that cannot speak gRPC. Every route forwards to the same service methods.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/oggyb/muzz-matching/internal/config"
	pb "github.com/oggyb/muzz-matching/internal/proto/matching"
)

// NewRouter wires every route to svc.
func NewRouter(svc pb.MatchingServiceServer, logger *slog.Logger) *mux.Router {
	h := &handler{svc: svc, logger: logger}

	r := mux.NewRouter()
	r.Use(h.recoverPanics)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Actions
	v1.HandleFunc("/actions", h.submitAction).Methods(http.MethodPost)

	// Users
	v1.HandleFunc("/users/{userId}/matches", h.getUserMatches).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId}/activity", h.getUserActivity).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId}/likes", h.listLikedYou).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId}/likes/count", h.countLikedYou).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId}/unread", h.countUnread).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId}/conversations", h.listConversations).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId}/blocks", h.blockUser).Methods(http.MethodPost)
	v1.HandleFunc("/users/{userId}/blocks/{blockedUserId}", h.unblockUser).Methods(http.MethodDelete)
	v1.HandleFunc("/users/{userId}/reconcile", h.reconcileUser).Methods(http.MethodPost)

	// Conversations
	v1.HandleFunc("/conversations/{conversationId}/messages", h.sendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{conversationId}/messages", h.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{conversationId}/read", h.markRead).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{conversationId}/archive", h.archive).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{conversationId}/unarchive", h.unarchive).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{conversationId}/unmatch", h.unmatch).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{conversationId}/report", h.report).Methods(http.MethodPost)

	// Match sets
	v1.HandleFunc("/match-sets", h.createMatchSet).Methods(http.MethodPost)
	v1.HandleFunc("/match-sets/{matchSetId}", h.getMatchSet).Methods(http.MethodGet)
	v1.HandleFunc("/match-sets/{matchSetId}/view-time", h.recordViewTime).Methods(http.MethodPost)

	return r
}

// Handler wraps the router with CORS.
func Handler(svc pb.MatchingServiceServer, logger *slog.Logger) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(NewRouter(svc, logger))
}

// Server runs the gateway until its context is done.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(cfg config.HTTPConfig, svc pb.MatchingServiceServer, logger *slog.Logger) *Server {
	logger = logger.With("component", "http")
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           Handler(svc, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP gateway", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("HTTP gateway stopped")
	return nil
}
