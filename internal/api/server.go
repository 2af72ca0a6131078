package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router *chi.Mux
	http   *http.Server
	svc    Copilot
	db     Pinger
	logger *slog.Logger
}

// NewServer wires every route. An empty apiToken disables authentication;
// /health is always open. db may be nil.
func NewServer(port int, apiToken string, svc Copilot, db Pinger, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		svc:    svc,
		db:     db,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)

	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))

		r.Get("/api/v1/scribe/status", s.status)

		r.Post("/create_user", s.createUser)
		r.Get("/users/{user_id}", s.getUser)
		r.Get("/users/{user_id}/documents", s.listDocuments)

		r.Post("/select_creative_domain", s.selectDomain)
		r.Post("/start_creative_session", s.selectDomain)
		r.Get("/creative_info", s.creativeInfo)

		r.Post("/create_document", s.createDocument)
		r.Get("/documents/{id}", s.getDocument)
		r.Put("/documents/{id}", s.updateDocument)

		r.Post("/writing_assist", s.writingAssist)
		r.Post("/auto_suggest", s.autoSuggest)
		r.Post("/enhanced_auto_suggest", s.enhancedAutoSuggest)
		r.Post("/analyze_story", s.analyzeStory)
		r.Post("/writing_feedback", s.writingFeedback)

		r.Post("/plot_continuity_check", s.plotContinuityCheck)
		r.Get("/agent_tasks/{document_id}", s.agentTasks)
		r.Get("/agent_continuity_history/{document_id}", s.continuityHistory)
		r.Get("/agent_story_timeline/{document_id}", s.storyTimeline)
		r.Get("/agent_story_summary/{document_id}", s.storySummary)
	})

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry token. An empty token lets everything through.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	database := "not_configured"
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		database = "connected"
		if err := s.db.Ping(ctx); err != nil {
			database = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":    "scribe",
		"status":   "active",
		"database": database,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrGeneration):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %v: %w", err, models.ErrInvalidInput)
	}
	return nil
}
