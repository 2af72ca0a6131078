package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/continuity"
	"github.com/MikeSquared-Agency/scribe/internal/copilot"
	"github.com/MikeSquared-Agency/scribe/internal/models"
	"github.com/MikeSquared-Agency/scribe/internal/session"
)

// Copilot is the service behind the HTTP API.
type Copilot interface {
	CreateUser(ctx context.Context, name, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SelectDomain(ctx context.Context, userID uuid.UUID, domain string) (session.Session, error)
	DomainInfo() copilot.DomainInfo

	CreateDocument(ctx context.Context, in copilot.NewDocument) (*copilot.IngestedDocument, error)
	UpdateDocument(ctx context.Context, id uuid.UUID, patch copilot.DocumentPatch) (*copilot.IngestedDocument, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error)

	WritingAssist(ctx context.Context, userID, sessionID uuid.UUID, prompt string) (*copilot.WritingSuggestion, error)
	AutoSuggest(ctx context.Context, userID, sessionID uuid.UUID, text string, cursor int) (*copilot.AutoSuggestion, error)
	EnhancedAutoSuggest(ctx context.Context, userID, sessionID uuid.UUID, text string, cursor int) (*copilot.EnhancedSuggestion, error)
	AnalyzeStory(ctx context.Context, userID, sessionID uuid.UUID, text, analysisType string) (*copilot.StoryAnalysis, error)
	WritingFeedback(ctx context.Context, userID, sessionID uuid.UUID, text, focus string) (*copilot.WritingFeedback, error)

	CheckPlotContinuity(ctx context.Context, userID uuid.UUID, documentID, storyText, chapterInfo string) (*continuity.Report, error)
	StorySummary(ctx context.Context, documentID string) (continuity.Summary, error)
	ContinuityHistory(ctx context.Context, documentID string) ([]continuity.HistoryEntry, error)
	StoryTimeline(ctx context.Context, documentID string) ([]continuity.TimelineEntry, error)
	AgentTasks(ctx context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error)
}

var _ Copilot = (*copilot.Service)(nil)

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q is not a valid id: %w", name, raw, models.ErrInvalidInput)
	}
	return id, nil
}

// sessionRequest carries the identity fields shared by the generation
// endpoints.
type sessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (sr sessionRequest) ids() (uuid.UUID, uuid.UUID, error) {
	userID, err := parseID("user_id", sr.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	sessionID, err := parseID("session_id", sr.SessionID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, sessionID, nil
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	u, err := s.svc.CreateUser(r.Context(), req.Name, req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User created successfully", "user": u})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("user_id", chi.URLParam(r, "user_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	u, err := s.svc.GetUser(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("user_id", chi.URLParam(r, "user_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	docs, err := s.svc.ListDocuments(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (s *Server) selectDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Domain string `json:"domain"`
	}
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sess, err := s.svc.SelectDomain(r.Context(), userID, req.Domain)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    fmt.Sprintf("Session started in %s domain", sess.Domain),
		"session_id": sess.ID,
		"user_id":    sess.UserID,
		"domain":     sess.Domain,
		"expires_at": sess.ExpiresAt,
	})
}

func (s *Server) creativeInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.DomainInfo())
}

// documentRequest accepts both field spellings clients send for documents.
type documentRequest struct {
	UserID      string  `json:"user_id"`
	CreatedBy   string  `json:"created_by"`
	Title       *string `json:"title"`
	Type        *string `json:"type"`
	ContentType *string `json:"content_type"`
	Content     *string `json:"content"`
	Description *string `json:"description"`
}

func (d documentRequest) owner() (uuid.UUID, error) {
	raw := d.UserID
	if raw == "" {
		raw = d.CreatedBy
	}
	return parseID("user_id", raw)
}

func (d documentRequest) kind() *models.DocumentKind {
	for _, v := range []*string{d.Type, d.ContentType} {
		if v != nil {
			k := models.DocumentKind(*v)
			return &k
		}
	}
	return nil
}

func (d documentRequest) body() *string {
	if d.Content != nil {
		return d.Content
	}
	return d.Description
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	owner, err := req.owner()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	in := copilot.NewDocument{OwnerID: owner, Title: deref(req.Title), Body: deref(req.body())}
	if k := req.kind(); k != nil {
		in.Kind = *k
	}
	doc, err := s.svc.CreateDocument(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("document id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	doc, err := s.svc.GetDocument(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("document id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req documentRequest
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	owner, err := req.owner()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	doc, err := s.svc.UpdateDocument(r.Context(), id, copilot.DocumentPatch{
		UserID: owner,
		Title:  req.Title,
		Kind:   req.kind(),
		Body:   req.body(),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) writingAssist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		sessionRequest
		Prompt string `json:"prompt"`
	}
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	userID, sessionID, err := req.ids()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.svc.WritingAssist(r.Context(), userID, sessionID, req.Prompt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type suggestRequest struct {
	sessionRequest
	CurrentText    string `json:"current_text"`
	CursorPosition *int   `json:"cursor_position"`
}

func (sr suggestRequest) cursor() int {
	if sr.CursorPosition == nil {
		return -1
	}
	return *sr.CursorPosition
}

func (s *Server) autoSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	userID, sessionID, err := req.ids()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.svc.AutoSuggest(r.Context(), userID, sessionID, req.CurrentText, req.cursor())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) enhancedAutoSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	userID, sessionID, err := req.ids()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.svc.EnhancedAutoSuggest(r.Context(), userID, sessionID, req.CurrentText, req.cursor())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) analyzeStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		sessionRequest
		TextChunk    string `json:"text_chunk"`
		AnalysisType string `json:"analysis_type"`
	}
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	userID, sessionID, err := req.ids()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.svc.AnalyzeStory(r.Context(), userID, sessionID, req.TextChunk, req.AnalysisType)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writingFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		sessionRequest
		CurrentText   string `json:"current_text"`
		FeedbackFocus string `json:"feedback_focus"`
	}
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	userID, sessionID, err := req.ids()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out, err := s.svc.WritingFeedback(r.Context(), userID, sessionID, req.CurrentText, req.FeedbackFocus)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) plotContinuityCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		DocumentID  string `json:"document_id"`
		StoryText   string `json:"story_text"`
		ChapterInfo string `json:"chapter_info"`
	}
	if err := decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	report, err := s.svc.CheckPlotContinuity(r.Context(), userID, req.DocumentID, req.StoryText, req.ChapterInfo)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) agentTasks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")
	taskType := models.TaskType(r.URL.Query().Get("task_type"))
	tasks, err := s.svc.AgentTasks(r.Context(), docID, taskType)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "tasks": tasks, "count": len(tasks)})
}

func (s *Server) continuityHistory(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")
	history, err := s.svc.ContinuityHistory(r.Context(), docID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "continuity_history": history})
}

func (s *Server) storyTimeline(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "document_id")
	timeline, err := s.svc.StoryTimeline(r.Context(), docID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "timeline": timeline})
}

func (s *Server) storySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.StorySummary(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
