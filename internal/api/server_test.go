package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/continuity"
	"github.com/MikeSquared-Agency/scribe/internal/copilot"
	"github.com/MikeSquared-Agency/scribe/internal/models"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCopilot implements the methods a test needs; the rest panic through
// the nil embedded interface.
type fakeCopilot struct {
	Copilot

	user       *models.User
	err        error
	lastDoc    copilot.NewDocument
	lastPatch  copilot.DocumentPatch
	lastCursor int
	lastDocID  string
	lastFilter models.TaskType
}

func (f *fakeCopilot) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: id, Name: "Alex"}, nil
}

func (f *fakeCopilot) CreateUser(_ context.Context, name, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.user = &models.User{ID: uuid.New(), Name: name, Email: email}
	return f.user, nil
}

func (f *fakeCopilot) SelectDomain(_ context.Context, userID uuid.UUID, domain string) (session.Session, error) {
	if f.err != nil {
		return session.Session{}, f.err
	}
	if domain == "" {
		domain = "creative"
	}
	return session.Session{ID: uuid.New(), UserID: userID, Domain: domain, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeCopilot) CreateDocument(_ context.Context, in copilot.NewDocument) (*copilot.IngestedDocument, error) {
	f.lastDoc = in
	doc := &models.Document{ID: uuid.New(), OwnerID: in.OwnerID, Title: in.Title, Kind: in.Kind, Body: in.Body}
	return &copilot.IngestedDocument{Document: doc, Embedding: processor.Result{DocumentID: doc.ID, Chunks: 1, Inserted: 1, Stored: true}}, nil
}

func (f *fakeCopilot) UpdateDocument(_ context.Context, id uuid.UUID, patch copilot.DocumentPatch) (*copilot.IngestedDocument, error) {
	f.lastPatch = patch
	if f.err != nil {
		return nil, f.err
	}
	return &copilot.IngestedDocument{Document: &models.Document{ID: id}}, nil
}

func (f *fakeCopilot) AutoSuggest(_ context.Context, _, _ uuid.UUID, text string, cursor int) (*copilot.AutoSuggestion, error) {
	f.lastCursor = cursor
	if f.err != nil {
		return nil, f.err
	}
	return &copilot.AutoSuggestion{Suggestions: []string{"a", "b", "c"}, SuggestionType: "action", ConfidenceScore: 0.85}, nil
}

func (f *fakeCopilot) CheckPlotContinuity(_ context.Context, userID uuid.UUID, documentID, _, chapter string) (*continuity.Report, error) {
	f.lastDocID = documentID
	return &continuity.Report{DocumentID: documentID, ChapterLabel: chapter, AgentStatus: "active"}, nil
}

func (f *fakeCopilot) AgentTasks(_ context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error) {
	f.lastDocID, f.lastFilter = documentID, taskType
	if f.err != nil {
		return nil, f.err
	}
	return []models.AgentTask{{DocumentID: documentID, Seq: 1, Type: models.TaskStoryContext}}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func do(t *testing.T, srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8760, "secret", &fakeCopilot{}, nil, discardLogger())

	w := do(t, srv, "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 without a token, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want string
	}{
		{"no database", nil, "not_configured"},
		{"connected", fakePinger{}, "connected"},
		{"unreachable", fakePinger{err: errors.New("refused")}, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(8760, "", &fakeCopilot{}, tt.db, discardLogger())
			w := do(t, srv, "GET", "/api/v1/scribe/status", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			body := decodeBody(t, w)
			if body["agent"] != "scribe" || body["database"] != tt.want {
				t.Errorf("unexpected status body %v", body)
			}
		})
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := NewServer(8760, "", &fakeCopilot{}, nil, discardLogger())
	if w := do(t, srv, "GET", "/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := NewServer(8760, "secret", &fakeCopilot{}, nil, discardLogger())
	body := `{"name":"Alex","email":"a@b.c"}`

	if w := do(t, srv, "POST", "/create_user", body); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/create_user", body, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := do(t, srv, "POST", "/create_user", body, "Authorization", "Bearer secret"); w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}

func TestCreateUser(t *testing.T) {
	fake := &fakeCopilot{}
	srv := NewServer(8760, "", fake, nil, discardLogger())

	w := do(t, srv, "POST", "/create_user", `{"name":"Alex Writer","email":"alex@writer.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	user, ok := body["user"].(map[string]any)
	if !ok || user["id"] != fake.user.ID.String() {
		t.Errorf("expected created user in response, got %v", body)
	}

	if w := do(t, srv, "POST", "/create_user", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	id := uuid.New()
	path := fmt.Sprintf("/users/%s", id)
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("user: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("session: %w", models.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("field: %w", models.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: overloaded", models.ErrGeneration), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv := NewServer(8760, "", &fakeCopilot{err: tt.err}, nil, discardLogger())
			if w := do(t, srv, "GET", path, ""); w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}

	srv := NewServer(8760, "", &fakeCopilot{}, nil, discardLogger())
	if w := do(t, srv, "GET", "/users/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", w.Code)
	}
}

func TestSelectDomainAndAlias(t *testing.T) {
	srv := NewServer(8760, "", &fakeCopilot{}, nil, discardLogger())
	body := fmt.Sprintf(`{"user_id":%q}`, uuid.New())

	for _, path := range []string{"/select_creative_domain", "/start_creative_session"} {
		w := do(t, srv, "POST", path, body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		resp := decodeBody(t, w)
		if resp["session_id"] == "" || resp["domain"] != "creative" {
			t.Errorf("%s: unexpected response %v", path, resp)
		}
	}
}

func TestCreateDocument_AcceptsFieldAliases(t *testing.T) {
	fake := &fakeCopilot{}
	srv := NewServer(8760, "", fake, nil, discardLogger())
	owner := uuid.New()

	body := fmt.Sprintf(`{"created_by":%q,"title":"Luna","type":"character","description":"Luna Martinez, 32."}`, owner)
	w := do(t, srv, "POST", "/create_document", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fake.lastDoc.OwnerID != owner || fake.lastDoc.Kind != models.KindCharacter || fake.lastDoc.Body != "Luna Martinez, 32." {
		t.Errorf("unexpected document input %+v", fake.lastDoc)
	}
	resp := decodeBody(t, w)
	if emb, _ := resp["embedding"].(map[string]any); emb["embeddings_created"] != float64(1) || emb["stored"] != true {
		t.Errorf("expected embedding count in response, got %v", resp)
	}

	body = fmt.Sprintf(`{"user_id":%q,"title":"Saga","content_type":"story","content":"Once."}`, owner)
	if w := do(t, srv, "POST", "/create_document", body); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fake.lastDoc.Kind != models.KindStory || fake.lastDoc.Body != "Once." {
		t.Errorf("unexpected document input %+v", fake.lastDoc)
	}
}

func TestUpdateDocument_PartialPatch(t *testing.T) {
	fake := &fakeCopilot{}
	srv := NewServer(8760, "", fake, nil, discardLogger())
	owner := uuid.New()

	body := fmt.Sprintf(`{"user_id":%q,"content":"new text"}`, owner)
	if w := do(t, srv, "PUT", "/documents/"+uuid.NewString(), body); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fake.lastPatch.UserID != owner || fake.lastPatch.Body == nil || *fake.lastPatch.Body != "new text" {
		t.Errorf("unexpected patch %+v", fake.lastPatch)
	}
	if fake.lastPatch.Title != nil || fake.lastPatch.Kind != nil {
		t.Errorf("expected untouched fields to stay nil, got %+v", fake.lastPatch)
	}
}

func TestAutoSuggest_Cursor(t *testing.T) {
	fake := &fakeCopilot{}
	srv := NewServer(8760, "", fake, nil, discardLogger())
	ids := fmt.Sprintf(`"user_id":%q,"session_id":%q`, uuid.New(), uuid.New())

	w := do(t, srv, "POST", "/auto_suggest", `{`+ids+`,"current_text":"she ran toward"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fake.lastCursor != -1 {
		t.Errorf("expected missing cursor to mean end of text, got %d", fake.lastCursor)
	}
	resp := decodeBody(t, w)
	if resp["suggestion_type"] != "action" || resp["confidence_score"] != 0.85 {
		t.Errorf("unexpected response %v", resp)
	}

	do(t, srv, "POST", "/auto_suggest", `{`+ids+`,"current_text":"she ran toward","cursor_position":3}`)
	if fake.lastCursor != 3 {
		t.Errorf("expected cursor 3, got %d", fake.lastCursor)
	}

	if w := do(t, srv, "POST", "/auto_suggest", `{"user_id":"x","session_id":"y"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid ids, got %d", w.Code)
	}

	fake.err = fmt.Errorf("%w: overloaded", models.ErrGeneration)
	if w := do(t, srv, "POST", "/auto_suggest", `{`+ids+`,"current_text":"x"}`); w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 on generation failure, got %d", w.Code)
	}
}

func TestPlotContinuityCheck(t *testing.T) {
	fake := &fakeCopilot{}
	srv := NewServer(8760, "", fake, nil, discardLogger())
	body := fmt.Sprintf(`{"user_id":%q,"document_id":"novel-1","story_text":"Luna ran.","chapter_info":"Chapter 1"}`, uuid.New())

	w := do(t, srv, "POST", "/plot_continuity_check", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["agent_status"] != "active" || resp["chapter_label"] != "Chapter 1" || fake.lastDocID != "novel-1" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestAgentTasks_Filter(t *testing.T) {
	fake := &fakeCopilot{}
	srv := NewServer(8760, "", fake, nil, discardLogger())

	w := do(t, srv, "GET", "/agent_tasks/novel-1?task_type=story_context", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fake.lastDocID != "novel-1" || fake.lastFilter != models.TaskStoryContext {
		t.Errorf("unexpected call %q %q", fake.lastDocID, fake.lastFilter)
	}
	if resp := decodeBody(t, w); resp["count"] != float64(1) {
		t.Errorf("unexpected response %v", resp)
	}

	fake.err = fmt.Errorf("task type: %w", models.ErrInvalidInput)
	if w := do(t, srv, "GET", "/agent_tasks/novel-1?task_type=bogus", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown filter, got %d", w.Code)
	}
}

func TestAgentReads_UnknownDocument(t *testing.T) {
	ctx := context.Background()
	agent := continuity.New(nil, continuity.NewMemoryLog(), 0, discardLogger())
	if _, err := agent.AddStoryContext(ctx, "novel-1", "Luna ran.", "Chapter 1"); err != nil {
		t.Fatal(err)
	}
	svc := copilot.New(copilot.Deps{Continuity: agent}, nil, 0, discardLogger())
	srv := NewServer(8760, "", svc, nil, discardLogger())

	for _, route := range []string{
		"/agent_tasks/%s",
		"/agent_continuity_history/%s",
		"/agent_story_timeline/%s",
		"/agent_story_summary/%s",
	} {
		if w := do(t, srv, "GET", fmt.Sprintf(route, "no-such-doc"), ""); w.Code != http.StatusNotFound {
			t.Errorf("%s unknown document: expected 404, got %d", route, w.Code)
		}
		if w := do(t, srv, "GET", fmt.Sprintf(route, "novel-1"), ""); w.Code != http.StatusOK {
			t.Errorf("%s known document: expected 200, got %d", route, w.Code)
		}
	}
}
