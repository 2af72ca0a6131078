package copilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/classifier"
	"github.com/MikeSquared-Agency/scribe/internal/continuity"
	"github.com/MikeSquared-Agency/scribe/internal/embedding"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/models"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
	"github.com/MikeSquared-Agency/scribe/internal/session"
	"github.com/MikeSquared-Agency/scribe/internal/vectorstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memDB is an in-process user and document store.
type memDB struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
	docs  map[uuid.UUID]models.Document
}

func newMemDB() *memDB {
	return &memDB{users: map[uuid.UUID]models.User{}, docs: map[uuid.UUID]models.Document{}}
}

func (m *memDB) CreateUser(_ context.Context, name, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: uuid.New(), Name: name, Email: email, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return &u, nil
}

func (m *memDB) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return &u, nil
}

func (m *memDB) CreateDocument(_ context.Context, doc models.Document) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = uuid.New()
	doc.CreatedAt, doc.UpdatedAt = time.Now(), time.Now()
	m.docs[doc.ID] = doc
	return &doc, nil
}

func (m *memDB) UpdateDocument(_ context.Context, doc models.Document) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return nil, models.ErrNotFound
	}
	doc.UpdatedAt = time.Now()
	m.docs[doc.ID] = doc
	return &doc, nil
}

func (m *memDB) GetDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return &d, nil
}

func (m *memDB) ListDocuments(_ context.Context, owner uuid.UUID) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.OwnerID == owner {
			out = append(out, d)
		}
	}
	return out, nil
}

// constProvider embeds every text to the same direction so every stored
// chunk is relevant.
type constProvider struct{}

func (constProvider) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0.5}, nil
}

// genFunc fakes the generation gateway.
type genFunc func(system, prompt string) (string, error)

func (f genFunc) Complete(_ context.Context, system string, messages []anthropic.Message, _ int) (string, error) {
	prompt := ""
	if len(messages) > 0 {
		prompt = messages[0].Content
	}
	return f(system, prompt)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (r *recordingPublisher) Publish(subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return nil
}

type recordingAlerter struct {
	mu      sync.Mutex
	reports []*continuity.Report
}

func (r *recordingAlerter) PostContinuityAlert(_ context.Context, report *continuity.Report) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return "1.0", nil
}

type harness struct {
	svc     *Service
	db      *memDB
	vectors *vectorstore.Store
	pub     *recordingPublisher
	alerts  *recordingAlerter
}

func newHarness(t *testing.T, gen genFunc) *harness {
	t.Helper()
	db := newMemDB()
	emb := embedding.New(constProvider{}, embedding.Options{Dimensions: 2}, discardLogger())
	vs := vectorstore.New(vectorstore.NewMemory(2), 0.7, 0, discardLogger())
	pub := &recordingPublisher{}
	alerts := &recordingAlerter{}
	agent := continuity.New(gen, continuity.NewMemoryLog(), 0, discardLogger())

	svc := New(Deps{
		Users:      db,
		Documents:  db,
		Ingester:   processor.New(db, emb, vs, pub, 500, 50, discardLogger()),
		Context:    retrieval.New(emb, vs, discardLogger()),
		Sessions:   session.NewMemory(time.Hour),
		LLM:        gen,
		Continuity: agent,
		Publisher:  pub,
		Alerter:    alerts,
	}, nil, time.Second, discardLogger())
	return &harness{svc: svc, db: db, vectors: vs, pub: pub, alerts: alerts}
}

func (h *harness) userAndSession(t *testing.T) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	u, err := h.svc.CreateUser(ctx, "Alex Writer", "alex@writer.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	sess, err := h.svc.SelectDomain(ctx, u.ID, "")
	if err != nil {
		t.Fatalf("SelectDomain: %v", err)
	}
	return u.ID, sess.ID
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(w, " ")
}

func TestCreateUser_Validation(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.svc.CreateUser(context.Background(), " ", "a@b.c"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSelectDomain(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	u, _ := h.svc.CreateUser(ctx, "A", "a@b.c")

	sess, err := h.svc.SelectDomain(ctx, u.ID, "")
	if err != nil {
		t.Fatalf("SelectDomain: %v", err)
	}
	if sess.Domain != DefaultDomain || sess.UserID != u.ID {
		t.Errorf("unexpected session %+v", sess)
	}
	if _, err := h.svc.SelectDomain(ctx, u.ID, "poetry"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown domain, got %v", err)
	}
	if _, err := h.svc.SelectDomain(ctx, uuid.New(), "legal"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestDomainInfo(t *testing.T) {
	svc := New(Deps{}, map[string]string{"poetry": "You write poems.", "creative": "c"}, 0, discardLogger())
	info := svc.DomainInfo()
	if strings.Join(info.Domains, ",") != "creative,poetry" {
		t.Errorf("expected sorted custom domains, got %v", info.Domains)
	}
	if len(info.DocumentKinds) != 4 {
		t.Errorf("expected 4 document kinds, got %v", info.DocumentKinds)
	}
}

func TestCreateDocument_LunaCharacterEmbedsOnce(t *testing.T) {
	h := newHarness(t, nil)
	userID, _ := h.userAndSession(t)

	got, err := h.svc.CreateDocument(context.Background(), NewDocument{
		OwnerID: userID, Title: "Luna", Kind: models.KindCharacter, Body: words(50),
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if got.Embedding.Inserted != 1 || !got.Embedding.Stored {
		t.Errorf("expected 1 stored embedding, got %+v", got.Embedding)
	}
	if len(h.pub.subjects) != 1 || h.pub.subjects[0] != processor.SubjectDocumentEmbedded {
		t.Errorf("expected embedded event, got %v", h.pub.subjects)
	}
}

type brokenIngester struct{}

func (brokenIngester) Ingest(_ context.Context, doc models.Document) (processor.Result, error) {
	err := errors.New("store embeddings: connection reset")
	return processor.Result{DocumentID: doc.ID, Chunks: 1, Error: err.Error()}, err
}

func TestCreateDocument_EmbeddingFailureReported(t *testing.T) {
	db := newMemDB()
	u, _ := db.CreateUser(context.Background(), "Alex", "alex@example.com")
	svc := New(Deps{Users: db, Documents: db, Ingester: brokenIngester{}}, nil, 0, discardLogger())

	got, err := svc.CreateDocument(context.Background(), NewDocument{OwnerID: u.ID, Title: "Luna", Body: "A keeper."})
	if err != nil {
		t.Fatalf("document must still be created, got %v", err)
	}
	if got.Document == nil || got.Embedding.Stored || got.Embedding.Error == "" {
		t.Errorf("expected unindexed document with an embedding error, got %+v", got)
	}
}

func TestCreateDocument_Validation(t *testing.T) {
	h := newHarness(t, nil)
	userID, _ := h.userAndSession(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewDocument
		want error
	}{
		{"bad kind", NewDocument{OwnerID: userID, Title: "T", Kind: "poem", Body: "x"}, models.ErrInvalidInput},
		{"empty body", NewDocument{OwnerID: userID, Title: "T", Body: " "}, models.ErrInvalidInput},
		{"unknown owner", NewDocument{OwnerID: uuid.New(), Title: "T", Body: "x"}, models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.CreateDocument(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	got, err := h.svc.CreateDocument(ctx, NewDocument{OwnerID: userID, Title: "Untyped", Body: "some text"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if got.Document.Kind != models.KindStory {
		t.Errorf("expected default kind story, got %q", got.Document.Kind)
	}
}

func TestUpdateDocument(t *testing.T) {
	h := newHarness(t, nil)
	userID, _ := h.userAndSession(t)
	ctx := context.Background()

	created, _ := h.svc.CreateDocument(ctx, NewDocument{OwnerID: userID, Title: "Saga", Kind: models.KindStory, Body: words(1200)})
	if n, _ := h.vectors.Count(ctx, created.Document.ID); n != 3 {
		t.Fatalf("expected 3 chunks, got %d", n)
	}

	body := words(100)
	updated, err := h.svc.UpdateDocument(ctx, created.Document.ID, DocumentPatch{UserID: userID, Body: &body})
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if updated.Embedding.Inserted != 1 {
		t.Errorf("expected re-embedding into 1 chunk, got %+v", updated.Embedding)
	}
	if n, _ := h.vectors.Count(ctx, created.Document.ID); n != 1 {
		t.Errorf("expected old chunks replaced, got %d", n)
	}

	if _, err := h.svc.UpdateDocument(ctx, created.Document.ID, DocumentPatch{UserID: uuid.New(), Body: &body}); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another user, got %v", err)
	}
	if _, err := h.svc.UpdateDocument(ctx, uuid.New(), DocumentPatch{UserID: userID}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDocuments(t *testing.T) {
	h := newHarness(t, nil)
	userID, _ := h.userAndSession(t)
	ctx := context.Background()

	docs, err := h.svc.ListDocuments(ctx, userID)
	if err != nil || docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", docs, err)
	}
	h.svc.CreateDocument(ctx, NewDocument{OwnerID: userID, Title: "A", Body: "text"})
	docs, _ = h.svc.ListDocuments(ctx, userID)
	if len(docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(docs))
	}
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t, genFunc(func(string, string) (string, error) { return "ok", nil }))
	ctx := context.Background()
	userID, sessionID := h.userAndSession(t)
	other, _ := h.svc.CreateUser(ctx, "Other", "o@x.y")

	if _, err := h.svc.WritingAssist(ctx, uuid.New(), sessionID, "help"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
	if _, err := h.svc.WritingAssist(ctx, other.ID, sessionID, "help"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("expected ErrForbidden for foreign session, got %v", err)
	}
	if _, err := h.svc.WritingAssist(ctx, userID, sessionID, "help"); err != nil {
		t.Errorf("expected owner to be authorized, got %v", err)
	}
}

func TestWritingAssist_UsesContextAndDomainPrompt(t *testing.T) {
	var gotSystem, gotPrompt string
	h := newHarness(t, genFunc(func(system, prompt string) (string, error) {
		gotSystem, gotPrompt = system, prompt
		return "  Luna opens the vault.  ", nil
	}))
	userID, sessionID := h.userAndSession(t)
	ctx := context.Background()
	h.svc.CreateDocument(ctx, NewDocument{OwnerID: userID, Title: "Luna", Kind: models.KindCharacter, Body: "Luna is a space archaeologist with a scar."})

	got, err := h.svc.WritingAssist(ctx, userID, sessionID, "Write Luna's next scene")
	if err != nil {
		t.Fatalf("WritingAssist: %v", err)
	}
	if got.Suggestion != "Luna opens the vault." {
		t.Errorf("unexpected suggestion %q", got.Suggestion)
	}
	if !strings.HasPrefix(got.ContextUsed, "From 'Luna' (character): ") {
		t.Errorf("unexpected context %q", got.ContextUsed)
	}
	if gotSystem != DefaultDomains["creative"] {
		t.Errorf("expected creative system prompt, got %q", gotSystem)
	}
	if !strings.Contains(gotPrompt, got.ContextUsed) {
		t.Error("expected retrieved context in the prompt")
	}
}

func TestAutoSuggest_ActionWithContext(t *testing.T) {
	h := newHarness(t, genFunc(func(_, prompt string) (string, error) {
		if !strings.Contains(prompt, "Writing context: action") {
			t.Errorf("expected action guidance in prompt")
		}
		return "```json\n{\"suggestions\": [\"the pod\", \"the hatch\", \"the light\", \"extra\"]}\n```", nil
	}))
	userID, sessionID := h.userAndSession(t)
	ctx := context.Background()
	h.svc.CreateDocument(ctx, NewDocument{OwnerID: userID, Title: "Luna", Kind: models.KindCharacter, Body: words(50)})

	got, err := h.svc.AutoSuggest(ctx, userID, sessionID, "The alarm blared and she ran toward", -1)
	if err != nil {
		t.Fatalf("AutoSuggest: %v", err)
	}
	if got.SuggestionType != "action" || got.ConfidenceScore != 0.85 {
		t.Errorf("expected action/0.85, got %s/%v", got.SuggestionType, got.ConfidenceScore)
	}
	if len(got.Suggestions) != 3 || got.Suggestions[0] != "the pod" {
		t.Errorf("expected three suggestions, got %v", got.Suggestions)
	}
	if got.ContextUsed == "" || got.ContextUsed == retrieval.NoContext {
		t.Errorf("expected retrieved context, got %q", got.ContextUsed)
	}
}

func TestAutoSuggest_GenerationFailure(t *testing.T) {
	h := newHarness(t, genFunc(func(string, string) (string, error) { return "", errors.New("overloaded") }))
	userID, sessionID := h.userAndSession(t)

	_, err := h.svc.AutoSuggest(context.Background(), userID, sessionID, "She walked", -1)
	if !errors.Is(err, models.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		typ  string
		want []string
	}{
		{"json", `{"suggestions": ["3 guards appeared", "b", "c"]}`, classifier.Action, []string{"3 guards appeared", "b", "c"}},
		{"numbered lines", "1. first\n2) second\n\n- third\n* fourth", classifier.Action, []string{"first", "second", "third"}},
		{"short json padded", `{"suggestions": ["b"]}`, classifier.Action, []string{"b", fallbackSuggestions[classifier.Action][0], fallbackSuggestions[classifier.Action][1]}},
		{"empty padded", "", "unknown", fallbackSuggestions[classifier.Continuation]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSuggestions(tt.raw, tt.typ)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("parseSuggestions = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnhancedAutoSuggest(t *testing.T) {
	h := newHarness(t, genFunc(func(_, prompt string) (string, error) {
		if strings.Contains(prompt, "overall_score") {
			return `{"overall_score": 8, "improvement_suggestions": ["raise the stakes"]}`, nil
		}
		return `{"suggestions": ["a", "b", "c"]}`, nil
	}))
	userID, sessionID := h.userAndSession(t)

	got, err := h.svc.EnhancedAutoSuggest(context.Background(), userID, sessionID, "Luna felt the cold as she thought", -1)
	if err != nil {
		t.Fatalf("EnhancedAutoSuggest: %v", err)
	}
	if len(got.TextSuggestions) != 3 || got.SuggestionType != "character_development" {
		t.Errorf("unexpected suggestions %+v", got)
	}
	if !got.PlotInsights.HasAnalysis || got.PlotInsights.OverallScore != 8 || got.PlotInsights.PlotImprovements[0] != "raise the stakes" {
		t.Errorf("unexpected insights %+v", got.PlotInsights)
	}
}

func TestEnhancedAutoSuggest_AnalysisDegrades(t *testing.T) {
	h := newHarness(t, genFunc(func(_, prompt string) (string, error) {
		if strings.Contains(prompt, "overall_score") {
			return "", errors.New("timeout")
		}
		return `{"suggestions": ["a"]}`, nil
	}))
	userID, sessionID := h.userAndSession(t)

	got, err := h.svc.EnhancedAutoSuggest(context.Background(), userID, sessionID, "She walked on.", -1)
	if err != nil {
		t.Fatalf("EnhancedAutoSuggest: %v", err)
	}
	if got.PlotInsights.HasAnalysis || got.PlotInsights.PlotImprovements == nil {
		t.Errorf("expected empty insights, got %+v", got.PlotInsights)
	}
}

func TestAnalyzeStory_ParseFallback(t *testing.T) {
	h := newHarness(t, genFunc(func(string, string) (string, error) { return "It is a lovely story.", nil }))
	userID, sessionID := h.userAndSession(t)

	got, err := h.svc.AnalyzeStory(context.Background(), userID, sessionID, "Once upon a time.", "")
	if err != nil {
		t.Fatalf("AnalyzeStory: %v", err)
	}
	if got.PlotAnalysis["raw_analysis"] != "It is a lovely story." || got.ImprovementSuggestions[0] != parseFailureNote {
		t.Errorf("unexpected fallback %+v", got)
	}
}

func TestWritingFeedback(t *testing.T) {
	h := newHarness(t, genFunc(func(string, string) (string, error) {
		return `Here you go: {"strengths": ["vivid"], "next_steps": ["revise"]}`, nil
	}))
	userID, sessionID := h.userAndSession(t)

	got, err := h.svc.WritingFeedback(context.Background(), userID, sessionID, "Sarah stood at the cliff.", "plot")
	if err != nil {
		t.Fatalf("WritingFeedback: %v", err)
	}
	if got.Strengths[0] != "vivid" || got.NextSteps[0] != "revise" || got.PlotSuggestions == nil {
		t.Errorf("unexpected feedback %+v", got)
	}
}

func TestCheckPlotContinuity_PublishesAndAlerts(t *testing.T) {
	h := newHarness(t, genFunc(func(system, _ string) (string, error) {
		if strings.Contains(system, "story analyst") {
			return `{"characters": [{"name": "Luna", "traits": ["brave"]}]}`, nil
		}
		return `{"issues_found": [{"type": "character_consistency", "severity": "high", "description": "eye colour changed", "suggestion": "pick one"}], "positive_elements": ["pacing"], "overall_assessment": "ok"}`, nil
	}))
	userID, _ := h.userAndSession(t)

	report, err := h.svc.CheckPlotContinuity(context.Background(), userID, "", "Luna's green eyes shone.", "Chapter 2")
	if err != nil {
		t.Fatalf("CheckPlotContinuity: %v", err)
	}
	if report.DocumentID != userID.String() {
		t.Errorf("expected document id to default to the user id, got %q", report.DocumentID)
	}
	if len(h.alerts.reports) != 1 {
		t.Errorf("expected one slack alert, got %d", len(h.alerts.reports))
	}

	var evt hermes.ContinuityCheckedEvent
	for i, s := range h.pub.subjects {
		if s == hermes.SubjectContinuityChecked {
			evt = h.pub.payloads[i].(hermes.ContinuityCheckedEvent)
		}
	}
	if evt.HighSeverity != 1 || evt.Chapter != "Chapter 2" {
		t.Errorf("unexpected continuity event %+v", evt)
	}

	tasks, err := h.svc.AgentTasks(context.Background(), userID.String(), "")
	if err != nil || len(tasks) != 3 {
		t.Errorf("expected 3 logged tasks, got %d (%v)", len(tasks), err)
	}
}

func TestCheckPlotContinuity_UnknownUser(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.svc.CheckPlotContinuity(context.Background(), uuid.New(), "doc", "text", ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
