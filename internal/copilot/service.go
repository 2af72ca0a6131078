package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/continuity"
	"github.com/MikeSquared-Agency/scribe/internal/models"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
	"github.com/MikeSquared-Agency/scribe/internal/session"
)

const DefaultDomain = "creative"

// DefaultDomains maps each writing domain to its system prompt.
var DefaultDomains = map[string]string{
	"creative":  "You are a creative writing assistant. Help with stories, characters, plots, and imaginative prose.",
	"technical": "You are a technical writing assistant. Focus on clarity, structure, accuracy, and proper terminology.",
	"legal":     "You are a legal writing assistant. Provide formal tone, cite precedents, and ensure legal accuracy.",
}

type Users interface {
	CreateUser(ctx context.Context, name, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Documents interface {
	CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc models.Document) (*models.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, ownerID uuid.UUID) ([]models.Document, error)
}

type Ingester interface {
	Ingest(ctx context.Context, doc models.Document) (processor.Result, error)
}

type ContextSource interface {
	ForWriting(ctx context.Context, owner uuid.UUID, prompt string) string
	Intelligent(ctx context.Context, owner uuid.UUID, text string, cursor int) retrieval.IntelligentContext
}

type Sessions interface {
	session.Store
	Start(ctx context.Context, userID uuid.UUID, domain string) (session.Session, error)
}

type ContinuityAgent interface {
	CheckPlotContinuity(ctx context.Context, documentID, storyText, chapterInfo string) (*continuity.Report, error)
	StorySummary(ctx context.Context, documentID string) (continuity.Summary, error)
	ContinuityHistory(ctx context.Context, documentID string) ([]continuity.HistoryEntry, error)
	StoryTimeline(ctx context.Context, documentID string) ([]continuity.TimelineEntry, error)
	Tasks(ctx context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

type Alerter interface {
	PostContinuityAlert(ctx context.Context, report *continuity.Report) (string, error)
}

// Deps are the collaborators of a Service. Publisher and Alerter may be nil.
type Deps struct {
	Users      Users
	Documents  Documents
	Ingester   Ingester
	Context    ContextSource
	Sessions   Sessions
	LLM        anthropic.Generator
	Continuity ContinuityAgent
	Publisher  Publisher
	Alerter    Alerter
}

// Service is the writing copilot: it owns user, document and session
// bookkeeping and turns retrieved context into model suggestions.
type Service struct {
	Deps
	domains map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a Service. A nil or empty domains map uses DefaultDomains.
func New(d Deps, domains map[string]string, generationTimeout time.Duration, logger *slog.Logger) *Service {
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	if generationTimeout <= 0 {
		generationTimeout = 120 * time.Second
	}
	return &Service{Deps: d, domains: domains, timeout: generationTimeout, logger: logger}
}

func (s *Service) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("name and email required: %w", models.ErrInvalidInput)
	}
	u, err := s.Users.CreateUser(ctx, name, email)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", "user_id", u.ID)
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.Users.GetUser(ctx, id)
}

// DomainInfo describes the writing domains a session can be started in.
type DomainInfo struct {
	Domains       []string `json:"domains"`
	DefaultDomain string   `json:"default_domain"`
	DocumentKinds []string `json:"document_types"`
	Features      []string `json:"features"`
}

func (s *Service) DomainInfo() DomainInfo {
	names := make([]string, 0, len(s.domains))
	for name := range s.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return DomainInfo{
		Domains:       names,
		DefaultDomain: DefaultDomain,
		DocumentKinds: []string{string(models.KindPlot), string(models.KindCharacter), string(models.KindBookIdea), string(models.KindStory)},
		Features: []string{
			"writing_assist",
			"auto_suggest",
			"enhanced_auto_suggest",
			"analyze_story",
			"writing_feedback",
			"plot_continuity_check",
		},
	}
}

// SelectDomain starts a session for user in domain. An empty domain is the
// creative domain.
func (s *Service) SelectDomain(ctx context.Context, userID uuid.UUID, domain string) (session.Session, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		domain = DefaultDomain
	}
	if _, ok := s.domains[domain]; !ok {
		return session.Session{}, fmt.Errorf("unknown domain %q: %w", domain, models.ErrInvalidInput)
	}
	if _, err := s.Users.GetUser(ctx, userID); err != nil {
		return session.Session{}, err
	}
	sess, err := s.Sessions.Start(ctx, userID, domain)
	if err != nil {
		return session.Session{}, fmt.Errorf("start session: %w", err)
	}
	s.logger.Info("session started", "user_id", userID, "session_id", sess.ID, "domain", domain)
	return sess, nil
}

// authorize checks that user exists and owns the session, and returns the
// session's system prompt.
func (s *Service) authorize(ctx context.Context, userID, sessionID uuid.UUID) (string, error) {
	if _, err := s.Users.GetUser(ctx, userID); err != nil {
		return "", err
	}
	sess, err := session.Authorize(ctx, s.Sessions, sessionID, userID)
	if err != nil {
		return "", err
	}
	prompt, ok := s.domains[sess.Domain]
	if !ok {
		prompt = s.domains[DefaultDomain]
	}
	return prompt, nil
}

// NewDocument is the input of CreateDocument.
type NewDocument struct {
	OwnerID uuid.UUID
	Title   string
	Kind    models.DocumentKind
	Body    string
}

// DocumentPatch updates the non-nil fields of a document owned by UserID.
type DocumentPatch struct {
	UserID uuid.UUID
	Title  *string
	Kind   *models.DocumentKind
	Body   *string
}

// IngestedDocument is a stored document together with the embeddings its
// latest ingest produced.
type IngestedDocument struct {
	Document  *models.Document `json:"document"`
	Embedding processor.Result `json:"embedding"`
}

func (s *Service) CreateDocument(ctx context.Context, in NewDocument) (*IngestedDocument, error) {
	if in.Kind == "" {
		in.Kind = models.KindStory
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("document type %q: %w", in.Kind, models.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Body) == "" {
		return nil, fmt.Errorf("title and content required: %w", models.ErrInvalidInput)
	}
	if _, err := s.Users.GetUser(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	doc, err := s.Documents.CreateDocument(ctx, models.Document{
		OwnerID: in.OwnerID,
		Title:   strings.TrimSpace(in.Title),
		Kind:    in.Kind,
		Body:    in.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return s.ingest(ctx, doc)
}

// UpdateDocument applies patch and regenerates the document's embeddings
// when its title, kind or body changed.
func (s *Service) UpdateDocument(ctx context.Context, id uuid.UUID, patch DocumentPatch) (*IngestedDocument, error) {
	doc, err := s.Documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != patch.UserID {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrForbidden)
	}

	updated := *doc
	if patch.Title != nil {
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Kind != nil {
		updated.Kind = *patch.Kind
	}
	if patch.Body != nil {
		updated.Body = *patch.Body
	}
	if !updated.Kind.Valid() {
		return nil, fmt.Errorf("document type %q: %w", updated.Kind, models.ErrInvalidInput)
	}
	if updated.Title == "" || strings.TrimSpace(updated.Body) == "" {
		return nil, fmt.Errorf("title and content required: %w", models.ErrInvalidInput)
	}
	if updated.Title == doc.Title && updated.Kind == doc.Kind && updated.Body == doc.Body {
		return &IngestedDocument{Document: doc, Embedding: processor.Result{DocumentID: doc.ID}}, nil
	}

	saved, err := s.Documents.UpdateDocument(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return s.ingest(ctx, saved)
}

func (s *Service) ingest(ctx context.Context, doc *models.Document) (*IngestedDocument, error) {
	res, err := s.Ingester.Ingest(ctx, *doc)
	if err != nil {
		// the document row is kept; a later update or change event re-embeds it
		s.logger.Error("document embedding failed", "document_id", doc.ID, "error", err)
	}
	return &IngestedDocument{Document: doc, Embedding: res}, nil
}

func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.Documents.GetDocument(ctx, id)
}

func (s *Service) ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	if _, err := s.Users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	docs, err := s.Documents.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}
