package continuity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/llmjson"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

const (
	StatusActive   = "active"
	StatusDegraded = "degraded"

	invalidFormatNote = "Response format was invalid"
	assessmentLimit   = 500
	rawLogLimit       = 2000
)

// Agent tracks story elements across the chapters of a document and checks
// new chapters against them. All writes for one document are serialized.
type Agent struct {
	llm     anthropic.Generator
	log     TaskLog
	locks   *lockManager
	timeout time.Duration
	logger  *slog.Logger
}

func New(llm anthropic.Generator, log TaskLog, timeout time.Duration, logger *slog.Logger) *Agent {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Agent{
		llm:     llm,
		log:     log,
		locks:   newLockManager(),
		timeout: timeout,
		logger:  logger,
	}
}

// AddStoryContext records a chapter submission. An empty label becomes
// "Chapter N". Repeated submissions are all kept.
func (a *Agent) AddStoryContext(ctx context.Context, documentID, content, label string) (models.AgentTask, error) {
	if documentID == "" {
		return models.AgentTask{}, fmt.Errorf("document id required: %w", models.ErrInvalidInput)
	}
	var task models.AgentTask
	err := a.locks.withLock(documentID, func() error {
		var err error
		task, err = a.addStoryContext(ctx, documentID, content, label)
		return err
	})
	return task, err
}

func (a *Agent) addStoryContext(ctx context.Context, documentID, content, label string) (models.AgentTask, error) {
	if strings.TrimSpace(label) == "" {
		prior, err := a.log.ListTasks(ctx, documentID, models.TaskStoryContext)
		if err != nil {
			return models.AgentTask{}, fmt.Errorf("list story context: %w", err)
		}
		label = fmt.Sprintf("Chapter %d", len(prior)+1)
	}

	task, err := a.log.AppendTask(ctx, models.AgentTask{
		DocumentID: documentID,
		Type:       models.TaskStoryContext,
		Status:     models.TaskCompleted,
		Label:      label,
		Input:      mustJSON(storyContext{ChapterLabel: label, Content: content}),
	})
	if err != nil {
		return models.AgentTask{}, fmt.Errorf("append story context: %w", err)
	}
	return task, nil
}

// ExtractElements asks the model for the story elements in text. It never
// fails: a gateway or parse failure records a failed task and returns an
// empty extraction.
func (a *Agent) ExtractElements(ctx context.Context, documentID, text, label string) Extraction {
	var ex Extraction
	if documentID == "" {
		a.logger.Warn("element extraction skipped, no document id", "chapter", label)
		return ex
	}
	_ = a.locks.withLock(documentID, func() error {
		ex, _ = a.extract(ctx, documentID, text, label)
		return nil
	})
	return ex
}

func (a *Agent) extract(ctx context.Context, documentID, text, label string) (Extraction, bool) {
	task := models.AgentTask{
		DocumentID: documentID,
		Type:       models.TaskElementExtraction,
		Label:      label,
		Input:      mustJSON(map[string]int{"text_length": len(text)}),
	}

	raw, err := a.complete(ctx, extractionSystemPrompt, fmt.Sprintf(extractionUserPrompt, label, text), 4096)
	var ex Extraction
	if err == nil {
		err = llmjson.Decode(raw, &ex)
	}
	if err != nil {
		a.logger.Warn("element extraction failed",
			"document_id", documentID,
			"chapter", label,
			"error", err,
		)
		task.Status = models.TaskFailed
		task.Error = err.Error()
		task.Output = mustJSON(failure{Raw: llmjson.Truncate(raw, rawLogLimit)})
		a.append(ctx, task)
		return Extraction{}, false
	}

	for i := range ex.TimelineEvents {
		if ex.TimelineEvents[i].Chapter == "" {
			ex.TimelineEvents[i].Chapter = label
		}
	}
	task.Status = models.TaskCompleted
	task.Output = mustJSON(ex)
	a.append(ctx, task)

	a.logger.Info("elements extracted",
		"document_id", documentID,
		"chapter", label,
		"characters", len(ex.Characters),
		"locations", len(ex.Locations),
		"plot_threads", len(ex.PlotThreads),
	)
	return ex, true
}

type llmIssue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

type llmAnalysis struct {
	IssuesFound       []llmIssue `json:"issues_found"`
	PositiveElements  []string   `json:"positive_elements"`
	OverallAssessment string     `json:"overall_assessment"`
}

// AnalyzeContinuity compares newContent against the document's full history
// in a single model call. A failed call or unparseable response yields an
// analysis with no issues and the raw response as its assessment.
func (a *Agent) AnalyzeContinuity(ctx context.Context, documentID, newContent, label string) Analysis {
	if documentID == "" {
		a.logger.Warn("continuity analysis skipped, no document id", "chapter", label)
		return Analysis{
			IssuesFound:       []Finding{},
			PositiveElements:  []string{},
			OverallAssessment: "document id required",
		}
	}
	var analysis Analysis
	_ = a.locks.withLock(documentID, func() error {
		analysis = a.analyze(ctx, documentID, newContent, label, 0)
		return nil
	})
	return analysis
}

// analyze only includes chapters appended before seq `before`; zero means all.
func (a *Agent) analyze(ctx context.Context, documentID, content, label string, before int64) Analysis {
	tasks, err := a.log.ListTasks(ctx, documentID, "")
	if err != nil {
		a.logger.Warn("failed to load continuity history", "document_id", documentID, "error", err)
	}
	if before > 0 {
		tasks = tasksBefore(tasks, before)
	}
	model, _ := fold(tasks)
	established, _ := json.MarshalIndent(model.snapshot(), "", "  ")
	prompt := fmt.Sprintf(analysisUserPrompt, established, formatChapters(tasks), label, content)

	task := models.AgentTask{
		DocumentID: documentID,
		Type:       models.TaskContinuityCheck,
		Label:      label,
		Input:      mustJSON(map[string]int{"text_length": len(content)}),
	}

	raw, err := a.complete(ctx, analysisSystemPrompt, prompt, 4096)
	var resp llmAnalysis
	if err == nil {
		err = llmjson.Decode(raw, &resp)
	}

	var analysis Analysis
	if err != nil {
		a.logger.Warn("continuity analysis failed",
			"document_id", documentID,
			"chapter", label,
			"error", err,
		)
		assessment := raw
		if assessment == "" {
			assessment = err.Error()
		}
		analysis = Analysis{
			IssuesFound:       []Finding{},
			PositiveElements:  []string{invalidFormatNote},
			OverallAssessment: llmjson.Truncate(assessment, assessmentLimit),
		}
		task.Status = models.TaskFailed
		task.Error = err.Error()
	} else {
		analysis = normalizeAnalysis(resp, documentID, label)
		task.Status = models.TaskCompleted
	}
	task.Output = mustJSON(analysis)
	a.append(ctx, task)
	return analysis
}

func normalizeAnalysis(resp llmAnalysis, documentID, label string) Analysis {
	out := Analysis{
		IssuesFound:       make([]Finding, 0, len(resp.IssuesFound)),
		PositiveElements:  resp.PositiveElements,
		OverallAssessment: resp.OverallAssessment,
		Valid:             true,
	}
	if out.PositiveElements == nil {
		out.PositiveElements = []string{}
	}
	for _, is := range resp.IssuesFound {
		out.IssuesFound = append(out.IssuesFound, Finding{
			DocumentID:   documentID,
			ChapterLabel: label,
			IssueType:    normalizeIssueType(is.Type),
			Severity:     normalizeSeverity(is.Severity),
			Description:  is.Description,
			Suggestion:   is.Suggestion,
		})
	}
	return out
}

func normalizeIssueType(s string) string {
	switch t := strings.ToLower(strings.TrimSpace(s)); t {
	case IssueCharacterConsistency, IssueTimeline, IssuePlotContinuity, IssueWorldBuilding:
		return t
	default:
		return IssuePlotContinuity
	}
}

func normalizeSeverity(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return v
	default:
		return SeverityMedium
	}
}

// documentTasks returns the document's full log. A document is known once a
// chapter has been submitted for it; otherwise ErrNotFound.
func (a *Agent) documentTasks(ctx context.Context, documentID string) ([]models.AgentTask, error) {
	tasks, err := a.log.ListTasks(ctx, documentID, "")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if len(filterTasks(tasks, models.TaskStoryContext)) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	return tasks, nil
}

func filterTasks(tasks []models.AgentTask, taskType models.TaskType) []models.AgentTask {
	out := []models.AgentTask{}
	for _, t := range tasks {
		if taskType == "" || t.Type == taskType {
			out = append(out, t)
		}
	}
	return out
}

// StorySummary aggregates every completed extraction for the document.
func (a *Agent) StorySummary(ctx context.Context, documentID string) (Summary, error) {
	tasks, err := a.documentTasks(ctx, documentID)
	if err != nil {
		return Summary{}, err
	}
	model, chapters := fold(tasks)
	return model.summary(documentID, chapters), nil
}

// ContinuityHistory returns past continuity checks, newest first.
func (a *Agent) ContinuityHistory(ctx context.Context, documentID string) ([]HistoryEntry, error) {
	all, err := a.documentTasks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tasks := filterTasks(all, models.TaskContinuityCheck)
	out := make([]HistoryEntry, 0, len(tasks))
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		entry := HistoryEntry{Seq: t.Seq, ChapterLabel: t.Label, Status: t.Status, CheckedAt: t.CreatedAt}
		if len(t.Output) > 0 {
			if err := json.Unmarshal(t.Output, &entry.Analysis); err != nil {
				a.logger.Warn("skipping unreadable continuity check", "document_id", documentID, "seq", t.Seq, "error", err)
				continue
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// StoryTimeline returns extracted timeline events grouped by chapter, oldest first.
func (a *Agent) StoryTimeline(ctx context.Context, documentID string) ([]TimelineEntry, error) {
	tasks, err := a.documentTasks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := []TimelineEntry{}
	for _, t := range filterTasks(tasks, models.TaskElementExtraction) {
		ex, ok := completedExtraction(t)
		if !ok {
			continue
		}
		events := ex.TimelineEvents
		if events == nil {
			events = []TimelineEvent{}
		}
		out = append(out, TimelineEntry{Seq: t.Seq, ChapterLabel: t.Label, RecordedAt: t.CreatedAt, Events: events})
	}
	return out, nil
}

// Tasks lists the document's log in append order, optionally filtered by type.
// Unknown documents return ErrNotFound.
func (a *Agent) Tasks(ctx context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error) {
	switch taskType {
	case "", models.TaskStoryContext, models.TaskElementExtraction, models.TaskContinuityCheck:
	default:
		return nil, fmt.Errorf("unknown task type %q: %w", taskType, models.ErrInvalidInput)
	}
	tasks, err := a.documentTasks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return filterTasks(tasks, taskType), nil
}

// CheckPlotContinuity runs the full cycle for one chapter: record it,
// extract its elements, analyze it against prior chapters and summarize.
func (a *Agent) CheckPlotContinuity(ctx context.Context, documentID, storyText, chapterInfo string) (*Report, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id required: %w", models.ErrInvalidInput)
	}
	if strings.TrimSpace(storyText) == "" {
		return nil, fmt.Errorf("story text required: %w", models.ErrInvalidInput)
	}

	var report *Report
	err := a.locks.withLock(documentID, func() error {
		prior, err := a.log.ListTasks(ctx, documentID, "")
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		before, _ := fold(prior)

		ctxTask, err := a.addStoryContext(ctx, documentID, storyText, chapterInfo)
		if err != nil {
			return err
		}
		label := ctxTask.Label

		ex, extracted := a.extract(ctx, documentID, storyText, label)
		analysis := a.analyze(ctx, documentID, storyText, label, ctxTask.Seq)

		summary, err := a.StorySummary(ctx, documentID)
		if err != nil {
			return err
		}

		report = &Report{
			DocumentID:        documentID,
			ChapterLabel:      label,
			AgentStatus:       StatusActive,
			StorySummary:      summary,
			NewElementsFound:  newElements(before, ex),
			ContinuityIssues:  analysis.IssuesFound,
			PositiveElements:  analysis.PositiveElements,
			OverallAssessment: analysis.OverallAssessment,
		}
		if !extracted || !analysis.Valid {
			report.AgentStatus = StatusDegraded
		}
		report.Recommendations = recommendations(report, extracted, analysis.Valid)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("continuity check complete",
		"document_id", documentID,
		"chapter", report.ChapterLabel,
		"issues", len(report.ContinuityIssues),
		"agent_status", report.AgentStatus,
	)
	return report, nil
}

func newElements(before *storyModel, ex Extraction) NewElements {
	ne := NewElements{Characters: []string{}, PlotThreads: []string{}, Locations: []string{}}
	seen := make(map[string]bool)
	for _, c := range ex.Characters {
		key := "c:" + normalize(c.Name)
		if normalize(c.Name) != "" && !before.hasCharacter(c.Name) && !seen[key] {
			seen[key] = true
			ne.Characters = append(ne.Characters, strings.TrimSpace(c.Name))
		}
	}
	for _, t := range ex.PlotThreads {
		key := "t:" + normalize(t.Description)
		if normalize(t.Description) != "" && !before.hasThread(t.Description) && !seen[key] {
			seen[key] = true
			ne.PlotThreads = append(ne.PlotThreads, strings.TrimSpace(t.Description))
		}
	}
	for _, l := range ex.Locations {
		key := "l:" + normalize(l.Name)
		if normalize(l.Name) != "" && !before.hasLocation(l.Name) && !seen[key] {
			seen[key] = true
			ne.Locations = append(ne.Locations, strings.TrimSpace(l.Name))
		}
	}
	return ne
}

const maxActiveThreads = 5

func recommendations(r *Report, extracted, analyzed bool) []string {
	var recs []string
	if !extracted {
		recs = append(recs, "Story elements could not be extracted from this chapter; continuity tracking may be incomplete.")
	}
	if !analyzed {
		recs = append(recs, "The continuity analysis could not be completed; re-run the check for this chapter.")
	}
	if high := len(r.HighSeverity()); high > 0 {
		recs = append(recs, fmt.Sprintf("Resolve %d high-severity continuity issue(s) before writing the next chapter.", high))
	}
	if n := len(r.ContinuityIssues) - len(r.HighSeverity()); n > 0 {
		recs = append(recs, fmt.Sprintf("Review %d lower-severity continuity note(s) during revision.", n))
	}
	if n := r.StorySummary.ActivePlotThreads; n > maxActiveThreads {
		recs = append(recs, fmt.Sprintf("%d plot threads are still open; consider resolving some before introducing new ones.", n))
	}
	if len(r.NewElementsFound.Characters) > 0 {
		recs = append(recs, "Develop the newly introduced characters: "+strings.Join(r.NewElementsFound.Characters, ", ")+".")
	}
	if extracted && analyzed && len(r.ContinuityIssues) == 0 {
		recs = append(recs, "No continuity issues found; keep building on the established story elements.")
	}
	return recs
}

// fold builds the story model from a task list and counts chapter submissions.
func fold(tasks []models.AgentTask) (*storyModel, int) {
	m := newStoryModel()
	chapters := 0
	for _, t := range tasks {
		switch t.Type {
		case models.TaskStoryContext:
			chapters++
		case models.TaskElementExtraction:
			if ex, ok := completedExtraction(t); ok {
				m.add(ex)
			}
		}
	}
	return m, chapters
}

func completedExtraction(t models.AgentTask) (Extraction, bool) {
	if t.Type != models.TaskElementExtraction || t.Status != models.TaskCompleted {
		return Extraction{}, false
	}
	var ex Extraction
	if err := json.Unmarshal(t.Output, &ex); err != nil {
		return Extraction{}, false
	}
	return ex, true
}

func tasksBefore(tasks []models.AgentTask, seq int64) []models.AgentTask {
	var out []models.AgentTask
	for _, t := range tasks {
		if t.Seq < seq {
			out = append(out, t)
		}
	}
	return out
}

func formatChapters(tasks []models.AgentTask) string {
	var sb strings.Builder
	for _, t := range tasks {
		if t.Type != models.TaskStoryContext {
			continue
		}
		var sc storyContext
		if err := json.Unmarshal(t.Input, &sc); err != nil {
			continue
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", t.Label, sc.Content)
	}
	if sb.Len() == 0 {
		return "(none)"
	}
	return sb.String()
}

func (a *Agent) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.llm.Complete(ctx, system, anthropic.UserMessage(user), maxTokens)
}

func (a *Agent) append(ctx context.Context, t models.AgentTask) {
	if _, err := a.log.AppendTask(ctx, t); err != nil {
		a.logger.Error("failed to record agent task",
			"document_id", t.DocumentID,
			"task_type", t.Type,
			"error", err,
		)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
