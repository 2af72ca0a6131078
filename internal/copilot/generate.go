package copilot

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/classifier"
	"github.com/MikeSquared-Agency/scribe/internal/llmjson"
	"github.com/MikeSquared-Agency/scribe/internal/models"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
)

const parseFailureNote = "The analysis response could not be parsed."

type WritingSuggestion struct {
	Suggestion  string `json:"writing_suggestion"`
	ContextUsed string `json:"context_used"`
}

// WritingAssist answers a free-form writing request using the user's
// documents as context.
func (s *Service) WritingAssist(ctx context.Context, userID, sessionID uuid.UUID, prompt string) (*WritingSuggestion, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt required: %w", models.ErrInvalidInput)
	}
	system, err := s.authorize(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	contextText := s.Context.ForWriting(ctx, userID, prompt)
	text, err := s.complete(ctx, system, assistPrompt(contextText, prompt), assistMaxTokens)
	if err != nil {
		return nil, err
	}
	return &WritingSuggestion{Suggestion: strings.TrimSpace(text), ContextUsed: contextText}, nil
}

type AutoSuggestion struct {
	Suggestions     []string `json:"suggestions"`
	SuggestionType  string   `json:"suggestion_type"`
	ConfidenceScore float64  `json:"confidence_score"`
	ContextUsed     string   `json:"context_used"`
	QueryUsed       string   `json:"query_used"`
}

// AutoSuggest classifies the writing at cursor and asks for three short
// continuations grounded on the user's documents. A negative cursor means
// the end of text.
func (s *Service) AutoSuggest(ctx context.Context, userID, sessionID uuid.UUID, text string, cursor int) (*AutoSuggestion, error) {
	system, err := s.authorize(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.autoSuggest(ctx, system, userID, text, cursor)
}

func (s *Service) autoSuggest(ctx context.Context, system string, userID uuid.UUID, text string, cursor int) (*AutoSuggestion, error) {
	ic := s.Context.Intelligent(ctx, userID, text, cursor)
	contextText := retrieval.FormatItems(ic.Items)

	raw, err := s.complete(ctx, system, suggestPrompt(contextText, beforeCursor(text, cursor), ic.Classification.Type), suggestMaxTokens)
	if err != nil {
		return nil, err
	}
	return &AutoSuggestion{
		Suggestions:     parseSuggestions(raw, ic.Classification.Type),
		SuggestionType:  ic.Classification.Type,
		ConfidenceScore: ic.Classification.Confidence,
		ContextUsed:     contextText,
		QueryUsed:       ic.Query,
	}, nil
}

type PlotInsights struct {
	HasAnalysis      bool     `json:"has_analysis"`
	OverallScore     float64  `json:"overall_score"`
	PlotImprovements []string `json:"plot_improvements"`
}

type EnhancedSuggestion struct {
	TextSuggestions []string     `json:"text_suggestions"`
	SuggestionType  string       `json:"suggestion_type"`
	ConfidenceScore float64      `json:"confidence_score"`
	ContextUsed     string       `json:"context_used"`
	QueryUsed       string       `json:"query_used"`
	PlotInsights    PlotInsights `json:"plot_insights"`
}

// EnhancedAutoSuggest runs an auto-suggest and a story analysis side by
// side. Only the suggestion is required; a failed analysis leaves
// has_analysis false.
func (s *Service) EnhancedAutoSuggest(ctx context.Context, userID, sessionID uuid.UUID, text string, cursor int) (*EnhancedSuggestion, error) {
	system, err := s.authorize(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var (
		suggestion *AutoSuggestion
		insights   = PlotInsights{PlotImprovements: []string{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		suggestion, err = s.autoSuggest(gctx, system, userID, text, cursor)
		return err
	})
	g.Go(func() error {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		analysis, ok, err := s.analyze(gctx, system, beforeCursor(text, cursor), "plot")
		if err != nil || !ok {
			s.logger.Warn("plot insights unavailable", "user_id", userID, "error", err)
			return nil
		}
		insights = PlotInsights{
			HasAnalysis:      true,
			OverallScore:     analysis.OverallScore,
			PlotImprovements: analysis.ImprovementSuggestions,
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &EnhancedSuggestion{
		TextSuggestions: suggestion.Suggestions,
		SuggestionType:  suggestion.SuggestionType,
		ConfidenceScore: suggestion.ConfidenceScore,
		ContextUsed:     suggestion.ContextUsed,
		QueryUsed:       suggestion.QueryUsed,
		PlotInsights:    insights,
	}, nil
}

type StoryAnalysis struct {
	OverallScore           float64        `json:"overall_score"`
	PlotAnalysis           map[string]any `json:"plot_analysis"`
	WritingQuality         map[string]any `json:"writing_quality"`
	ImprovementSuggestions []string       `json:"improvement_suggestions"`
}

// AnalyzeStory scores a story excerpt. Unparseable model output yields a
// fallback analysis carrying the raw response.
func (s *Service) AnalyzeStory(ctx context.Context, userID, sessionID uuid.UUID, text, analysisType string) (*StoryAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text chunk required: %w", models.ErrInvalidInput)
	}
	if analysisType == "" {
		analysisType = "comprehensive"
	}
	system, err := s.authorize(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	analysis, _, err := s.analyze(ctx, system, text, analysisType)
	return analysis, err
}

func (s *Service) analyze(ctx context.Context, system, text, analysisType string) (*StoryAnalysis, bool, error) {
	raw, err := s.complete(ctx, system, analysisPrompt(text, analysisType), analysisMaxTokens)
	if err != nil {
		return nil, false, err
	}

	var a StoryAnalysis
	if err := llmjson.Decode(raw, &a); err != nil {
		s.logger.Warn("failed to parse story analysis", "error", err, "raw", llmjson.Truncate(raw, 500))
		return &StoryAnalysis{
			PlotAnalysis:           map[string]any{"raw_analysis": llmjson.Truncate(raw, 500)},
			WritingQuality:         map[string]any{},
			ImprovementSuggestions: []string{parseFailureNote},
		}, false, nil
	}
	if a.PlotAnalysis == nil {
		a.PlotAnalysis = map[string]any{}
	}
	if a.WritingQuality == nil {
		a.WritingQuality = map[string]any{}
	}
	if a.ImprovementSuggestions == nil {
		a.ImprovementSuggestions = []string{}
	}
	return &a, true, nil
}

type WritingFeedback struct {
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
	PlotSuggestions     []string `json:"plot_suggestions"`
	CharacterInsights   []string `json:"character_insights"`
	StyleFeedback       []string `json:"style_feedback"`
	NextSteps           []string `json:"next_steps"`
}

// WritingFeedback coaches the writer on their current text. Unparseable
// model output yields generic feedback with the raw response as a style note.
func (s *Service) WritingFeedback(ctx context.Context, userID, sessionID uuid.UUID, text, focus string) (*WritingFeedback, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("current text required: %w", models.ErrInvalidInput)
	}
	if focus == "" {
		focus = "general"
	}
	system, err := s.authorize(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	contextText := s.Context.ForWriting(ctx, userID, text)
	raw, err := s.complete(ctx, system, feedbackPrompt(contextText, text, focus), feedbackMaxTokens)
	if err != nil {
		return nil, err
	}

	var fb WritingFeedback
	if err := llmjson.Decode(raw, &fb); err != nil {
		s.logger.Warn("failed to parse writing feedback", "error", err, "raw", llmjson.Truncate(raw, 500))
		return &WritingFeedback{
			Strengths:           []string{},
			AreasForImprovement: []string{},
			PlotSuggestions:     []string{},
			CharacterInsights:   []string{},
			StyleFeedback:       []string{llmjson.Truncate(strings.TrimSpace(raw), 500)},
			NextSteps:           []string{"Keep writing and request feedback again."},
		}, nil
	}
	for _, list := range []*[]string{&fb.Strengths, &fb.AreasForImprovement, &fb.PlotSuggestions, &fb.CharacterInsights, &fb.StyleFeedback, &fb.NextSteps} {
		if *list == nil {
			*list = []string{}
		}
	}
	return &fb, nil
}

func (s *Service) complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.LLM.Complete(ctx, system, anthropic.UserMessage(prompt), maxTokens)
	if err != nil {
		s.logger.Error("generation failed", "error", err)
		return "", fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}
	return text, nil
}

// parseSuggestions reads the suggestion list from model output. Output that
// is not the expected JSON is split into lines instead. Short lists are
// padded with stock suggestions for suggestionType so there are always
// suggestionCount entries.
func parseSuggestions(raw, suggestionType string) []string {
	var resp struct {
		Suggestions []string `json:"suggestions"`
	}
	var out []string
	trim := strings.TrimSpace
	if err := llmjson.Decode(raw, &resp); err == nil {
		out = resp.Suggestions
	} else {
		out = strings.Split(raw, "\n")
		trim = stripListMarker
	}

	suggestions := make([]string, 0, suggestionCount)
	for _, s := range out {
		if s = trim(s); s == "" {
			continue
		}
		suggestions = append(suggestions, s)
		if len(suggestions) == suggestionCount {
			return suggestions
		}
	}

	stock, ok := fallbackSuggestions[suggestionType]
	if !ok {
		stock = fallbackSuggestions[classifier.Continuation]
	}
	for _, s := range stock {
		if len(suggestions) == suggestionCount {
			break
		}
		if !slices.Contains(suggestions, s) {
			suggestions = append(suggestions, s)
		}
	}
	return suggestions
}

// stripListMarker removes a leading "1.", "2)", "-" or "*" from a line.
func stripListMarker(line string) string {
	line = strings.TrimSpace(line)
	trimmed := strings.TrimLeft(line, "0123456789")
	if len(trimmed) < len(line) && (strings.HasPrefix(trimmed, ".") || strings.HasPrefix(trimmed, ")")) {
		line = trimmed[1:]
	} else if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
		line = line[1:]
	}
	return strings.TrimSpace(line)
}

func beforeCursor(text string, cursor int) string {
	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		return text
	}
	return string(runes[:cursor])
}
