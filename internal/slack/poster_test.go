package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MikeSquared-Agency/scribe/internal/continuity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport() *continuity.Report {
	return &continuity.Report{
		DocumentID:   "doc-1",
		ChapterLabel: "Chapter 3",
		AgentStatus:  "active",
		ContinuityIssues: []continuity.Finding{
			{IssueType: continuity.IssueCharacterConsistency, Severity: continuity.SeverityHigh, Description: "Luna's eyes were blue in chapter 1", Suggestion: "Keep her eyes blue"},
			{IssueType: continuity.IssueTimeline, Severity: continuity.SeverityLow, Description: "Minor date drift"},
		},
		OverallAssessment: "Mostly consistent.",
		Recommendations:   []string{"Review character descriptions"},
	}
}

func TestFormatContinuityAlert_HighOnly(t *testing.T) {
	msg := formatContinuityAlert(sampleReport())

	checks := []string{
		"Chapter 3",
		"High severity issues: 1",
		"[character_consistency] Luna's eyes were blue",
		"Suggestion: Keep her eyes blue",
		"Mostly consistent.",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q", check)
		}
	}
	if strings.Contains(msg, "Minor date drift") {
		t.Error("low severity findings should not be posted")
	}
}

func TestFormatContinuityAlert_NoHigh(t *testing.T) {
	msg := formatContinuityAlert(&continuity.Report{ChapterLabel: "Chapter 1"})
	if !strings.Contains(msg, "No high severity") {
		t.Errorf("expected empty message, got %q", msg)
	}
}

func TestPostContinuityAlert_Success(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostContinuityAlert(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("expected alert and recommendations thread, got %d posts", len(payloads))
	}
	if payloads[1]["thread_ts"] != ts {
		t.Errorf("expected thread reply to %s, got %v", ts, payloads[1]["thread_ts"])
	}
	if !strings.Contains(payloads[1]["text"].(string), "Review character descriptions") {
		t.Errorf("unexpected thread text %v", payloads[1]["text"])
	}
}

func TestPostContinuityAlert_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	if _, err := p.PostContinuityAlert(context.Background(), sampleReport()); err == nil {
		t.Fatal("expected error for slack error response")
	}
}
