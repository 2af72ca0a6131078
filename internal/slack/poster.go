package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/continuity"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostContinuityAlert posts the high severity findings of a continuity
// report and threads the recommendations under it. Returns the message
// timestamp.
func (p *Poster) PostContinuityAlert(ctx context.Context, report *continuity.Report) (string, error) {
	text := formatContinuityAlert(report)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("Document `%s` | agent %s", report.DocumentID, report.AgentStatus),
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted continuity alert to slack", "ts", ts, "document_id", report.DocumentID)

	if len(report.Recommendations) > 0 {
		if err := p.PostThread(ctx, ts, "*Recommendations*\n• "+strings.Join(report.Recommendations, "\n• ")); err != nil {
			p.logger.Warn("failed to post recommendations thread", "error", err, "ts", ts)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatContinuityAlert(report *continuity.Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Continuity check:* %s\n", report.ChapterLabel)

	high := report.HighSeverity()
	if len(high) == 0 {
		sb.WriteString("_No high severity continuity issues._")
		return sb.String()
	}

	fmt.Fprintf(&sb, "*High severity issues: %d*\n", len(high))
	for i, f := range high {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, f.IssueType, f.Description)
		if f.Suggestion != "" {
			fmt.Fprintf(&sb, "   Suggestion: %s\n", f.Suggestion)
		}
	}
	if report.OverallAssessment != "" {
		fmt.Fprintf(&sb, "\n%s", report.OverallAssessment)
	}
	return sb.String()
}
