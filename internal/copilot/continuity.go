package copilot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/continuity"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// CheckPlotContinuity checks a chapter against the earlier chapters of a
// document. An empty documentID tracks the story under the user's id.
func (s *Service) CheckPlotContinuity(ctx context.Context, userID uuid.UUID, documentID, storyText, chapterInfo string) (*continuity.Report, error) {
	if _, err := s.Users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if documentID == "" {
		documentID = userID.String()
	}

	report, err := s.Continuity.CheckPlotContinuity(ctx, documentID, storyText, chapterInfo)
	if err != nil {
		return nil, err
	}

	high := report.HighSeverity()
	if s.Publisher != nil {
		evt := hermes.ContinuityCheckedEvent{
			DocumentID:   report.DocumentID,
			UserID:       userID.String(),
			Chapter:      report.ChapterLabel,
			AgentStatus:  report.AgentStatus,
			Issues:       len(report.ContinuityIssues),
			HighSeverity: len(high),
			CheckedAt:    time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.Publisher.Publish(hermes.SubjectContinuityChecked, evt); err != nil {
			s.logger.Warn("failed to publish continuity event", "document_id", documentID, "error", err)
		}
	}
	if s.Alerter != nil && len(high) > 0 {
		if _, err := s.Alerter.PostContinuityAlert(ctx, report); err != nil {
			s.logger.Warn("failed to post continuity alert", "document_id", documentID, "error", err)
		}
	}
	return report, nil
}

func (s *Service) StorySummary(ctx context.Context, documentID string) (continuity.Summary, error) {
	return s.Continuity.StorySummary(ctx, documentID)
}

func (s *Service) ContinuityHistory(ctx context.Context, documentID string) ([]continuity.HistoryEntry, error) {
	return s.Continuity.ContinuityHistory(ctx, documentID)
}

func (s *Service) StoryTimeline(ctx context.Context, documentID string) ([]continuity.TimelineEntry, error) {
	return s.Continuity.StoryTimeline(ctx, documentID)
}

func (s *Service) AgentTasks(ctx context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error) {
	return s.Continuity.Tasks(ctx, documentID, taskType)
}
