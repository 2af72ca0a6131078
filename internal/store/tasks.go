package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// AppendTask writes a continuity log entry. The database assigns seq and
// created_at, which fixes ordering for concurrent writers.
func (s *Store) AppendTask(ctx context.Context, t models.AgentTask) (models.AgentTask, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_tasks (id, document_id, task_type, status, label, input, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, created_at`,
		t.ID, t.DocumentID, string(t.Type), string(t.Status), t.Label, nullJSON(t.Input), nullJSON(t.Output), t.Error,
	).Scan(&t.Seq, &t.CreatedAt)
	if err != nil {
		return t, fmt.Errorf("insert agent task: %w", err)
	}
	return t, nil
}

// ListTasks returns a document's log in append order. An empty taskType
// returns every entry.
func (s *Store) ListTasks(ctx context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, seq, task_type, status, label, input, output, error, created_at
		FROM agent_tasks
		WHERE document_id = $1 AND ($2 = '' OR task_type = $2)
		ORDER BY seq`,
		documentID, string(taskType),
	)
	if err != nil {
		return nil, fmt.Errorf("list agent tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.AgentTask
	for rows.Next() {
		var t models.AgentTask
		var typ, status string
		var input, output []byte
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Seq, &typ, &status, &t.Label, &input, &output, &t.Error, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent task: %w", err)
		}
		t.Type = models.TaskType(typ)
		t.Status = models.TaskStatus(status)
		t.Input = input
		t.Output = output
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
