package continuity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/MikeSquared-Agency/scribe/internal/models"
)

// TaskLog is the append-only per-document continuity log. Implementations
// assign Seq and CreatedAt on append.
type TaskLog interface {
	AppendTask(ctx context.Context, t models.AgentTask) (models.AgentTask, error)
	ListTasks(ctx context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error)
}

// MemoryLog is an in-process TaskLog.
type MemoryLog struct {
	mu    sync.RWMutex
	seq   int64
	tasks map[string][]models.AgentTask
	now   func() time.Time
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{tasks: make(map[string][]models.AgentTask), now: time.Now}
}

func (l *MemoryLog) AppendTask(_ context.Context, t models.AgentTask) (models.AgentTask, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Seq = l.seq
	t.CreatedAt = l.now().UTC()
	l.tasks[t.DocumentID] = append(l.tasks[t.DocumentID], t)
	return t, nil
}

func (l *MemoryLog) ListTasks(_ context.Context, documentID string, taskType models.TaskType) ([]models.AgentTask, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.AgentTask
	for _, t := range l.tasks[documentID] {
		if taskType == "" || t.Type == taskType {
			out = append(out, t)
		}
	}
	return out, nil
}
