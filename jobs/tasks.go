package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup recomputes the staff dashboards into Redis.
	TaskDashboardWarmup = "dashboard:warmup"
	// TaskTreeSnapshot rebuilds the company tree snapshot.
	TaskTreeSnapshot = "companies:snapshot"
)

// DashboardWarmupPayload parametrises a warmup run.
type DashboardWarmupPayload struct {
	// Bump invalidates cached dashboards before recomputing them.
	Bump bool `json:"bump"`
}

// NewDashboardWarmupTask constructs an Asynq task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}

// NewTreeSnapshotTask constructs an Asynq task.
func NewTreeSnapshotTask() *asynq.Task {
	return asynq.NewTask(TaskTreeSnapshot, nil)
}
