package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgergate/ledgergate/internal/companies"
	"github.com/ledgergate/ledgergate/internal/dashboard"
	jobmetrics "github.com/ledgergate/ledgergate/internal/jobs"
)

// TreeSnapshotJob rebuilds the company tree snapshot and busts dependent
// caches. Runs after administrative writes and on a cron as a safety net.
type TreeSnapshotJob struct {
	Tree      *companies.TreeProvider
	Dashboard *dashboard.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewTreeSnapshotJob wires dependencies for the snapshot handler.
func NewTreeSnapshotJob(tree *companies.TreeProvider, dash *dashboard.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *TreeSnapshotJob {
	return &TreeSnapshotJob{Tree: tree, Dashboard: dash, Logger: logger, Metrics: metrics}
}

// Handle processes tree snapshot tasks.
func (j *TreeSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Tree == nil {
		return errors.New("tree snapshot: handler not configured")
	}

	tracker := j.metrics().Track(TaskTreeSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger()

	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := j.Tree.Rebuild(jobCtx); err != nil {
		resultErr = err
		logger.Error("rebuild tree snapshot", slog.Any("error", err))
		return resultErr
	}
	if j.Dashboard != nil {
		if err := j.Dashboard.Invalidate(jobCtx); err != nil {
			resultErr = err
			logger.Error("bump dashboard cache", slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed tree snapshot rebuild", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *TreeSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTreeSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskTreeSnapshot))
}

func (j *TreeSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
