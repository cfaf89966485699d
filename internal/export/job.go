package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/falco-investigation/falco/internal/jobs"
	"github.com/falco-investigation/falco/jobs"
)

// Job processes queued export tasks.
type Job struct {
	service   *Service
	metrics   *jobmetrics.Metrics
	retention time.Duration
	logger    *slog.Logger
}

// NewJob constructs the worker handlers.
func NewJob(service *Service, metrics *jobmetrics.Metrics, retention time.Duration, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{service: service, metrics: metrics, retention: retention, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract for report:export.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return fmt.Errorf("export job not configured")
	}
	payload, err := jobs.ParseReportExportPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	err = j.metrics.Track("report_export").End(j.service.Process(ctx, payload.ExportID))
	if errors.Is(err, ErrExportNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// HandlePurge fulfils the asynq.HandlerFunc contract for report:exports-purge.
func (j *Job) HandlePurge(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return fmt.Errorf("export job not configured")
	}
	retention := j.retention
	if payload, err := jobs.ParseReportExportsPurgePayload(task); err == nil {
		retention = payload.Retention
	}
	tracker := j.metrics.Track("report_exports_purge")
	removed, err := j.service.Purge(ctx, retention)
	if err != nil {
		return tracker.End(err)
	}
	j.metrics.AddPurged(removed)
	j.logger.Info("expired exports purged", slog.Int("removed", removed), slog.Duration("retention", retention))
	return tracker.End(nil)
}

// Handlers lists the task handlers to register on the worker.
func (j *Job) Handlers() []jobs.TaskHandler {
	return []jobs.TaskHandler{
		{Type: jobs.TaskReportExport, Handler: j.Handle},
		{Type: jobs.TaskReportExportsPurge, Handler: j.HandlePurge},
	}
}
