package jobs

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportExport renders a queued report export to PDF.
	TaskReportExport = "report:export"
	// TaskReportExportsPurge removes exports past their retention.
	TaskReportExportsPurge = "report:exports-purge"
)

// ErrInvalidPayload marks a task whose payload cannot be processed.
var ErrInvalidPayload = errors.New("jobs: invalid payload")

// ReportExportPayload identifies the export row to process.
type ReportExportPayload struct {
	ExportID string `json:"export_id"`
}

// ReportExportsPurgePayload carries the retention applied by the purge run.
type ReportExportsPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewReportExportTask constructs the export task. Exports are never retried.
func NewReportExportTask(payload ReportExportPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.ExportID) == "" {
		return nil, ErrInvalidPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportExport, data, asynq.MaxRetry(0), asynq.Queue(QueueDefault)), nil
}

// ParseReportExportPayload decodes and validates an export task payload.
func ParseReportExportPayload(t *asynq.Task) (ReportExportPayload, error) {
	var payload ReportExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return ReportExportPayload{}, ErrInvalidPayload
	}
	if strings.TrimSpace(payload.ExportID) == "" {
		return ReportExportPayload{}, ErrInvalidPayload
	}
	return payload, nil
}

// NewReportExportsPurgeTask constructs the purge task.
func NewReportExportsPurgeTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		return nil, ErrInvalidPayload
	}
	data, err := json.Marshal(ReportExportsPurgePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportExportsPurge, data, asynq.MaxRetry(1), asynq.Queue(QueueDefault)), nil
}

// ParseReportExportsPurgePayload decodes the purge payload.
func ParseReportExportsPurgePayload(t *asynq.Task) (ReportExportsPurgePayload, error) {
	var payload ReportExportsPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Retention <= 0 {
		return ReportExportsPurgePayload{}, ErrInvalidPayload
	}
	return payload, nil
}
