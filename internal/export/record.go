package export

import (
	"errors"
	"strings"
	"time"
)

// Status captures the state of a queued export.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
)

// Record is a row of report_exports.
type Record struct {
	ID            string     `json:"id"`
	UserID        int64      `json:"-"`
	ReportID      string     `json:"reportId"`
	Status        Status     `json:"status"`
	Filename      string     `json:"filename,omitempty"`
	ObjectPath    string     `json:"-"`
	FileSize      *int64     `json:"fileSize,omitempty"`
	PageCount     *int       `json:"pageCount,omitempty"`
	DroppedImages int        `json:"droppedImages"`
	ErrorMessage  string     `json:"error,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Artefact is the outcome written back when an export completes.
type Artefact struct {
	Filename      string
	ObjectPath    string
	FileSize      int64
	PageCount     int
	DroppedImages int
	CompletedAt   time.Time
}

var (
	ErrExportNotFound = errors.New("export: export not found")
	ErrInvalidStatus  = errors.New("export: invalid status transition")
	ErrNotReady       = errors.New("export: export not ready")
	ErrReportUnsaved  = errors.New("export: report has not been saved yet")
)

// NormaliseStatus uppercases and trims the provided status string.
func NormaliseStatus(v string) Status {
	v = strings.TrimSpace(strings.ToUpper(v))
	switch Status(v) {
	case StatusPending, StatusInProgress, StatusReady, StatusFailed:
		return Status(v)
	default:
		return StatusPending
	}
}

func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "unknown error"
	}
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
