package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/falco-investigation/falco/internal/agency"
	"github.com/falco-investigation/falco/internal/blob"
	"github.com/falco-investigation/falco/internal/investigation"
)

// RecordStore is the persistence surface of queued exports.
type RecordStore interface {
	Insert(ctx context.Context, userID int64, reportID string) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, userID int64, limit int) ([]Record, error)
	MarkInProgress(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string, a Artefact) error
	MarkFailed(ctx context.Context, id string, msg string) error
	ListExpired(ctx context.Context, cutoff time.Time) ([]Record, error)
	FailStale(ctx context.Context, before time.Time, msg string) (int, error)
	Delete(ctx context.Context, ids []string) (int, error)
}

// DefaultStaleAfter is how long an export may stay IN_PROGRESS before it is
// considered abandoned by a crashed worker.
const DefaultStaleAfter = 30 * time.Minute

const staleMessage = "worker interrupted"

// Enqueuer hands an export to the worker.
type Enqueuer interface {
	EnqueueReportExport(ctx context.Context, exportID string) error
}

// ReportLoader loads a persisted report.
type ReportLoader interface {
	Get(ctx context.Context, id string, userID int64) (investigation.Report, error)
}

// ProfileLoader loads the agency profile of a user.
type ProfileLoader interface {
	Load(ctx context.Context, userID int64) (agency.Optional, error)
}

// Exporter renders a report to PDF.
type Exporter interface {
	Export(ctx context.Context, data investigation.InvestigationData, profile agency.Optional) (Result, error)
}

// ServiceConfig wires the export service.
type ServiceConfig struct {
	Records  RecordStore
	Queue    Enqueuer
	Reports  ReportLoader
	Profiles ProfileLoader
	Exporter Exporter
	Blobs    blob.Store
	Logger   *slog.Logger
	Now      func() time.Time
	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration
}

// Service runs synchronous exports and manages queued ones.
type Service struct {
	records  RecordStore
	queue    Enqueuer
	reports  ReportLoader
	profiles ProfileLoader
	exporter Exporter
	blobs    blob.Store
	logger   *slog.Logger
	now      func() time.Time

	staleAfter time.Duration
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Service{
		records:  cfg.Records,
		queue:    cfg.Queue,
		reports:  cfg.Reports,
		profiles: cfg.Profiles,
		exporter: cfg.Exporter,
		blobs:    cfg.Blobs,
		logger:   cfg.Logger,
		now:      cfg.Now,

		staleAfter: cfg.StaleAfter,
	}
}

// Render exports the given report data of the user right away.
func (s *Service) Render(ctx context.Context, userID int64, data investigation.InvestigationData) (Result, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	return s.exporter.Export(ctx, data, profile)
}

// Request records a pending export of a saved report and queues it.
func (s *Service) Request(ctx context.Context, userID int64, reportID string) (Record, error) {
	if strings.TrimSpace(reportID) == "" {
		return Record{}, ErrReportUnsaved
	}
	if _, err := s.reports.Get(ctx, reportID, userID); err != nil {
		return Record{}, err
	}
	rec, err := s.records.Insert(ctx, userID, reportID)
	if err != nil {
		return Record{}, err
	}
	if s.queue == nil {
		return rec, nil
	}
	if err := s.queue.EnqueueReportExport(ctx, rec.ID); err != nil {
		if markErr := s.records.MarkFailed(ctx, rec.ID, "enqueue: "+err.Error()); markErr != nil {
			s.logger.Error("mark export failed", slog.String("export_id", rec.ID), slog.Any("error", markErr))
		}
		return Record{}, fmt.Errorf("export: enqueue: %w", err)
	}
	return rec, nil
}

// List returns the newest exports of the user.
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]Record, error) {
	return s.records.List(ctx, userID, limit)
}

// Get loads an export owned by the user.
func (s *Service) Get(ctx context.Context, id string, userID int64) (Record, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.UserID != userID {
		return Record{}, ErrExportNotFound
	}
	return rec, nil
}

// Open returns the PDF of a ready export.
func (s *Service) Open(ctx context.Context, id string, userID int64) (io.ReadCloser, Record, error) {
	rec, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, Record{}, err
	}
	if rec.Status != StatusReady || rec.ObjectPath == "" {
		return nil, Record{}, ErrNotReady
	}
	rc, _, err := s.blobs.Open(ctx, blob.BucketReportExports, rec.ObjectPath)
	if err != nil {
		return nil, Record{}, err
	}
	return rc, rec, nil
}

// Process renders a pending export. Exports that are already running or
// finished are left alone.
func (s *Service) Process(ctx context.Context, id string) error {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending {
		s.logger.Info("export already handled", slog.String("export_id", id), slog.String("status", string(rec.Status)))
		return nil
	}
	if err := s.records.MarkInProgress(ctx, id); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			return nil
		}
		return err
	}
	artefact, err := s.produce(ctx, rec)
	if err != nil {
		if markErr := s.records.MarkFailed(context.WithoutCancel(ctx), id, err.Error()); markErr != nil {
			s.logger.Error("mark export failed", slog.String("export_id", id), slog.Any("error", markErr))
		}
		return err
	}
	if err := s.records.MarkReady(ctx, id, artefact); err != nil {
		return err
	}
	s.logger.Info("export ready", slog.String("export_id", id), slog.String("file", artefact.ObjectPath))
	return nil
}

func (s *Service) produce(ctx context.Context, rec Record) (Artefact, error) {
	rep, err := s.reports.Get(ctx, rec.ReportID, rec.UserID)
	if err != nil {
		return Artefact{}, err
	}
	res, err := s.Render(ctx, rec.UserID, rep.Data)
	if err != nil {
		return Artefact{}, err
	}
	objectPath := strconv.FormatInt(rec.UserID, 10) + "/" + rec.ID + ".pdf"
	obj, err := s.blobs.Put(ctx, blob.BucketReportExports, objectPath, bytes.NewReader(res.PDF), "application/pdf")
	if err != nil {
		return Artefact{}, fmt.Errorf("export: store pdf: %w", err)
	}
	return Artefact{
		Filename:      res.Filename,
		ObjectPath:    obj.Path,
		FileSize:      obj.Size,
		PageCount:     res.Pages,
		DroppedImages: res.DroppedImages,
		CompletedAt:   s.now(),
	}, nil
}

// RecoverStale fails exports left IN_PROGRESS longer than the stale window,
// so a crashed worker never pins a row forever.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	n, err := s.records.FailStale(ctx, s.now().Add(-s.staleAfter), staleMessage)
	if err != nil {
		return 0, fmt.Errorf("export: recover stale exports: %w", err)
	}
	if n > 0 {
		s.logger.Warn("stale exports failed", slog.Int("count", n), slog.Duration("stale_after", s.staleAfter))
	}
	return n, nil
}

// Purge fails stale exports, then deletes exports created more than
// retention ago together with their files.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("export: retention must be positive")
	}
	if _, err := s.RecoverStale(ctx); err != nil {
		s.logger.Error("purge exports", slog.Any("error", err))
	}
	expired, err := s.records.ListExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(expired))
	for _, rec := range expired {
		if rec.ObjectPath != "" {
			err := s.blobs.Delete(ctx, blob.BucketReportExports, rec.ObjectPath)
			if err != nil && !errors.Is(err, blob.ErrNotFound) {
				s.logger.Warn("purge export file", slog.String("export_id", rec.ID), slog.Any("error", err))
				continue
			}
		}
		ids = append(ids, rec.ID)
	}
	return s.records.Delete(ctx, ids)
}

func (s *Service) profile(ctx context.Context, userID int64) (agency.Optional, error) {
	if s.profiles == nil {
		return agency.None(), nil
	}
	profile, err := s.profiles.Load(ctx, userID)
	if err != nil {
		s.logger.Warn("load agency profile", slog.Int64("user_id", userID), slog.Any("error", err))
		return agency.None(), nil
	}
	return profile, nil
}
