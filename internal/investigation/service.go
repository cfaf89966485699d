package investigation

import (
	"context"
	"errors"
	"log/slog"
)

// ReportStore is the persistence surface used by Service.
type ReportStore interface {
	Latest(ctx context.Context, userID int64) (Report, error)
	Get(ctx context.Context, id string, userID int64) (Report, error)
	Insert(ctx context.Context, userID int64, data InvestigationData) (Report, error)
	Update(ctx context.Context, id string, userID int64, data InvestigationData) error
}

// Service loads and saves reports on behalf of a user.
type Service struct {
	repo   ReportStore
	logger *slog.Logger
}

// NewService constructs the report service.
func NewService(repo ReportStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Latest returns the most recently updated report of the user. The boolean is
// false when the user has no report yet.
func (s *Service) Latest(ctx context.Context, userID int64) (Report, bool, error) {
	rep, err := s.repo.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return Report{}, false, nil
		}
		return Report{}, false, err
	}
	return rep, true, nil
}

// Get loads a report owned by the user.
func (s *Service) Get(ctx context.Context, id string, userID int64) (Report, error) {
	return s.repo.Get(ctx, id, userID)
}

// Save inserts when reportID is empty and updates otherwise.
func (s *Service) Save(ctx context.Context, userID int64, reportID string, data InvestigationData) (string, error) {
	if reportID == "" {
		rep, err := s.repo.Insert(ctx, userID, data)
		if err != nil {
			return "", err
		}
		s.logger.Debug("report inserted", slog.String("report_id", rep.ID), slog.Int64("user_id", userID))
		return rep.ID, nil
	}
	if err := s.repo.Update(ctx, reportID, userID, data); err != nil {
		return "", err
	}
	return reportID, nil
}

// SaverFor binds Save to one user.
func (s *Service) SaverFor(userID int64) Saver {
	return SaverFunc(func(ctx context.Context, reportID string, data InvestigationData) (string, error) {
		return s.Save(ctx, userID, reportID, data)
	})
}
