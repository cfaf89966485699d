package investigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists reports in investigation_reports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reportColumns = `id::text, user_id, report_data, created_at, updated_at`

// Latest returns the most recently updated report of the user.
func (r *Repository) Latest(ctx context.Context, userID int64) (Report, error) {
	if r == nil || r.pool == nil {
		return Report{}, fmt.Errorf("investigation: repository not initialised")
	}
	query := `SELECT ` + reportColumns + `
FROM investigation_reports
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT 1`
	return scanReport(r.pool.QueryRow(ctx, query, userID))
}

// Get loads one report owned by the user.
func (r *Repository) Get(ctx context.Context, id string, userID int64) (Report, error) {
	if r == nil || r.pool == nil {
		return Report{}, fmt.Errorf("investigation: repository not initialised")
	}
	query := `SELECT ` + reportColumns + `
FROM investigation_reports
WHERE id = $1::uuid AND user_id = $2`
	return scanReport(r.pool.QueryRow(ctx, query, id, userID))
}

// Insert stores a new report row and returns it.
func (r *Repository) Insert(ctx context.Context, userID int64, data InvestigationData) (Report, error) {
	if r == nil || r.pool == nil {
		return Report{}, fmt.Errorf("investigation: repository not initialised")
	}
	payload, err := json.Marshal(data.Normalize())
	if err != nil {
		return Report{}, fmt.Errorf("investigation: encode report: %w", err)
	}
	query := `INSERT INTO investigation_reports (user_id, report_data)
VALUES ($1, $2)
RETURNING ` + reportColumns
	return scanReport(r.pool.QueryRow(ctx, query, userID, payload))
}

// Update overwrites the report data of a row owned by the user. Last write wins.
func (r *Repository) Update(ctx context.Context, id string, userID int64, data InvestigationData) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("investigation: repository not initialised")
	}
	payload, err := json.Marshal(data.Normalize())
	if err != nil {
		return fmt.Errorf("investigation: encode report: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE investigation_reports
SET report_data = $3, updated_at = NOW()
WHERE id = $1::uuid AND user_id = $2`, id, userID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (Report, error) {
	var (
		rep     Report
		payload []byte
	)
	if err := row.Scan(&rep.ID, &rep.UserID, &payload, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, ErrReportNotFound
		}
		return Report{}, err
	}
	data, err := DecodeData(payload)
	if err != nil {
		return Report{}, err
	}
	rep.Data = data
	return rep, nil
}

// DecodeData parses a stored report blob. Keys absent from the blob keep the
// defaults of Empty.
func DecodeData(payload []byte) (InvestigationData, error) {
	data := Empty()
	if len(payload) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return InvestigationData{}, fmt.Errorf("investigation: decode report: %w", err)
	}
	return data.Normalize(), nil
}
