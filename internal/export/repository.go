package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists queued exports in report_exports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id::text, user_id, report_id::text, status, COALESCE(filename,''), COALESCE(object_path,''),
file_size, page_count, dropped_images, error_message, completed_at, created_at, updated_at`

// Insert creates a pending export.
func (r *Repository) Insert(ctx context.Context, userID int64, reportID string) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, fmt.Errorf("export: repository not initialised")
	}
	query := `INSERT INTO report_exports (user_id, report_id, status)
VALUES ($1, $2::uuid, 'PENDING')
RETURNING ` + recordColumns
	return scanRecord(r.pool.QueryRow(ctx, query, userID, reportID))
}

// Get loads one export by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, fmt.Errorf("export: repository not initialised")
	}
	query := `SELECT ` + recordColumns + ` FROM report_exports WHERE id = $1::uuid`
	return scanRecord(r.pool.QueryRow(ctx, query, id))
}

// List returns the newest exports of the user.
func (r *Repository) List(ctx context.Context, userID int64, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("export: repository not initialised")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + recordColumns + `
FROM report_exports
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkInProgress transitions a pending export to in-progress.
func (r *Repository) MarkInProgress(ctx context.Context, id string) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("export: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_exports
SET status = 'IN_PROGRESS', updated_at = NOW()
WHERE id = $1::uuid AND status = 'PENDING'`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkReady stores the artefact location of a finished export.
func (r *Repository) MarkReady(ctx context.Context, id string, a Artefact) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("export: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_exports
SET status = 'READY', filename = $2, object_path = $3, file_size = $4, page_count = $5,
    dropped_images = $6, completed_at = $7, error_message = NULL, updated_at = NOW()
WHERE id = $1::uuid AND status = 'IN_PROGRESS'`,
		id, a.Filename, a.ObjectPath, a.FileSize, a.PageCount, a.DroppedImages, a.CompletedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkFailed records the failure message.
func (r *Repository) MarkFailed(ctx context.Context, id string, msg string) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("export: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_exports
SET status = 'FAILED', error_message = $2, completed_at = NOW(), updated_at = NOW()
WHERE id = $1::uuid`, id, truncateError(msg))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrExportNotFound
	}
	return nil
}

// FailStale marks IN_PROGRESS exports untouched since before as FAILED.
func (r *Repository) FailStale(ctx context.Context, before time.Time, msg string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("export: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_exports
SET status = 'FAILED', error_message = $2, completed_at = NOW(), updated_at = NOW()
WHERE status = 'IN_PROGRESS' AND updated_at < $1`, before, truncateError(msg))
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

// ListExpired returns finished or never-started exports created before the
// cutoff. IN_PROGRESS rows are left to FailStale.
func (r *Repository) ListExpired(ctx context.Context, cutoff time.Time) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("export: repository not initialised")
	}
	query := `SELECT ` + recordColumns + `
FROM report_exports
WHERE created_at < $1 AND status IN ('PENDING', 'READY', 'FAILED')
ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes export rows.
func (r *Repository) Delete(ctx context.Context, ids []string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("export: repository not initialised")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM report_exports WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func scanRecord(row interface{ Scan(dest ...any) error }) (Record, error) {
	var rec Record
	var status string
	var fileSize sql.NullInt64
	var pageCount sql.NullInt32
	var errMsg sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ReportID,
		&status,
		&rec.Filename,
		&rec.ObjectPath,
		&fileSize,
		&pageCount,
		&rec.DroppedImages,
		&errMsg,
		&completedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrExportNotFound
		}
		return Record{}, err
	}
	rec.Status = NormaliseStatus(status)
	if fileSize.Valid {
		v := fileSize.Int64
		rec.FileSize = &v
	}
	if pageCount.Valid {
		v := int(pageCount.Int32)
		rec.PageCount = &v
	}
	if errMsg.Valid {
		rec.ErrorMessage = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}
