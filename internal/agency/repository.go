package agency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads agency profiles from the profiles table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the user's profile or None when no row exists.
func (r *Repository) Get(ctx context.Context, userID int64) (Optional, error) {
	if r == nil || r.pool == nil {
		return None(), fmt.Errorf("agency: repository not initialised")
	}
	const query = `SELECT COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(agency_name,''),
COALESCE(agency_address,''), COALESCE(agency_phone,''), COALESCE(agency_email,''),
COALESCE(agency_website,''), COALESCE(agency_logo_url,'')
FROM profiles WHERE user_id = $1`
	var p Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.FirstName, &p.LastName, &p.AgencyName,
		&p.AgencyAddress, &p.AgencyPhone, &p.AgencyEmail,
		&p.AgencyWebsite, &p.AgencyLogoURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return None(), nil
		}
		return None(), err
	}
	return Some(p), nil
}
