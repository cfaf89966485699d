package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// NewMigrator builds a goose provider over the versioned *.sql files of fsys.
// Files carry goose annotations and are named <version>_<name>.sql.
func NewMigrator(sqlDB *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("platform/db: load migrations: %w", err)
	}
	return provider, nil
}

// Migrate applies the pending migrations through the pool and returns the
// names it applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := NewMigrator(sqlDB, fsys)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	applied := make([]string, 0, len(results))
	for _, res := range results {
		if res.Source != nil && res.Error == nil {
			applied = append(applied, migrationName(res.Source.Path))
		}
	}
	if err != nil {
		return applied, fmt.Errorf("platform/db: apply migrations: %w", err)
	}
	return applied, nil
}

func migrationName(p string) string {
	return strings.TrimSuffix(path.Base(p), ".sql")
}
