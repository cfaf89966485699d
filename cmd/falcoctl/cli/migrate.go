package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/falco-investigation/falco/internal/platform/db"
)

// RunMigrations applies the pending files of fsys and prints one line per
// applied migration.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, out io.Writer) error {
	applied, err := db.Migrate(ctx, pool, fsys)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		_, err = fmt.Fprintln(out, "schema up to date")
		return err
	}
	for _, name := range applied {
		if _, err := fmt.Fprintf(out, "applied %s\n", name); err != nil {
			return err
		}
	}
	return nil
}
