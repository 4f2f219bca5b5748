package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"whale-ingest/internal/storage/postgres"
)

// RunPostgresMigrations brings the whale-transfer schema up to date by
// executing the embedded SQL files in filename order. Every file uses
// IF NOT EXISTS guards, so reapplying on each startup is safe.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	names, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, name := range names {
		data, err := fs.ReadFile(PostgresFS, "postgres/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		stmt := strings.TrimSpace(string(data))
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}

	return nil
}

// sqlFiles lists the .sql entries of an embedded migration directory,
// sorted so numeric filename prefixes determine apply order.
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
