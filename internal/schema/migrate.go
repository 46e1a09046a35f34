// Package schema owns the normalized jobdb schema and its migrations.
package schema

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
)

// Name is the schema holding the normalized entities.
const Name = "jobdb"

// Table returns the schema-qualified name of a jobdb table.
func Table(name string) string {
	return Name + "." + name
}

// migrationLock is the transaction-scoped advisory lock key that
// serializes concurrent migrate runs.
const migrationLock = 4817220

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies pending SQL migrations in lexicographic order inside a
// single transaction. It creates the jobdb schema and the
// schema_migrations tracking table if needed and returns the files applied.
// timeout bounds the whole transaction.
func Migrate(ctx context.Context, pool db.Pool, timeout time.Duration) ([]string, error) {
	log := zap.L().With(zap.String("component", "schema.migrate"))

	names, err := migrationNames()
	if err != nil {
		return nil, err
	}

	var done []string
	err = db.WithTx(ctx, pool, timeout, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
			return eris.Wrap(err, "schema: acquire migration advisory lock")
		}
		if err := ensureMigrationTable(ctx, tx); err != nil {
			return err
		}
		applied, err := appliedMigrations(ctx, tx)
		if err != nil {
			return err
		}

		for _, name := range names {
			if applied[name] {
				continue
			}
			data, err := migrationFS.ReadFile("migrations/" + name)
			if err != nil {
				return eris.Wrapf(err, "schema: read migration %s", name)
			}

			log.Info("applying migration", zap.String("file", name))
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return eris.Wrapf(err, "schema: apply migration %s", name)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO jobdb.schema_migrations (filename, applied_at) VALUES ($1, now())",
				name,
			); err != nil {
				return eris.Wrapf(err, "schema: record migration %s", name)
			}
			done = append(done, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("schema up to date", zap.Int("applied", len(done)), zap.Int("total", len(names)))
	return done, nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "schema: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func ensureMigrationTable(ctx context.Context, q db.Querier) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS jobdb;
		CREATE TABLE IF NOT EXISTS jobdb.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := q.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "schema: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, q db.Querier) (map[string]bool, error) {
	rows, err := q.Query(ctx, "SELECT filename FROM jobdb.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "schema: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "schema: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
