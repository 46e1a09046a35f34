// Package staging manages the run-scoped intermediate tables that hold
// source-shaped company and job rows between loading and transformation.
package staging

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
)

// ErrSetup marks a fatal failure to create or verify the staging tables.
// It is never retried automatically.
var ErrSetup = eris.New("staging: setup failed")

// SetupError carries the cause of a setup failure. It matches ErrSetup
// under errors.Is and unwraps to the cause.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return ErrSetup.Error() + ": " + e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func (e *SetupError) Is(target error) bool {
	return target == ErrSetup
}

// DefaultSchema is the staging schema used when none is configured.
const DefaultSchema = "jobdb_staging"

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidSchema reports whether name can be used unquoted as a schema name.
func ValidSchema(name string) bool {
	return identRe.MatchString(name)
}

// Store is the handle for one pipeline run's staging tables. Each handle
// owns a schema, so runs with different schemas do not interfere.
type Store struct {
	pool      db.Pool
	schema    string
	txTimeout time.Duration
}

// New creates a staging handle rooted at schema. txTimeout bounds the
// setup transaction of Prepare.
func New(pool db.Pool, schema string, txTimeout time.Duration) (*Store, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if !ValidSchema(schema) {
		return nil, eris.Errorf("staging: invalid schema name %q", schema)
	}
	return &Store{pool: pool, schema: schema, txTimeout: txTimeout}, nil
}

// Pool returns the connection pool the handle writes through.
func (s *Store) Pool() db.Pool { return s.pool }

// Schema returns the staging schema name.
func (s *Store) Schema() string { return s.schema }

// Table returns the schema-qualified name of a staging table.
func (s *Store) Table(name string) string {
	return s.schema + "." + name
}

// Prepare creates the staging schema and tables when absent, verifies their
// shape, and truncates every row. It is safe to call at the start of every
// run, including after a crashed one.
func (s *Store) Prepare(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "staging.prepare"), zap.String("schema", s.schema))

	err := db.WithTx(ctx, s.pool, s.txTimeout, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+s.schema); err != nil {
			return eris.Wrapf(err, "staging: create schema %s", s.schema)
		}
		for _, t := range Tables {
			sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.Table(t.Name), t.DDL)
			if _, err := tx.Exec(ctx, sql); err != nil {
				return eris.Wrapf(err, "staging: create table %s", s.Table(t.Name))
			}
		}
		if err := s.verify(ctx, tx); err != nil {
			return err
		}

		names := make([]string, len(Tables))
		for i, t := range Tables {
			names[i] = s.Table(t.Name)
		}
		if _, err := tx.Exec(ctx, "TRUNCATE "+strings.Join(names, ", ")+" RESTART IDENTITY"); err != nil {
			return eris.Wrap(err, "staging: truncate tables")
		}
		return nil
	})
	if err != nil {
		log.Error("staging setup failed", zap.Error(err))
		return &SetupError{Err: err}
	}

	log.Info("staging tables ready", zap.Int("tables", len(Tables)))
	return nil
}

// verify checks that every table exposes the columns its DDL declares.
// A table left behind by an older layout fails here rather than midway
// through a load.
func (s *Store) verify(ctx context.Context, q db.Querier) error {
	rows, err := q.Query(ctx,
		`SELECT table_name, column_name FROM information_schema.columns
		 WHERE table_schema = $1`,
		s.schema,
	)
	if err != nil {
		return eris.Wrap(err, "staging: read table columns")
	}
	defer rows.Close()

	have := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return eris.Wrap(err, "staging: scan table column")
		}
		if have[table] == nil {
			have[table] = make(map[string]bool)
		}
		have[table][column] = true
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "staging: iterate table columns")
	}

	for _, t := range Tables {
		for _, col := range t.Columns() {
			if !have[t.Name][col] {
				return eris.Errorf("staging: table %s is missing column %s", s.Table(t.Name), col)
			}
		}
	}
	return nil
}

// Teardown drops the staging schema and everything in it.
func (s *Store) Teardown(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+s.schema+" CASCADE"); err != nil {
		return eris.Wrapf(err, "staging: drop schema %s", s.schema)
	}
	zap.L().Info("staging schema dropped", zap.String("schema", s.schema))
	return nil
}

// Count is the row count of one staging table.
type Count struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Counts returns the row count of every staging table, sorted by table name.
func (s *Store) Counts(ctx context.Context) ([]Count, error) {
	out := make([]Count, 0, len(Tables))
	for _, t := range Tables {
		var n int64
		if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+s.Table(t.Name)).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "staging: count %s", s.Table(t.Name))
		}
		out = append(out, Count{Table: t.Name, Rows: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out, nil
}

// Columns returns the column names declared in the table's DDL.
func (t Table) Columns() []string {
	defs := strings.Split(t.DDL, ",\n")
	cols := make([]string, 0, len(defs))
	for _, d := range defs {
		if f := strings.Fields(d); len(f) > 0 {
			cols = append(cols, f[0])
		}
	}
	return cols
}
