package staging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// columnRows returns information_schema rows for every declared column,
// optionally leaving one out.
func columnRows(skipTable, skipColumn string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"table_name", "column_name"})
	for _, tbl := range Tables {
		for _, col := range tbl.Columns() {
			if tbl.Name == skipTable && col == skipColumn {
				continue
			}
			rows.AddRow(tbl.Name, col)
		}
	}
	return rows
}

func expectCreate(mock pgxmock.PgxPoolIface, schema string) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS " + schema).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	for _, tbl := range Tables {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + schema + "." + tbl.Name + " \\(").
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
}

func TestNew_SchemaValidation(t *testing.T) {
	s, err := New(nil, "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchema, s.Schema())

	for _, bad := range []string{"Staging", "1abc", "a-b", "a;drop", "a.b"} {
		_, err := New(nil, bad, 0)
		assert.Error(t, err, bad)
	}
}

func TestStore_Table(t *testing.T) {
	s, err := New(nil, "run_42", 0)
	require.NoError(t, err)
	assert.Equal(t, "run_42.company_market", s.Table(CompanyMarket))
}

func TestPrepare_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectCreate(mock, "jobdb_staging")
	mock.ExpectQuery("SELECT table_name, column_name FROM information_schema.columns").
		WithArgs("jobdb_staging").
		WillReturnRows(columnRows("", ""))
	mock.ExpectExec("TRUNCATE jobdb_staging.company, jobdb_staging.company_market, .* RESTART IDENTITY").
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCommit()

	s, err := New(mock, "jobdb_staging", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepare_MalformedTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectCreate(mock, "jobdb_staging")
	mock.ExpectQuery("SELECT table_name, column_name FROM information_schema.columns").
		WithArgs("jobdb_staging").
		WillReturnRows(columnRows(Job, "row_id"))
	mock.ExpectRollback()

	s, err := New(mock, "jobdb_staging", time.Minute)
	require.NoError(t, err)
	err = s.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSetup))
	assert.Contains(t, err.Error(), "jobdb_staging.job is missing column row_id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepare_CreateFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS jobdb_staging").WillReturnError(errors.New("permission denied for database"))
	mock.ExpectRollback()

	s, err := New(mock, "jobdb_staging", time.Minute)
	require.NoError(t, err)
	err = s.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSetup))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepare_KeepsCause(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS jobdb_staging").
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied for database jobdb"})
	mock.ExpectRollback()

	s, err := New(mock, "jobdb_staging", time.Minute)
	require.NoError(t, err)
	err = s.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSetup))

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "42501", pgErr.Code)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepare_TxTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS jobdb_staging").
		WillReturnResult(pgxmock.NewResult("CREATE", 0)).
		WillDelayFor(time.Second)
	mock.ExpectRollback()

	s, err := New(mock, "jobdb_staging", 20*time.Millisecond)
	require.NoError(t, err)
	err = s.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSetup))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeardown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DROP SCHEMA IF EXISTS run_7 CASCADE").WillReturnResult(pgxmock.NewResult("DROP", 0))

	s, err := New(mock, "run_7", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Teardown(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i, tbl := range Tables {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM jobdb_staging." + tbl.Name + "$").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(i)))
	}

	s, err := New(mock, "", time.Minute)
	require.NoError(t, err)
	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, len(Tables))
	assert.Equal(t, Company, counts[0].Table)
	assert.Equal(t, int64(0), counts[0].Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTable_Columns(t *testing.T) {
	var salary Table
	for _, tbl := range Tables {
		if tbl.Name == JobSalary {
			salary = tbl
		}
	}
	assert.Equal(t, []string{"id", "job_row_id", "min_value", "max_value", "currency", "period"}, salary.Columns())
}

func TestTables_CopyColumnsDeclared(t *testing.T) {
	for _, tbl := range Tables {
		declared := make(map[string]bool)
		for _, c := range tbl.Columns() {
			declared[c] = true
		}
		for _, c := range tbl.Copy {
			assert.True(t, declared[c], "%s.%s is copied but not declared", tbl.Name, c)
		}
	}
}
