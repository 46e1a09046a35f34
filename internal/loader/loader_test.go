package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/model"
	"github.com/sells-group/jobdb/internal/staging"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testSchema = "jobdb_staging"

func newLoader(t *testing.T, mock pgxmock.PgxPoolIface, opts Options) *Loader {
	t.Helper()
	stg, err := staging.New(mock, testSchema, 0)
	require.NoError(t, err)
	return New(stg, opts)
}

func tableCols(name string) []string {
	for _, tbl := range staging.Tables {
		if tbl.Name == name {
			return tbl.Copy
		}
	}
	return nil
}

func expectCompanyBatch(mock pgxmock.PgxPoolIface, copyErr error) {
	mock.ExpectBegin()
	cp := mock.ExpectCopyFrom(pgx.Identifier{testSchema, staging.Company}, tableCols(staging.Company))
	if copyErr != nil {
		cp.WillReturnError(copyErr)
		mock.ExpectRollback()
		return
	}
	cp.WillReturnResult(1)
	mock.ExpectCommit()
}

func TestLoadCompanies_PartialFailureIsolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dup := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "company_slug_key",
		Detail:         "Key (slug)=(beta) already exists.",
	}
	expectCompanyBatch(mock, nil)
	expectCompanyBatch(mock, dup)
	expectCompanyBatch(mock, nil)

	l := newLoader(t, mock, Options{BatchSize: 1})
	res, err := l.LoadCompanies(context.Background(), []model.Company{
		{Name: "Alpha", Slug: "alpha"},
		{Name: "Beta", Slug: "beta"},
		{Name: "Gamma", Slug: "gamma"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(2), res.Rows[staging.Company])
	require.Len(t, res.Errors, 1)

	be := res.Errors[0]
	assert.Equal(t, KindCompany, be.Kind)
	assert.Equal(t, 1, be.Offset)
	assert.Equal(t, 1, be.Size)
	assert.Equal(t, "slug=beta", be.Key)
	assert.ErrorIs(t, be, be.Err)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(be, &pgErr))
	assert.Contains(t, be.Error(), "offset 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCompanies_InvalidAndDuplicatesSkipped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{testSchema, staging.Company}, tableCols(staging.Company)).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{testSchema, staging.CompanyMarket}, tableCols(staging.CompanyMarket)).WillReturnResult(2)
	mock.ExpectCommit()

	l := newLoader(t, mock, Options{})
	res, err := l.LoadCompanies(context.Background(), []model.Company{
		{Name: " Acme ", Slug: "acme", Markets: model.StringList{"SaaS", "Fintech"}},
		{Name: "", Slug: "nameless"},
		{Name: "Acme Again", Slug: "acme"},
		{Name: "   ", Slug: "blank"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, int64(2), res.Rows[staging.CompanyMarket])
	assert.Empty(t, res.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCompanies_AllInvalidBatchSkipsTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := newLoader(t, mock, Options{BatchSize: 2})
	res, err := l.LoadCompanies(context.Background(), []model.Company{{Slug: "a"}, {Name: "B"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, 1, res.Batches)
	assert.Zero(t, res.Loaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadJobs_CopiesChildTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{testSchema, staging.Job}, tableCols(staging.Job)).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{testSchema, staging.JobLocation}, tableCols(staging.JobLocation)).WillReturnResult(3)
	mock.ExpectCopyFrom(pgx.Identifier{testSchema, staging.JobSalary}, tableCols(staging.JobSalary)).WillReturnResult(1)
	mock.ExpectCommit()

	l := newLoader(t, mock, Options{Concurrency: 2})
	res, err := l.LoadJobs(context.Background(), []model.Job{
		{Title: "Engineer", CompanySlug: "acme", Locations: model.StringList{"Remote", "Berlin"}},
		{Title: "Designer", CompanySlug: "acme", Locations: model.StringList{"Paris"},
			Salary: &model.Salary{MaxValue: model.OptFloat{Value: 90000, Valid: true}}},
		{Title: "", CompanySlug: "acme"},
	})
	require.NoError(t, err)

	assert.Equal(t, KindJob, res.Kind)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, int64(3), res.Rows[staging.JobLocation])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadJobs_MultipleBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{testSchema, staging.Job}, tableCols(staging.Job)).WillReturnResult(2)
		mock.ExpectCommit()
	}

	jobs := make([]model.Job, 5)
	for i := range jobs {
		jobs[i] = model.Job{Title: "Engineer", CompanySlug: "acme"}
	}
	l := newLoader(t, mock, Options{BatchSize: 2})
	res, err := l.LoadJobs(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 5, res.Loaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_CancelledContextIsFatal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newLoader(t, mock, Options{})
	_, err = l.LoadCompanies(ctx, []model.Company{{Name: "Acme", Slug: "acme"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_Defaults(t *testing.T) {
	l := New(nil, Options{})
	assert.Equal(t, defaultBatchSize, l.opts.BatchSize)
	assert.Equal(t, defaultConcurrency, l.opts.Concurrency)
	assert.Equal(t, defaultTxTimeout, l.opts.TxTimeout)
}
