package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/jobdb/internal/dedup"
	"github.com/sells-group/jobdb/internal/loader"
	"github.com/sells-group/jobdb/internal/model"
	"github.com/sells-group/jobdb/internal/transform"
)

// --- Stager Mock ---

type mockStager struct {
	mock.Mock
}

func (m *mockStager) Prepare(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStager) Teardown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Loader Mock ---

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) LoadCompanies(ctx context.Context, companies []model.Company) (loader.Result, error) {
	args := m.Called(ctx, companies)
	return args.Get(0).(loader.Result), args.Error(1)
}

func (m *mockLoader) LoadJobs(ctx context.Context, jobs []model.Job) (loader.Result, error) {
	args := m.Called(ctx, jobs)
	return args.Get(0).(loader.Result), args.Error(1)
}

// --- Transformer Mock ---

type mockTransformer struct {
	mock.Mock
}

func (m *mockTransformer) Run(ctx context.Context, mode transform.Mode) (transform.Result, error) {
	args := m.Called(ctx, mode)
	return args.Get(0).(transform.Result), args.Error(1)
}

// --- Deduplicator Mock ---

type mockDeduplicator struct {
	mock.Mock
}

func (m *mockDeduplicator) Run(ctx context.Context) (dedup.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(dedup.Result), args.Error(1)
}
