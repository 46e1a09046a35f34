package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type testRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestDecodeJSONArray(t *testing.T) {
	ch, errCh := DecodeJSONArray[testRecord](context.Background(), strings.NewReader(`[{"id":1,"name":"alpha"},{"id":2,"name":"beta"}]`))

	var records []testRecord
	for rec := range ch {
		records = append(records, rec)
	}
	for err := range errCh {
		require.NoError(t, err)
	}
	assert.Equal(t, []testRecord{{1, "alpha"}, {2, "beta"}}, records)
}

func TestDecodeJSONArray_NotArray(t *testing.T) {
	ch, errCh := DecodeJSONArray[testRecord](context.Background(), strings.NewReader(`{"id":1}`))
	for range ch { //nolint:revive // drain
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestDecodeJSONArray_EmptyInput(t *testing.T) {
	ch, errCh := DecodeJSONArray[testRecord](context.Background(), strings.NewReader(""))
	for range ch { //nolint:revive // drain
	}
	assert.NoError(t, <-errCh)
}

func TestDecodeJSONArray_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := range 10000 {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"id":1}`)
	}
	sb.WriteString("]")

	ctx, cancel := context.WithCancel(context.Background())
	ch, errCh := DecodeJSONArray[testRecord](ctx, strings.NewReader(sb.String()))
	<-ch
	cancel()
	for range ch { //nolint:revive // drain
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestDecodeJSONLines_SkipsBlankLines(t *testing.T) {
	ch, errCh := DecodeJSONLines(context.Background(), strings.NewReader("{\"id\":1}\n\n  \n{\"id\":2}\n"))
	var lines []string
	for raw := range ch {
		lines = append(lines, string(raw))
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{`{"id":1}`, `{"id":2}`}, lines)
}

func TestReadFile_Array(t *testing.T) {
	path := writeFile(t, "companies.json", `[
		{"name": "Acme", "slug": "acme", "markets": "SaaS, Fintech"},
		{"name": "Beta", "slug": ["beta"]},
		{"name": "Gamma", "slug": "gamma"}
	]`)

	got, err := ReadFile[model.Company](context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 1, got.Malformed)
	assert.Equal(t, "acme", got.Items[0].Slug)
	assert.Equal(t, []string{"SaaS", "Fintech"}, got.Items[0].Markets.Clean())
	assert.Equal(t, path, got.Path)
}

func TestReadFile_Lines(t *testing.T) {
	path := writeFile(t, "jobs.ndjson", `{"title": "Engineer", "companySlug": "acme"}
not json
{"title": "Designer", "companySlug": "acme", "remote": "yes"}
`)

	got, err := ReadFile[model.Job](context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 1, got.Malformed)
	assert.True(t, bool(got.Items[1].Remote))
}

func TestReadFile_TruncatedArrayFails(t *testing.T) {
	path := writeFile(t, "jobs.json", `[{"title": "Engineer"}, {"title": `)
	_, err := ReadFile[model.Job](context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: read")
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile[model.Job](context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: open")
}

func TestReadAll(t *testing.T) {
	companies := writeFile(t, "companies.json", `[{"name": "Acme", "slug": "acme"}]`)
	jobs := writeFile(t, "jobs.jsonl", `{"title": "Engineer", "companySlug": "acme"}`)

	c, err := ReadAll(context.Background(), companies, jobs)
	require.NoError(t, err)
	assert.Len(t, c.Companies.Items, 1)
	assert.Len(t, c.Jobs.Items, 1)

	c, err = ReadAll(context.Background(), companies, "")
	require.NoError(t, err)
	assert.Len(t, c.Companies.Items, 1)
	assert.Empty(t, c.Jobs.Items)
}

func TestIsLines(t *testing.T) {
	assert.True(t, IsLines("a.jsonl"))
	assert.True(t, IsLines("A.NDJSON"))
	assert.False(t, IsLines("a.json"))
}
