package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/pipeline"
	"github.com/sells-group/jobdb/internal/source"
	"github.com/sells-group/jobdb/internal/staging"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"migrate", "run", "load", "transform", "dedup", "staging"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "jobdb", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"companies", "jobs", "mode", "dedup", "lock", "summary-out"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s flag", name)
	}
	assert.Equal(t, "insert", runCmd.Flags().Lookup("mode").DefValue)
	assert.Equal(t, "false", runCmd.Flags().Lookup("dedup").DefValue)
}

func TestLoadCommand_Flags(t *testing.T) {
	for _, name := range []string{"companies", "jobs", "lock", "summary-out"} {
		assert.NotNil(t, loadCmd.Flags().Lookup(name), "load should have --%s flag", name)
	}
	assert.Nil(t, loadCmd.Flags().Lookup("mode"))
}

func TestTransformCommand_Flags(t *testing.T) {
	flag := transformCmd.Flags().Lookup("mode")
	require.NotNil(t, flag)
	assert.Equal(t, "insert", flag.DefValue)
}

func TestDedupCommand_Flags(t *testing.T) {
	flag := dedupCmd.Flags().Lookup("lock")
	require.NotNil(t, flag, "dedup should have --lock flag")
	assert.Empty(t, flag.DefValue)
}

func TestStagingCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range stagingCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["status"])
	assert.True(t, names["drop"])
}

func TestRequireSources(t *testing.T) {
	assert.Error(t, requireSources("", ""))
	assert.NoError(t, requireSources("companies.json", ""))
	assert.NoError(t, requireSources("", "jobs.jsonl"))
}

func TestFormatCounts(t *testing.T) {
	var buf bytes.Buffer
	formatCounts(&buf, "jobdb_staging", []staging.Count{
		{Table: "company", Rows: 3},
		{Table: "job", Rows: 7},
	})

	out := buf.String()
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "jobdb_staging.company")
	assert.Contains(t, out, "jobdb_staging.job")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "total"))
	assert.Contains(t, lines[len(lines)-1], "10")
}

func TestFinish_PrintsAndWritesSummary(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	path := filepath.Join(t.TempDir(), "summary.json")
	sum := &pipeline.Summary{CompaniesProcessed: 4, CompaniesInvalid: 1, Errors: []string{}}
	cols := source.Collections{}
	cols.Companies.Malformed = 2
	cols.Jobs.Malformed = 1

	require.NoError(t, finish(cmd, sum, cols, path, nil))

	var printed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &printed))
	assert.Equal(t, 4.0, printed["companiesProcessed"])
	assert.Equal(t, 3.0, printed["companiesInvalid"])
	assert.Equal(t, 1.0, printed["jobsInvalid"])

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"companiesProcessed": 4`)
}

func TestFinish_ReturnsRunError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	runErr := errors.New("pipeline: transform")

	err := finish(cmd, &pipeline.Summary{Errors: []string{runErr.Error()}}, source.Collections{}, "", runErr)
	assert.Equal(t, runErr, err)

	assert.Equal(t, runErr, finish(cmd, nil, source.Collections{}, "", runErr))
}
