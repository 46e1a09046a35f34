// Package source reads scraped company and job collections from disk.
package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobdb/internal/model"
)

// Decoded is one decoded collection. Malformed counts elements that were
// syntactically JSON but did not fit the record shape, or JSON Lines
// records that were not JSON at all.
type Decoded[T any] struct {
	Path      string
	Items     []T
	Malformed int
}

// Collections holds both inputs of a run.
type Collections struct {
	Companies Decoded[model.Company]
	Jobs      Decoded[model.Job]
}

// IsLines reports whether path names a newline-delimited JSON file.
func IsLines(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return true
	}
	return false
}

// ReadFile decodes every record of path. Files ending in .jsonl or .ndjson
// hold one record per line; anything else is a JSON array.
func ReadFile[T any](ctx context.Context, path string) (Decoded[T], error) {
	out := Decoded[T]{Path: path}
	f, err := os.Open(path)
	if err != nil {
		return out, eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var (
		items <-chan json.RawMessage
		errs  <-chan error
	)
	if IsLines(path) {
		items, errs = DecodeJSONLines(ctx, f)
	} else {
		items, errs = DecodeJSONArray[json.RawMessage](ctx, f)
	}

	log := zap.L().With(zap.String("component", "source.read"), zap.String("path", path))
	n := 0
	for raw := range items {
		n++
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			out.Malformed++
			log.Debug("skipping malformed record", zap.Int("index", n-1), zap.Error(err))
			continue
		}
		out.Items = append(out.Items, item)
	}
	if err := <-errs; err != nil {
		return out, eris.Wrapf(err, "source: read %s", path)
	}

	if out.Malformed > 0 {
		log.Warn("malformed records skipped", zap.Int("malformed", out.Malformed))
	}
	log.Info("source decoded", zap.Int("records", len(out.Items)))
	return out, nil
}

// ReadAll decodes the company and job files concurrently. An empty path
// yields an empty collection.
func ReadAll(ctx context.Context, companiesPath, jobsPath string) (Collections, error) {
	var c Collections
	g, gCtx := errgroup.WithContext(ctx)
	if companiesPath != "" {
		g.Go(func() error {
			var err error
			c.Companies, err = ReadFile[model.Company](gCtx, companiesPath)
			return err
		})
	}
	if jobsPath != "" {
		g.Go(func() error {
			var err error
			c.Jobs, err = ReadFile[model.Job](gCtx, jobsPath)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return c, err
	}
	return c, nil
}
