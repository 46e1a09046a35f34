// Package loader copies validated source records into the staging tables
// in independent, transaction-scoped batches.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobdb/internal/db"
	"github.com/sells-group/jobdb/internal/model"
	"github.com/sells-group/jobdb/internal/progress"
	"github.com/sells-group/jobdb/internal/resilience"
	"github.com/sells-group/jobdb/internal/staging"
)

const (
	defaultBatchSize   = 200
	defaultConcurrency = 8
	defaultTxTimeout   = 5 * time.Minute
)

// Record kinds reported in Result and BatchError.
const (
	KindCompany = "company"
	KindJob     = "job"
)

// Options configures a Loader.
type Options struct {
	BatchSize   int           // records per batch (default 200)
	Concurrency int           // flattening workers per batch (default 8)
	TxTimeout   time.Duration // per-batch transaction limit (default 5m)
	BatchPause  time.Duration // minimum spacing between batch writes; 0 = none
}

// Loader writes source records into one run's staging tables.
type Loader struct {
	stg   *staging.Store
	opts  Options
	pacer *resilience.Pacer
	newID func() uuid.UUID
}

// New creates a Loader writing through stg.
func New(stg *staging.Store, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = defaultTxTimeout
	}
	return &Loader{
		stg:   stg,
		opts:  opts,
		pacer: resilience.NewPacer(opts.BatchPause),
		newID: uuid.New,
	}
}

// Result summarizes one load call.
type Result struct {
	Kind       string           `json:"kind"`
	Total      int              `json:"total"`
	Loaded     int              `json:"loaded"`
	Invalid    int              `json:"invalid"`
	Duplicates int              `json:"duplicates"`
	Failed     int              `json:"failed"`
	Batches    int              `json:"batches"`
	Rows       map[string]int64 `json:"rows"`
	Errors     []*BatchError    `json:"-" yaml:"-"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// BatchError records a batch whose transaction was rolled back. The
// remaining batches are unaffected.
type BatchError struct {
	Kind   string
	Offset int    // index of the batch's first record in the input
	Size   int    // records in the batch
	Key    string // conflicting natural key, when the database reported one
	Err    error
}

func (e *BatchError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("loader: %s batch at offset %d (%d records) failed on %s: %v", e.Kind, e.Offset, e.Size, e.Key, e.Err)
	}
	return fmt.Sprintf("loader: %s batch at offset %d (%d records) failed: %v", e.Kind, e.Offset, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// LoadCompanies stages companies and their market, stage, office,
// investor, founder and parent rows.
func (l *Loader) LoadCompanies(ctx context.Context, companies []model.Company) (Result, error) {
	return load(ctx, l, KindCompany, companies, acceptCompanies, l.companyRows)
}

// LoadJobs stages jobs with their location and salary rows. Every job gets
// a fresh row id that its child rows reference.
func (l *Loader) LoadJobs(ctx context.Context, jobs []model.Job) (Result, error) {
	return load(ctx, l, KindJob, jobs, acceptJobs, l.jobRows)
}

// acceptFunc normalizes and filters one batch in place, returning the
// records to stage and the invalid and duplicate counts.
type acceptFunc[T any] func(batch []T) (keep []T, invalid, dups int)

func acceptCompanies(batch []model.Company) ([]model.Company, int, int) {
	keep := make([]model.Company, 0, len(batch))
	seen := make(model.KeySet[string], len(batch))
	var invalid, dups int
	for _, c := range batch {
		c.Normalize()
		if err := c.Validate(); err != nil {
			zap.L().Debug("skipping invalid company", zap.Error(err))
			invalid++
			continue
		}
		if !seen.Add(c.Slug) {
			dups++
			continue
		}
		keep = append(keep, c)
	}
	return keep, invalid, dups
}

func acceptJobs(batch []model.Job) ([]model.Job, int, int) {
	keep := make([]model.Job, 0, len(batch))
	var invalid int
	for _, j := range batch {
		j.Normalize()
		if err := j.Validate(); err != nil {
			zap.L().Debug("skipping invalid job", zap.Error(err))
			invalid++
			continue
		}
		keep = append(keep, j)
	}
	return keep, invalid, 0
}

func load[T any](ctx context.Context, l *Loader, kind string, recs []T, accept acceptFunc[T], flatten func(T) rowSet) (Result, error) {
	log := zap.L().With(zap.String("component", "loader."+kind), zap.String("schema", l.stg.Schema()))
	start := time.Now()
	res := Result{Kind: kind, Total: len(recs), Rows: make(map[string]int64)}
	tracker := progress.New(kind+" load", len(recs))

	for offset := 0; offset < len(recs); offset += l.opts.BatchSize {
		end := min(offset+l.opts.BatchSize, len(recs))
		keep, invalid, dups := accept(recs[offset:end])
		res.Invalid += invalid
		res.Duplicates += dups
		res.Batches++

		if len(keep) > 0 {
			rows, err := flattenAll(ctx, l.opts.Concurrency, keep, flatten)
			if err == nil {
				err = l.pacer.Wait(ctx)
			}
			if err == nil {
				err = l.write(ctx, rows, res.Rows)
			}
			if err != nil {
				if ctx.Err() != nil {
					res.Elapsed = time.Since(start)
					return res, eris.Wrapf(ctx.Err(), "loader: load %s", kind)
				}
				be := &BatchError{Kind: kind, Offset: offset, Size: end - offset, Key: db.UniqueViolationKey(err), Err: err}
				log.Warn("batch rolled back",
					zap.Int("offset", be.Offset),
					zap.Int("size", be.Size),
					zap.String("key", be.Key),
					zap.Error(err),
				)
				res.Errors = append(res.Errors, be)
				res.Failed += len(keep)
			} else {
				res.Loaded += len(keep)
				log.Debug("batch committed", zap.Int("offset", offset), zap.Int("records", len(keep)))
			}
		}

		tracker.Add(end - offset)
	}

	res.Elapsed = time.Since(start)
	log.Info("load complete",
		zap.Int("total", res.Total),
		zap.Int("loaded", res.Loaded),
		zap.Int("invalid", res.Invalid),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
		zap.Int("failed_batches", len(res.Errors)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// flattenAll expands records into table rows with bounded parallelism. The
// per-record parts are merged in input order so COPY order is stable.
func flattenAll[T any](ctx context.Context, workers int, recs []T, fn func(T) rowSet) (rowSet, error) {
	parts := make([]rowSet, len(recs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range recs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			parts[i] = fn(recs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(rowSet)
	for _, p := range parts {
		out.merge(p)
	}
	return out, nil
}

// write copies one batch into staging in a single transaction. Row counts
// are added to totals only after commit.
func (l *Loader) write(ctx context.Context, rows rowSet, totals map[string]int64) error {
	copied := make(map[string]int64, len(rows))
	err := db.WithTx(ctx, l.stg.Pool(), l.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		for _, t := range staging.Tables {
			if len(rows[t.Name]) == 0 {
				continue
			}
			n, err := db.CopyInto(ctx, tx, l.stg.Schema(), t.Name, t.Copy, rows[t.Name])
			if err != nil {
				return err
			}
			copied[t.Name] = n
		}
		return nil
	})
	if err != nil {
		return err
	}
	for name, n := range copied {
		totals[name] += n
	}
	return nil
}
