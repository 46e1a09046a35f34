// Package pipeline sequences one import run: staging setup, batch loading,
// transformation, the optional founder dedup pass, and teardown.
package pipeline

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/config"
	"github.com/sells-group/jobdb/internal/db"
	"github.com/sells-group/jobdb/internal/dedup"
	"github.com/sells-group/jobdb/internal/loader"
	"github.com/sells-group/jobdb/internal/model"
	"github.com/sells-group/jobdb/internal/staging"
	"github.com/sells-group/jobdb/internal/transform"
)

// Stager prepares and drops the run's staging tables.
type Stager interface {
	Prepare(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Loader stages source records.
type Loader interface {
	LoadCompanies(ctx context.Context, companies []model.Company) (loader.Result, error)
	LoadJobs(ctx context.Context, jobs []model.Job) (loader.Result, error)
}

// Transformer moves staged rows into jobdb.
type Transformer interface {
	Run(ctx context.Context, mode transform.Mode) (transform.Result, error)
}

// Deduplicator merges duplicate founders.
type Deduplicator interface {
	Run(ctx context.Context) (dedup.Result, error)
}

// Options configures a Coordinator.
type Options struct {
	DropOnSuccess bool // drop the staging schema after a successful run
	ReclaimMemory bool // return freed memory to the OS after loading
}

// Coordinator drives the phases of a run in sequence. It does not scope
// transactions itself; every component owns its own.
type Coordinator struct {
	stg     Stager
	load    Loader
	xform   Transformer
	dedup   Deduplicator
	opts    Options
	reclaim func()
}

// New creates a Coordinator from its components. dd may be nil when the
// caller never requests a dedup pass.
func New(stg Stager, ld Loader, tr Transformer, dd Deduplicator, opts Options) *Coordinator {
	c := &Coordinator{stg: stg, load: ld, xform: tr, dedup: dd, opts: opts, reclaim: func() {}}
	if opts.ReclaimMemory {
		c.reclaim = debug.FreeOSMemory
	}
	return c
}

// NewFromConfig wires the concrete components for pool using cfg.
func NewFromConfig(pool db.Pool, cfg *config.Config) (*Coordinator, error) {
	stg, err := staging.New(pool, cfg.Staging.Schema, cfg.Staging.TxTimeout)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: staging")
	}
	ld := loader.New(stg, LoaderOptions(cfg))
	tr := transform.New(stg, TransformOptions(cfg))
	dd := dedup.New(pool, dedup.Options{TxTimeout: cfg.Dedup.TxTimeout})
	return New(stg, ld, tr, dd, Options{
		DropOnSuccess: cfg.Staging.DropOnSuccess,
		ReclaimMemory: cfg.Transform.ReclaimMemory,
	}), nil
}

// LoaderOptions maps the loader config section to loader.Options.
func LoaderOptions(cfg *config.Config) loader.Options {
	return loader.Options{
		BatchSize:   cfg.Loader.BatchSize,
		Concurrency: cfg.Loader.Concurrency,
		TxTimeout:   cfg.Loader.TxTimeout,
		BatchPause:  cfg.Loader.BatchPause,
	}
}

// TransformOptions maps the transform config section to transform.Options.
func TransformOptions(cfg *config.Config) transform.Options {
	return transform.Options{
		TxTimeout:              cfg.Transform.TxTimeout,
		LocationBatchSize:      cfg.Transform.LocationBatchSize,
		LargeLocationBatchSize: cfg.Transform.LargeLocationBatchSize,
		LargeThreshold:         cfg.Transform.LargeThreshold,
		BatchPause:             cfg.Transform.BatchPause,
		PhasePause:             cfg.Transform.PhasePause,
		ReclaimMemory:          cfg.Transform.ReclaimMemory,
	}
}

// Input is one run's decoded source collections and flags.
type Input struct {
	Companies []model.Company
	Jobs      []model.Job
	Mode      transform.Mode
	Dedup     bool
}

// Run executes a full import. Staging setup and transform errors are fatal;
// the partial summary is returned alongside them.
func (c *Coordinator) Run(ctx context.Context, in Input) (*Summary, error) {
	log := zap.L().With(zap.String("component", "pipeline.run"), zap.String("mode", string(in.Mode)))
	start := time.Now()
	sum := &Summary{Errors: []string{}}
	done := func(err error) (*Summary, error) {
		sum.DurationSeconds = time.Since(start).Seconds()
		if err != nil {
			sum.Errors = append(sum.Errors, err.Error())
			log.Error("pipeline: run failed", zap.Error(err), zap.Float64("duration_s", sum.DurationSeconds))
			return sum, err
		}
		log.Info("pipeline: run complete",
			zap.Int("companies_processed", sum.CompaniesProcessed),
			zap.Int("jobs_processed", sum.JobsProcessed),
			zap.Int("errors", len(sum.Errors)),
			zap.Float64("duration_s", sum.DurationSeconds),
		)
		return sum, nil
	}

	mode, err := transform.ParseMode(string(in.Mode))
	if err != nil {
		return done(eris.Wrap(err, "pipeline: mode"))
	}

	if err := c.stage(ctx, sum, in); err != nil {
		return done(err)
	}
	c.reclaim()

	if err := c.phase(sum, "transform", func() error {
		res, err := c.xform.Run(ctx, mode)
		sum.Transform = &res
		return err
	}); err != nil {
		return done(eris.Wrap(err, "pipeline: transform"))
	}

	if in.Dedup {
		if c.dedup == nil {
			return done(eris.New("pipeline: dedup requested without a deduplicator"))
		}
		if err := c.phase(sum, "dedup", func() error {
			res, err := c.dedup.Run(ctx)
			sum.Dedup = &res
			return err
		}); err != nil {
			return done(eris.Wrap(err, "pipeline: dedup"))
		}
		if sum.Dedup.Failed > 0 {
			sum.Errors = append(sum.Errors, eris.Errorf("dedup: %d founder pairs failed to merge", sum.Dedup.Failed).Error())
		}
	}

	if c.opts.DropOnSuccess {
		if err := c.phase(sum, "teardown", func() error { return c.stg.Teardown(ctx) }); err != nil {
			// The import itself has committed; a leftover schema is truncated next run.
			log.Warn("pipeline: staging teardown failed", zap.Error(err))
			sum.Errors = append(sum.Errors, err.Error())
		}
	}

	return done(nil)
}

// Stage prepares staging and loads the input without transforming it. The
// staged rows are left in place for a later transform.
func (c *Coordinator) Stage(ctx context.Context, in Input) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Errors: []string{}}
	err := c.stage(ctx, sum, in)
	sum.DurationSeconds = time.Since(start).Seconds()
	if err != nil {
		sum.Errors = append(sum.Errors, err.Error())
		zap.L().Error("pipeline: stage failed", zap.String("component", "pipeline.stage"), zap.Error(err))
	}
	return sum, err
}

// stage prepares the staging tables, then loads companies followed by jobs.
// Per-batch failures are collected in sum, not returned.
func (c *Coordinator) stage(ctx context.Context, sum *Summary, in Input) error {
	if err := c.phase(sum, "prepare", func() error { return c.stg.Prepare(ctx) }); err != nil {
		return eris.Wrap(err, "pipeline: prepare staging")
	}

	if err := c.phase(sum, "load_companies", func() error {
		res, err := c.load.LoadCompanies(ctx, in.Companies)
		sum.addLoad(res)
		return err
	}); err != nil {
		return eris.Wrap(err, "pipeline: load companies")
	}

	if err := c.phase(sum, "load_jobs", func() error {
		res, err := c.load.LoadJobs(ctx, in.Jobs)
		sum.addLoad(res)
		return err
	}); err != nil {
		return eris.Wrap(err, "pipeline: load jobs")
	}
	return nil
}

// phase times fn and records it in the summary.
func (c *Coordinator) phase(sum *Summary, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	sum.Phases = append(sum.Phases, PhaseTiming{Name: name, Seconds: elapsed.Seconds(), Failed: err != nil})
	zap.L().Info("pipeline: phase finished",
		zap.String("component", "pipeline.phase"),
		zap.String("phase", name),
		zap.Duration("elapsed", elapsed),
		zap.Bool("failed", err != nil),
	)
	return err
}
