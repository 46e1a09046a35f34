// Package transform moves one run's staging rows into the normalized jobdb
// schema. A run is five ordered sub-phases: companies, references, jobs,
// job relations and counters. Any sub-phase error aborts the run.
package transform

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/resilience"
	"github.com/sells-group/jobdb/internal/staging"
)

// Mode selects how rows that already exist in jobdb are treated.
type Mode string

const (
	// ModeInsert adds new entities and edges and leaves existing rows untouched.
	ModeInsert Mode = "insert"
	// ModeUpsert additionally refreshes the mutable fields of existing rows.
	ModeUpsert Mode = "upsert"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeInsert, ModeUpsert:
		return m, nil
	}
	return "", eris.Errorf("transform: unknown mode %q (want insert or upsert)", s)
}

// Phase names, in execution order.
const (
	PhaseCompanies    = "companies"
	PhaseReferences   = "references"
	PhaseJobs         = "jobs"
	PhaseJobRelations = "job_relations"
	PhaseCounters     = "counters"
)

const (
	defaultTxTimeout   = 10 * time.Minute
	defaultLocBatch    = 1000
	defaultLargeBatch  = 500
	defaultLargeThresh = 50000
)

// Options configures a Transformer.
type Options struct {
	TxTimeout              time.Duration // per-transaction limit (default 10m)
	LocationBatchSize      int           // job_office rows per sub-batch (default 1000)
	LargeLocationBatchSize int           // sub-batch size above LargeThreshold (default 500)
	LargeThreshold         int           // location row count that selects the large size (default 50000)
	BatchPause             time.Duration // spacing between job_office sub-batches
	PhasePause             time.Duration // sleep between sub-phases
	ReclaimMemory          bool          // return freed memory to the OS between sub-phases
}

// Transformer runs the staging to jobdb transformation.
type Transformer struct {
	stg     *staging.Store
	opts    Options
	pacer   *resilience.Pacer
	reclaim func()
}

// New creates a Transformer reading from stg.
func New(stg *staging.Store, opts Options) *Transformer {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = defaultTxTimeout
	}
	if opts.LocationBatchSize <= 0 {
		opts.LocationBatchSize = defaultLocBatch
	}
	if opts.LargeLocationBatchSize <= 0 {
		opts.LargeLocationBatchSize = defaultLargeBatch
	}
	if opts.LargeThreshold <= 0 {
		opts.LargeThreshold = defaultLargeThresh
	}
	return &Transformer{
		stg:     stg,
		opts:    opts,
		pacer:   resilience.NewPacer(opts.BatchPause),
		reclaim: debug.FreeOSMemory,
	}
}

// PhaseResult reports one sub-phase.
type PhaseResult struct {
	Name    string        `json:"name"`
	Rows    int64         `json:"rows"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result reports a transform run.
type Result struct {
	Mode    Mode          `json:"mode"`
	Phases  []PhaseResult `json:"phases"`
	Elapsed time.Duration `json:"elapsed"`
}

// Rows returns the rows affected by the named phase.
func (r Result) Rows(phase string) int64 {
	for _, p := range r.Phases {
		if p.Name == phase {
			return p.Rows
		}
	}
	return 0
}

type phase struct {
	name string
	run  func(ctx context.Context, mode Mode) (int64, error)
}

// Run executes every sub-phase in order. On error the phases completed so
// far are reported alongside it.
func (t *Transformer) Run(ctx context.Context, mode Mode) (Result, error) {
	res := Result{Mode: mode}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return res, err
	}
	res.Mode = mode
	log := zap.L().With(
		zap.String("component", "transform.run"),
		zap.String("mode", string(mode)),
		zap.String("staging", t.stg.Schema()),
	)

	phases := []phase{
		{PhaseCompanies, t.companies},
		{PhaseReferences, t.references},
		{PhaseJobs, t.jobs},
		{PhaseJobRelations, t.jobRelations},
		{PhaseCounters, t.counters},
	}

	start := time.Now()
	for i, p := range phases {
		if i > 0 {
			t.between(ctx, log)
			if err := resilience.Sleep(ctx, t.opts.PhasePause); err != nil {
				return res, eris.Wrapf(err, "transform: %s", p.name)
			}
		}

		phaseStart := time.Now()
		log.Info("phase started", zap.String("phase", p.name))
		n, err := p.run(ctx, mode)
		if err != nil {
			log.Error("phase failed", zap.String("phase", p.name), zap.Error(err))
			res.Elapsed = time.Since(start)
			return res, eris.Wrapf(err, "transform: %s", p.name)
		}

		pr := PhaseResult{Name: p.name, Rows: n, Elapsed: time.Since(phaseStart)}
		res.Phases = append(res.Phases, pr)
		log.Info("phase complete",
			zap.String("phase", p.name),
			zap.Int64("rows", pr.Rows),
			zap.Duration("elapsed", pr.Elapsed),
		)
	}

	res.Elapsed = time.Since(start)
	log.Info("transform complete", zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// between runs the memory reclamation hint after a sub-phase.
func (t *Transformer) between(ctx context.Context, log *zap.Logger) {
	if !t.opts.ReclaimMemory || t.reclaim == nil || ctx.Err() != nil {
		return
	}
	t.reclaim()
	if ce := log.Check(zap.DebugLevel, "memory reclaimed"); ce != nil {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		ce.Write(zap.Uint64("heap_alloc", ms.HeapAlloc), zap.Uint64("heap_sys", ms.HeapSys))
	}
}
