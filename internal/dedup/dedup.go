// Package dedup merges founders that were imported more than once under
// different ids.
package dedup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
	"github.com/sells-group/jobdb/internal/model"
)

const defaultTxTimeout = time.Minute

// Founder is a stored founder row.
type Founder struct {
	ID       string
	Name     string
	Title    string
	LinkedIn string
	Twitter  string
	Bio      string
	ImageURL string
}

// score counts the non-empty fields. A richer row survives a merge.
func (f Founder) score() int {
	n := 0
	for _, v := range []string{f.ID, f.Name, f.Title, f.LinkedIn, f.Twitter, f.Bio, f.ImageURL} {
		if v != "" {
			n++
		}
	}
	return n
}

// Pair is two founders judged to be the same person. A.ID < B.ID.
type Pair struct {
	A, B Founder
}

// Survivor returns the row to keep and the row to merge away. Ties keep A.
func (p Pair) Survivor() (keep, drop Founder) {
	if p.B.score() > p.A.score() {
		return p.B, p.A
	}
	return p.A, p.B
}

// Options configures a Deduplicator.
type Options struct {
	TxTimeout time.Duration // per-merge transaction limit (default 1m)
}

// Result counts one dedup pass.
type Result struct {
	Pairs   int           `json:"pairs"`
	Merged  int           `json:"merged"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Elapsed time.Duration `json:"elapsed"`
}

// Deduplicator finds and merges duplicate founders in jobdb.
type Deduplicator struct {
	pool db.Pool
	opts Options
}

// New creates a Deduplicator.
func New(pool db.Pool, opts Options) *Deduplicator {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = defaultTxTimeout
	}
	return &Deduplicator{pool: pool, opts: opts}
}

const findPairsSQL = `SELECT a.id, a.name, a.title, a.linkedin, a.twitter, a.bio, a.image_url,
		b.id, b.name, b.title, b.linkedin, b.twitter, b.bio, b.image_url
	FROM jobdb.founder a
	JOIN jobdb.founder b ON b.name = a.name AND a.id < b.id
	WHERE (a.linkedin <> '' AND a.linkedin = b.linkedin)
	   OR (a.twitter <> '' AND a.twitter = b.twitter)
	ORDER BY a.id, b.id`

// FindPairs returns candidate duplicate pairs: equal name and an equal,
// non-empty linkedin or twitter handle. Pairs are ordered by (A.ID, B.ID).
func (d *Deduplicator) FindPairs(ctx context.Context) ([]Pair, error) {
	rows, err := d.pool.Query(ctx, findPairsSQL)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: query founder pairs")
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(
			&p.A.ID, &p.A.Name, &p.A.Title, &p.A.LinkedIn, &p.A.Twitter, &p.A.Bio, &p.A.ImageURL,
			&p.B.ID, &p.B.Name, &p.B.Title, &p.B.LinkedIn, &p.B.Twitter, &p.B.Bio, &p.B.ImageURL,
		); err != nil {
			return nil, eris.Wrap(err, "dedup: scan founder pair")
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "dedup: iterate founder pairs")
	}
	return pairs, nil
}

// Merge folds drop into keep in one transaction. drop's company edges are
// re-pointed to keep, skipping edges keep already has, and drop is deleted.
// keep's row is not modified.
func (d *Deduplicator) Merge(ctx context.Context, keep, drop string) error {
	return db.WithTx(ctx, d.pool, d.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO jobdb.company_founder (company_id, founder_id)
			 SELECT company_id, $1 FROM jobdb.company_founder WHERE founder_id = $2
			 ON CONFLICT DO NOTHING`,
			keep, drop,
		); err != nil {
			return eris.Wrapf(err, "dedup: re-point edges of founder %s", drop)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM jobdb.company_founder WHERE founder_id = $1", drop); err != nil {
			return eris.Wrapf(err, "dedup: delete edges of founder %s", drop)
		}
		tag, err := tx.Exec(ctx, "DELETE FROM jobdb.founder WHERE id = $1", drop)
		if err != nil {
			return eris.Wrapf(err, "dedup: delete founder %s", drop)
		}
		if tag.RowsAffected() != 1 {
			return eris.Errorf("dedup: founder %s vanished before merge", drop)
		}
		return nil
	})
}

// Run performs one pass. Each founder takes part in at most one merge per
// pass; a failed merge is logged and counted and the pass continues. Only a
// failure to list pairs is returned as an error.
func (d *Deduplicator) Run(ctx context.Context) (Result, error) {
	log := zap.L().With(zap.String("component", "dedup.run"))
	start := time.Now()
	var res Result

	pairs, err := d.FindPairs(ctx)
	if err != nil {
		return res, err
	}
	res.Pairs = len(pairs)

	visited := make(model.KeySet[string], 2*len(pairs))
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, eris.Wrap(err, "dedup: run")
		}
		if visited.Has(p.A.ID) || visited.Has(p.B.ID) {
			res.Skipped++
			continue
		}
		visited.Add(p.A.ID)
		visited.Add(p.B.ID)

		keep, drop := p.Survivor()
		if err := d.Merge(ctx, keep.ID, drop.ID); err != nil {
			log.Warn("founder merge failed",
				zap.String("keep", keep.ID),
				zap.String("drop", drop.ID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		res.Merged++
		log.Debug("founders merged", zap.String("keep", keep.ID), zap.String("drop", drop.ID), zap.String("name", keep.Name))
	}

	res.Elapsed = time.Since(start)
	log.Info("dedup complete",
		zap.Int("pairs", res.Pairs),
		zap.Int("merged", res.Merged),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}
