package transform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
	"github.com/sells-group/jobdb/internal/progress"
)

// jobMapStatements rebuild the staging row to job id mapping. In upsert
// mode the office edges of every mapped job are cleared so they are fully
// replaced; insert mode only adds edges.
func jobMapStatements(stg string, mode Mode) []statement {
	stmts := []statement{
		{label: "reset job map", sql: fmt.Sprintf("TRUNCATE %s.job_map", stg), scratch: true},
		{label: "build job map", scratch: true, sql: fmt.Sprintf(`INSERT INTO %[1]s.job_map (row_id, job_id)
			SELECT DISTINCT ON (s.row_id) s.row_id, j.id
			FROM %[1]s.job s
			JOIN %[2]s c ON c.slug = s.company_slug
			JOIN %[3]s j ON j.company_id = c.id AND %[4]s = %[5]s
			ORDER BY s.row_id, j.id`, stg, final("company"), final("job"), jobKey("j"), jobKey("s"))},
	}
	if mode == ModeUpsert {
		stmts = append(stmts, statement{label: "clear job offices", sql: fmt.Sprintf(`DELETE FROM %s jo
			USING (SELECT DISTINCT job_id FROM %s.job_map) m
			WHERE jo.job_id = m.job_id`, final("job_office"), stg)})
	}
	return stmts
}

// locationBoundSQL finds the upper id of the next keyset window of
// job_location rows. It yields 0 once every row is consumed.
func locationBoundSQL(stg string) string {
	return fmt.Sprintf(`SELECT COALESCE(max(id), 0) FROM (
		SELECT id FROM %s.job_location WHERE id > $1 ORDER BY id LIMIT $2
	) b`, stg)
}

func jobOfficeSQL(stg string) string {
	return fmt.Sprintf(`INSERT INTO %s (job_id, office_id)
		SELECT DISTINCT m.job_id, o.id
		FROM %s.job_location l
		JOIN %s.job_map m ON m.row_id = l.job_row_id
		JOIN %s o ON o.location = l.location
		WHERE l.id > $1 AND l.id <= $2
		ON CONFLICT DO NOTHING`, final("job_office"), stg, stg, final("office"))
}

func discardedSalariesSQL(stg string) string {
	return fmt.Sprintf(`SELECT count(*) - count(DISTINCT m.job_id)
		FROM %s.job_salary s
		JOIN %s.job_map m ON m.row_id = s.job_row_id`, stg, stg)
}

// salarySQL keeps one salary per job: the highest min_value, NULLs last,
// then the most recently loaded row. Insert mode leaves an existing salary
// alone; upsert mode overwrites it.
func salarySQL(stg string, mode Mode) (string, error) {
	ins := db.InsertSelect{
		Table:   final("salary"),
		Columns: []string{"job_id", "min_value", "max_value", "currency", "period"},
		Select: fmt.Sprintf(`SELECT DISTINCT ON (m.job_id) m.job_id, s.min_value, s.max_value, s.currency, s.period
			FROM %[1]s.job_salary s
			JOIN %[1]s.job_map m ON m.row_id = s.job_row_id
			JOIN %[1]s.job j ON j.row_id = s.job_row_id
			ORDER BY m.job_id, s.min_value DESC NULLS LAST, j.seq DESC`, stg),
		ConflictKeys: []string{"job_id"},
	}
	if mode == ModeUpsert {
		ins.UpdateCols = []string{"min_value", "max_value", "currency", "period"}
		ins.Touch = "updated_at"
	}
	return ins.SQL()
}

// locationBatchSize picks the sub-batch size for total location rows.
func (t *Transformer) locationBatchSize(total int64) int {
	if total > int64(t.opts.LargeThreshold) {
		return t.opts.LargeLocationBatchSize
	}
	return t.opts.LocationBatchSize
}

func (t *Transformer) jobRelations(ctx context.Context, mode Mode) (int64, error) {
	log := zap.L().With(zap.String("component", "transform.job_relations"))
	pool := t.stg.Pool()
	stg := t.stg.Schema()

	var total int64
	err := db.WithTx(ctx, pool, t.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		total, err = execAll(ctx, tx, log, jobMapStatements(stg, mode))
		return err
	})
	if err != nil {
		return 0, err
	}

	offices, err := t.jobOffices(ctx, log)
	if err != nil {
		return total, err
	}
	total += offices

	salaries, err := t.salaries(ctx, log, mode)
	if err != nil {
		return total, err
	}
	return total + salaries, nil
}

// jobOffices inserts job_office edges in keyset windows over job_location,
// one transaction per window.
func (t *Transformer) jobOffices(ctx context.Context, log *zap.Logger) (int64, error) {
	pool := t.stg.Pool()
	stg := t.stg.Schema()

	var locations int64
	if err := pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s.job_location", stg)).Scan(&locations); err != nil {
		return 0, eris.Wrap(err, "transform: count job locations")
	}
	if locations == 0 {
		return 0, nil
	}

	size := t.locationBatchSize(locations)
	batches := int((locations + int64(size) - 1) / int64(size))
	tracker := progress.New("job office", batches)
	log.Info("linking job offices",
		zap.Int64("locations", locations),
		zap.Int("batch_size", size),
		zap.Int("batches", batches),
	)

	var inserted, lower int64
	for {
		var upper int64
		if err := pool.QueryRow(ctx, locationBoundSQL(stg), lower, size).Scan(&upper); err != nil {
			return inserted, eris.Wrapf(err, "transform: find job location window after %d", lower)
		}
		if upper <= lower {
			break
		}
		if err := t.pacer.Wait(ctx); err != nil {
			return inserted, eris.Wrap(err, "transform: pause between job office batches")
		}

		from, to := lower, upper
		err := db.WithTx(ctx, pool, t.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, jobOfficeSQL(stg), from, to)
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
			return nil
		})
		if err != nil {
			log.Error("job office batch failed", zap.Int64("offset", from), zap.Error(err))
			return inserted, eris.Wrapf(err, "transform: link job offices at offset %d", from)
		}
		tracker.Add(1)
		lower = to
	}
	return inserted, nil
}

func (t *Transformer) salaries(ctx context.Context, log *zap.Logger, mode Mode) (int64, error) {
	stg := t.stg.Schema()
	sql, err := salarySQL(stg, mode)
	if err != nil {
		return 0, err
	}

	var n int64
	err = db.WithTx(ctx, t.stg.Pool(), t.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		var discarded int64
		if err := tx.QueryRow(ctx, discardedSalariesSQL(stg)).Scan(&discarded); err != nil {
			return eris.Wrap(err, "transform: count salary candidates")
		}
		if discarded > 0 {
			log.Warn("multiple salaries for one job; keeping the highest minimum",
				zap.Int64("discarded", discarded))
		}

		var err error
		n, err = execAll(ctx, tx, log, []statement{{label: "write salaries", sql: sql}})
		return err
	})
	return n, err
}
