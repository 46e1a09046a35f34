package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
	"github.com/sells-group/jobdb/internal/staging"
)

var jobInsertColumns = append([]string{"company_id"}, staging.JobColumns...)

// latestJobsSQL collapses staged jobs sharing a match key to the most
// recently loaded row. Jobs whose company never reached jobdb are dropped.
func latestJobsSQL(stg string) string {
	return fmt.Sprintf(`CREATE TEMP TABLE job_latest ON COMMIT DROP AS
		SELECT DISTINCT ON (s.company_slug, %[1]s) c.id AS company_id, s.row_id, s.seq, %[2]s
		FROM %[3]s.job s
		JOIN %[4]s c ON c.slug = s.company_slug
		ORDER BY s.company_slug, %[1]s, s.seq DESC`,
		jobKey("s"), db.Prefixed("s", staging.JobColumns), stg, final("company"))
}

func orphanJobsSQL(stg string) string {
	return fmt.Sprintf(`SELECT count(*) FROM %s.job s
		WHERE NOT EXISTS (SELECT 1 FROM %s c WHERE c.slug = s.company_slug)`, stg, final("company"))
}

// jobStatements returns the write statements of the jobs phase, run after
// job_latest exists in the same transaction.
func jobStatements(mode Mode) ([]statement, error) {
	if mode == ModeInsert {
		sql, err := db.InsertSelect{
			Table:   final("job"),
			Columns: jobInsertColumns,
			Select: fmt.Sprintf(`SELECT l.company_id, %s FROM job_latest l
				WHERE NOT EXISTS (SELECT 1 FROM %s j WHERE j.company_id = l.company_id AND %s = %s)`,
				db.Prefixed("l", staging.JobColumns), final("job"), jobKey("j"), jobKey("l")),
		}.SQL()
		if err != nil {
			return nil, err
		}
		return []statement{{label: "insert new jobs", sql: sql}}, nil
	}

	// The lowest matching id is the canonical row when several final jobs
	// share a key.
	existing := fmt.Sprintf(`CREATE TEMP TABLE job_existing ON COMMIT DROP AS
		SELECT DISTINCT ON (l.row_id) l.row_id, j.id AS job_id
		FROM job_latest l
		JOIN %s j ON j.company_id = l.company_id AND %s = %s
		ORDER BY l.row_id, j.id`, final("job"), jobKey("j"), jobKey("l"))

	insert, err := db.InsertSelect{
		Table:   final("job"),
		Columns: jobInsertColumns,
		Select: fmt.Sprintf(`SELECT l.company_id, %s FROM job_latest l
			WHERE NOT EXISTS (SELECT 1 FROM job_existing e WHERE e.row_id = l.row_id)`,
			db.Prefixed("l", staging.JobColumns)),
	}.SQL()
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(staging.JobColumns)+1)
	for _, col := range staging.JobColumns {
		sets = append(sets, fmt.Sprintf("%s = l.%s", col, col))
	}
	sets = append(sets, "updated_at = now()")
	update := fmt.Sprintf(`UPDATE %s j SET %s
		FROM job_existing e JOIN job_latest l ON l.row_id = e.row_id
		WHERE j.id = e.job_id`, final("job"), strings.Join(sets, ", "))

	return []statement{
		{label: "partition existing jobs", sql: existing, scratch: true},
		{label: "insert new jobs", sql: insert},
		{label: "update existing jobs", sql: update},
	}, nil
}

func (t *Transformer) jobs(ctx context.Context, mode Mode) (int64, error) {
	log := zap.L().With(zap.String("component", "transform.jobs"))
	stg := t.stg.Schema()
	stmts, err := jobStatements(mode)
	if err != nil {
		return 0, err
	}

	var written int64
	err = db.WithTx(ctx, t.stg.Pool(), t.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		var orphans int64
		if err := tx.QueryRow(ctx, orphanJobsSQL(stg)).Scan(&orphans); err != nil {
			return eris.Wrap(err, "transform: count orphan jobs")
		}
		if orphans > 0 {
			log.Warn("staged jobs reference unknown companies", zap.Int64("jobs", orphans))
		}

		all := append([]statement{{label: "collapse staged jobs", sql: latestJobsSQL(stg), scratch: true}}, stmts...)
		var err error
		written, err = execAll(ctx, tx, log, all)
		return err
	})
	return written, err
}
