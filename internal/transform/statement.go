package transform

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
	"github.com/sells-group/jobdb/internal/schema"
)

// statement is one labelled SQL statement of a sub-phase.
type statement struct {
	label   string
	sql     string
	args    []any
	scratch bool // fills a temp or mapping table; not counted as written rows
}

// execAll runs stmts in order on q and returns the rows written by the
// non-scratch statements.
func execAll(ctx context.Context, q db.Querier, log *zap.Logger, stmts []statement) (int64, error) {
	var total int64
	for _, s := range stmts {
		tag, err := q.Exec(ctx, s.sql, s.args...)
		if err != nil {
			return total, eris.Wrapf(err, "transform: %s", s.label)
		}
		n := tag.RowsAffected()
		if !s.scratch {
			total += n
		}
		log.Debug("statement applied", zap.String("step", s.label), zap.Int64("rows", n))
	}
	return total, nil
}

// jobKey renders the job match key for a table alias: the posting url when
// present, otherwise the title. It must stay in step with idx_job_match_key.
func jobKey(alias string) string {
	return fmt.Sprintf("(CASE WHEN %[1]s.url <> '' THEN 'url:' || %[1]s.url ELSE 'title:' || %[1]s.title END)", alias)
}

// final returns a qualified jobdb table name.
func final(name string) string {
	return schema.Table(name)
}
