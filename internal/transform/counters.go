package transform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
)

// countersSQL recomputes company.num_jobs, touching only companies whose
// stored count is stale.
func countersSQL() string {
	return fmt.Sprintf(`UPDATE %[1]s c SET num_jobs = n.cnt
		FROM (
			SELECT c2.id, count(j.id) AS cnt
			FROM %[1]s c2
			LEFT JOIN %[2]s j ON j.company_id = c2.id
			GROUP BY c2.id
		) n
		WHERE c.id = n.id AND c.num_jobs IS DISTINCT FROM n.cnt`, final("company"), final("job"))
}

func (t *Transformer) counters(ctx context.Context, _ Mode) (int64, error) {
	log := zap.L().With(zap.String("component", "transform.counters"))
	var n int64
	err := db.WithTx(ctx, t.stg.Pool(), t.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		n, err = execAll(ctx, tx, log, []statement{{label: "refresh job counts", sql: countersSQL()}})
		return err
	})
	return n, err
}
