package transform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
	"github.com/sells-group/jobdb/internal/staging"
)

// companySQL copies staged companies into jobdb.company. Upsert refreshes
// every sourced column; id, num_jobs and created_at are never written.
func companySQL(stg string, mode Mode) (string, error) {
	s := db.InsertSelect{
		Table:        final("company"),
		Columns:      staging.CompanyColumns,
		Select:       fmt.Sprintf("SELECT %s FROM %s.company s", db.Prefixed("s", staging.CompanyColumns), stg),
		ConflictKeys: []string{"slug"},
	}
	if mode == ModeUpsert {
		s.UpdateCols = db.Except(staging.CompanyColumns, "slug")
		s.Touch = "updated_at"
	}
	return s.SQL()
}

func (t *Transformer) companies(ctx context.Context, mode Mode) (int64, error) {
	log := zap.L().With(zap.String("component", "transform.companies"))
	sql, err := companySQL(t.stg.Schema(), mode)
	if err != nil {
		return 0, err
	}

	var n int64
	err = db.WithTx(ctx, t.stg.Pool(), t.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		n, err = execAll(ctx, tx, log, []statement{{label: "upsert companies", sql: sql}})
		return err
	})
	return n, err
}
