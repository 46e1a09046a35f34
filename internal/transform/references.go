package transform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/db"
)

var founderColumns = []string{"id", "name", "title", "linkedin", "twitter", "bio", "image_url"}

// referenceStatements inserts the distinct market, stage, office, investor
// and founder keys as entities, then the company edges joined on natural
// key. Edges are only ever added.
func referenceStatements(stg string, mode Mode) ([]statement, error) {
	upsert := mode == ModeUpsert

	specs := []struct {
		label string
		is    db.InsertSelect
	}{
		{"insert markets", db.InsertSelect{
			Table:        final("market"),
			Columns:      []string{"name"},
			Select:       fmt.Sprintf("SELECT DISTINCT s.market FROM %s.company_market s", stg),
			ConflictKeys: []string{"name"},
		}},
		{"link company markets", db.InsertSelect{
			Table:   final("company_market"),
			Columns: []string{"company_id", "market_id"},
			Select: fmt.Sprintf(`SELECT DISTINCT c.id, m.id FROM %s.company_market s
				JOIN %s c ON c.slug = s.company_slug
				JOIN %s m ON m.name = s.market`, stg, final("company"), final("market")),
		}},
		{"insert stages", db.InsertSelect{
			Table:        final("stage"),
			Columns:      []string{"name"},
			Select:       fmt.Sprintf("SELECT DISTINCT s.stage FROM %s.company_stage s", stg),
			ConflictKeys: []string{"name"},
		}},
		{"link company stages", db.InsertSelect{
			Table:   final("company_stage"),
			Columns: []string{"company_id", "stage_id"},
			Select: fmt.Sprintf(`SELECT DISTINCT c.id, g.id FROM %s.company_stage s
				JOIN %s c ON c.slug = s.company_slug
				JOIN %s g ON g.name = s.stage`, stg, final("company"), final("stage")),
		}},
		{"insert offices", db.InsertSelect{
			Table:   final("office"),
			Columns: []string{"location"},
			Select: fmt.Sprintf(`SELECT s.location FROM %s.company_office s
				UNION SELECT l.location FROM %s.job_location l`, stg, stg),
			ConflictKeys: []string{"location"},
		}},
		{"link company offices", db.InsertSelect{
			Table:   final("company_office"),
			Columns: []string{"company_id", "office_id"},
			Select: fmt.Sprintf(`SELECT DISTINCT c.id, o.id FROM %s.company_office s
				JOIN %s c ON c.slug = s.company_slug
				JOIN %s o ON o.location = s.location`, stg, final("company"), final("office")),
		}},
		{"insert investors", investorInsert(stg, upsert)},
		{"link company investors", db.InsertSelect{
			Table:   final("company_investor"),
			Columns: []string{"company_id", "investor_id"},
			Select: fmt.Sprintf(`SELECT DISTINCT c.id, i.id FROM %s.company_investor s
				JOIN %s c ON c.slug = s.company_slug
				JOIN %s i ON i.slug = s.investor_slug`, stg, final("company"), final("investor")),
		}},
		{"insert founders", founderInsert(stg, upsert)},
		{"link company founders", db.InsertSelect{
			Table:   final("company_founder"),
			Columns: []string{"company_id", "founder_id"},
			Select: fmt.Sprintf(`SELECT DISTINCT c.id, f.id FROM %s.company_founder s
				JOIN %s c ON c.slug = s.company_slug
				JOIN %s f ON f.id = s.founder_id`, stg, final("company"), final("founder")),
		}},
		{"link company parents", db.InsertSelect{
			Table:   final("company_parent"),
			Columns: []string{"company_id", "parent_id"},
			Select: fmt.Sprintf(`SELECT DISTINCT c.id, p.id FROM %s.company_parent s
				JOIN %s c ON c.slug = s.company_slug
				JOIN %s p ON p.slug = s.parent_slug
				WHERE c.id <> p.id`, stg, final("company"), final("company")),
		}},
	}

	out := make([]statement, 0, len(specs))
	for _, s := range specs {
		sql, err := s.is.SQL()
		if err != nil {
			return nil, err
		}
		out = append(out, statement{label: s.label, sql: sql})
	}
	return out, nil
}

// The latest staged spelling of an investor name wins.
func investorInsert(stg string, upsert bool) db.InsertSelect {
	is := db.InsertSelect{
		Table:   final("investor"),
		Columns: []string{"slug", "name"},
		Select: fmt.Sprintf(`SELECT DISTINCT ON (s.investor_slug) s.investor_slug, s.investor_name
			FROM %s.company_investor s ORDER BY s.investor_slug, s.id DESC`, stg),
		ConflictKeys: []string{"slug"},
	}
	if upsert {
		is.UpdateCols = []string{"name"}
		is.Touch = "updated_at"
	}
	return is
}

func founderInsert(stg string, upsert bool) db.InsertSelect {
	is := db.InsertSelect{
		Table:   final("founder"),
		Columns: founderColumns,
		Select: fmt.Sprintf(`SELECT DISTINCT ON (s.founder_id) s.founder_id, %s
			FROM %s.company_founder s ORDER BY s.founder_id, s.id DESC`,
			db.Prefixed("s", founderColumns[1:]), stg),
		ConflictKeys: []string{"id"},
	}
	if upsert {
		is.UpdateCols = db.Except(founderColumns, "id")
		is.Touch = "updated_at"
	}
	return is
}

func (t *Transformer) references(ctx context.Context, mode Mode) (int64, error) {
	log := zap.L().With(zap.String("component", "transform.references"))
	stmts, err := referenceStatements(t.stg.Schema(), mode)
	if err != nil {
		return 0, err
	}

	var n int64
	err = db.WithTx(ctx, t.stg.Pool(), t.opts.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		n, err = execAll(ctx, tx, log, stmts)
		return err
	})
	return n, err
}
