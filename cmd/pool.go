package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobdb/internal/resilience"
	"github.com/sells-group/jobdb/internal/staging"
)

// openPool connects to store.database_url, retrying transient failures.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "jobdb: parse database_url")
	}
	pcfg.MaxConns = cfg.Store.MaxConns

	retry := resilience.DefaultRetryConfig()
	if cfg.Store.ConnectAttempts > 0 {
		retry.MaxAttempts = cfg.Store.ConnectAttempts
	}
	retry.OnRetry = resilience.RetryLogger("connect postgres")

	pool, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		p, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return nil, eris.Wrap(err, "jobdb: create connection pool")
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, eris.Wrap(err, "jobdb: ping database")
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("connected to database", zap.Int32("max_conns", pcfg.MaxConns))
	return pool, nil
}

func openStaging(pool *pgxpool.Pool) (*staging.Store, error) {
	stg, err := staging.New(pool, cfg.Staging.Schema, cfg.Staging.TxTimeout)
	if err != nil {
		return nil, eris.Wrap(err, "jobdb: staging")
	}
	return stg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
