// Package pgxlake implements sqllake.Conn over a pgx connection pool, for
// data lakes that speak the PostgreSQL wire protocol.
package pgxlake

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ggoodman/govdata-mcp/sqllake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ sqllake.Conn = (*Lake)(nil)

// Lake is a pooled connection to the backend.
type Lake struct {
	pool   *pgxpool.Pool
	log    *slog.Logger
	closed atomic.Bool
}

// Option configures Open.
type Option func(*options)

type options struct {
	log         *slog.Logger
	maxConns    int32
	pingTimeout time.Duration
}

// WithLogger sets the logger for pool lifecycle and query events.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMaxConns bounds the pool size.
func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

// Open builds the pool and verifies the backend answers. A backend that
// cannot be reached is an error; callers treat it as fatal at startup.
func Open(ctx context.Context, dsn string, opts ...Option) (*Lake, error) {
	o := options{pingTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	// Lakes fronted by a wire-protocol gateway rarely support prepared
	// statements.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to sql backend: %w", err)
	}

	o.log.InfoContext(ctx, "sqllake.connected",
		slog.String("host", cfg.ConnConfig.Host),
		slog.String("database", cfg.ConnConfig.Database),
	)
	return &Lake{pool: pool, log: o.log}, nil
}

// Execute runs sql and collects every row.
func (l *Lake) Execute(ctx context.Context, sql string) (*sqllake.Result, error) {
	if l.closed.Load() {
		return nil, sqllake.ErrClosed
	}

	start := time.Now()
	rows, err := l.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &sqllake.Result{
		Columns: make([]string, len(fields)),
		Rows:    [][]any{},
	}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("decoding row: %w", err)
		}
		for i, v := range values {
			values[i] = sqllake.NormalizeValue(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	l.log.DebugContext(ctx, "sqllake.query.ok",
		slog.Int("rows", len(res.Rows)),
		slog.Int("columns", len(res.Columns)),
		slog.Duration("dur", time.Since(start)),
	)
	return res, nil
}

// ExecuteMetadata runs sql and keys each row by column name.
func (l *Lake) ExecuteMetadata(ctx context.Context, sql string) ([]*sqllake.Row, error) {
	res, err := l.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	return sqllake.RowsOf(res), nil
}

// Close releases the pool. It is safe to call more than once.
func (l *Lake) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.pool.Close()
	l.log.Info("sqllake.closed")
	return nil
}
