// Package pgsource reads records from PostgreSQL with pgx.
package pgsource

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/source"
)

// Querier is the subset of pgxpool.Pool and pgx.Conn the source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source pages through one table.
type Source struct {
	q       Querier
	pool    *pgxpool.Pool
	pageSQL string
	byIDSQL string
}

var _ source.Source[source.Record] = (*Source)(nil)

// Connect opens a pool for dsn. The returned source owns the pool.
func Connect(ctx context.Context, dsn string, table source.Table) (*Source, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, serrors.ConfigError("invalid postgres dsn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "failed to create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "failed to connect to postgres", err)
	}

	s, err := New(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool

	slog.Debug("pg_source_connected", slog.String("table", table.Name), slog.Int("max_conns", int(cfg.MaxConns)))
	return s, nil
}

// New reads through q.
func New(q Querier, table source.Table) (*Source, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		q:       q,
		pageSQL: table.PageQuery(source.Dollar),
		byIDSQL: table.ByIDQuery(source.Dollar),
	}, nil
}

// Page returns up to limit rows starting at offset.
func (s *Source) Page(ctx context.Context, offset, limit int) ([]source.Record, error) {
	return s.collect(ctx, s.pageSQL, limit, offset)
}

// ByID returns the rows keyed by id.
func (s *Source) ByID(ctx context.Context, id string) ([]source.Record, error) {
	return s.collect(ctx, s.byIDSQL, id)
}

// Close releases the pool if the source opened it.
func (s *Source) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Source) collect(ctx context.Context, sql string, args ...any) ([]source.Record, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "source query failed", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "collect source rows", err)
	}
	return recs, nil
}
