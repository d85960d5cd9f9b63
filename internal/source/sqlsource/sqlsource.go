// Package sqlsource reads records from a database/sql connection.
//
// The pure-Go SQLite driver is registered as "sqlite". Any other registered
// driver that accepts "?" placeholders works as well.
package sqlsource

import (
	"context"
	"database/sql"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/source"
)

// Source pages through one table.
type Source struct {
	db      *sql.DB
	owned   bool
	pageSQL string
	byIDSQL string
}

var _ source.Source[source.Record] = (*Source)(nil)

// Open connects with driver and dsn. The returned source owns the pool.
func Open(driver, dsn string, table source.Table) (*Source, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, serrors.ConfigError("failed to open "+driver+" source", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "failed to connect to "+driver+" source", err)
	}

	s, err := New(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true

	slog.Debug("sql_source_opened", slog.String("driver", driver), slog.String("table", table.Name))
	return s, nil
}

// New reads from an existing pool. Close leaves the pool open.
func New(db *sql.DB, table source.Table) (*Source, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		db:      db,
		pageSQL: table.PageQuery(source.Question),
		byIDSQL: table.ByIDQuery(source.Question),
	}, nil
}

// Page returns up to limit rows starting at offset.
func (s *Source) Page(ctx context.Context, offset, limit int) ([]source.Record, error) {
	return s.query(ctx, s.pageSQL, limit, offset)
}

// ByID returns the rows keyed by id.
func (s *Source) ByID(ctx context.Context, id string) ([]source.Record, error) {
	return s.query(ctx, s.byIDSQL, id)
}

// Close releases the pool if the source opened it.
func (s *Source) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func (s *Source) query(ctx context.Context, query string, args ...any) ([]source.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "source query failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "read source columns", err)
	}

	var out []source.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, serrors.New(serrors.ErrCodeSourceFailed, "scan source row", err)
		}

		rec := make(source.Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
				continue
			}
			rec[col] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.New(serrors.ErrCodeSourceFailed, "iterate source rows", err)
	}
	return out, nil
}
