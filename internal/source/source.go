// Package source defines how domain records are read for indexing.
package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// Source yields domain records.
type Source[T any] interface {
	// Page returns up to limit records starting at offset in a stable order.
	// An empty page means the end of the data.
	Page(ctx context.Context, offset, limit int) ([]T, error)

	// ByID returns the records whose key equals id. It may return none.
	ByID(ctx context.Context, id string) ([]T, error)
}

// Record is a row read from a relational source.
type Record = map[string]any

// Funcs adapts two functions to Source.
type Funcs[T any] struct {
	PageFunc func(ctx context.Context, offset, limit int) ([]T, error)
	ByIDFunc func(ctx context.Context, id string) ([]T, error)
}

func (f Funcs[T]) Page(ctx context.Context, offset, limit int) ([]T, error) {
	return f.PageFunc(ctx, offset, limit)
}

func (f Funcs[T]) ByID(ctx context.Context, id string) ([]T, error) {
	return f.ByIDFunc(ctx, id)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Table describes the relation a SQL source reads from.
type Table struct {
	Name     string
	IDColumn string

	// Columns to select; empty selects all.
	Columns []string

	// OrderBy must give a total order so pages do not overlap.
	// Defaults to IDColumn.
	OrderBy string
}

// Validate checks identifiers so they can be placed into SQL verbatim.
func (t Table) Validate() error {
	idents := append([]string{t.Name, t.IDColumn}, t.Columns...)
	for _, term := range strings.Split(t.orderBy(), ",") {
		fields := strings.Fields(term)
		if len(fields) == 0 || len(fields) > 2 {
			return serrors.ConfigError(fmt.Sprintf("invalid order by %q", t.OrderBy), nil)
		}
		if len(fields) == 2 && !strings.EqualFold(fields[1], "asc") && !strings.EqualFold(fields[1], "desc") {
			return serrors.ConfigError(fmt.Sprintf("invalid order by %q", t.OrderBy), nil)
		}
		idents = append(idents, fields[0])
	}

	for _, id := range idents {
		if !identPattern.MatchString(id) {
			return serrors.ConfigError(fmt.Sprintf("invalid SQL identifier %q", id), nil)
		}
	}
	return nil
}

func (t Table) orderBy() string {
	if t.OrderBy != "" {
		return t.OrderBy
	}
	return t.IDColumn
}

func (t Table) columns() string {
	if len(t.Columns) == 0 {
		return "*"
	}
	return strings.Join(t.Columns, ", ")
}

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question renders "?" placeholders.
func Question(int) string { return "?" }

// Dollar renders "$n" placeholders.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// PageQuery returns the paging statement; its arguments are limit, offset.
func (t Table) PageQuery(ph Placeholder) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT %s OFFSET %s",
		t.columns(), t.Name, t.orderBy(), ph(1), ph(2))
}

// ByIDQuery returns the lookup statement; its argument is the id.
func (t Table) ByIDQuery(ph Placeholder) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		t.columns(), t.Name, t.IDColumn, ph(1))
}
