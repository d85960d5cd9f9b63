package pgsource

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/source"
)

func newMock(t *testing.T) pgxmock.PgxConnIface {
	t.Helper()
	mock, err := pgxmock.NewConn(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mock.Close(context.Background()) })
	return mock
}

func TestPage_UsesLimitOffset(t *testing.T) {
	mock := newMock(t)
	src, err := New(mock, source.Table{Name: "products", IDColumn: "id"})
	require.NoError(t, err)

	rows := mock.NewRows([]string{"id", "name"}).
		AddRow("p1", "tea").
		AddRow("p2", "coffee")
	mock.ExpectQuery("SELECT * FROM products ORDER BY id LIMIT $1 OFFSET $2").
		WithArgs(500, 1000).
		WillReturnRows(rows)

	page, err := src.Page(context.Background(), 1000, 500)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, source.Record{"id": "p1", "name": "tea"}, page[0])
	assert.Equal(t, "coffee", page[1]["name"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestByID(t *testing.T) {
	mock := newMock(t)
	src, err := New(mock, source.Table{Name: "products", IDColumn: "sku", Columns: []string{"sku", "price"}})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT sku, price FROM products WHERE sku = $1").
		WithArgs("A-1").
		WillReturnRows(mock.NewRows([]string{"sku", "price"}).AddRow("A-1", 9.5))
	mock.ExpectQuery("SELECT sku, price FROM products WHERE sku = $1").
		WithArgs("missing").
		WillReturnRows(mock.NewRows([]string{"sku", "price"}))

	recs, err := src.ByID(context.Background(), "A-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 9.5, recs[0]["price"])

	recs, err = src.ByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPage_QueryError(t *testing.T) {
	mock := newMock(t)
	src, err := New(mock, source.Table{Name: "products", IDColumn: "id"})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT * FROM products ORDER BY id LIMIT $1 OFFSET $2").
		WithArgs(10, 0).
		WillReturnError(errors.New("connection reset"))

	_, err = src.Page(context.Background(), 0, 10)
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeSourceFailed, serrors.GetCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", source.Table{Name: "p", IDColumn: "id"})
	require.Error(t, err)
	assert.True(t, serrors.IsConfig(err))
}
