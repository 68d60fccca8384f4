package db

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// mockDBTX is a testify mock of DBTX. Expectations see the query
// arguments as a single []any.
type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	rows, _ := args.Get(0).(pgx.Rows)
	return rows, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	return m.Called(ctx, sql, arguments).Get(0).(pgx.Row)
}

// mockRow answers QueryRow. scanFn, when set, replaces the default of
// copying values.
type mockRow struct {
	values  []any
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	switch {
	case r.scanErr != nil:
		return r.scanErr
	case r.scanFn != nil:
		return r.scanFn(dest...)
	default:
		return assignRow(r.values, dest)
	}
}

// mockRows implements pgx.Rows over in-memory cells.
type mockRows struct {
	data    [][]any
	pos     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data}
}

func (r *mockRows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assignRow(r.data[r.pos-1], dest)
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// assignRow copies cells into scan destinations the way pgx would: a nil
// cell is NULL, a value lands behind a pointer destination when the column
// is nullable, and named types such as types.Role convert from strings.
func assignRow(cells, dest []any) error {
	if len(cells) < len(dest) {
		return fmt.Errorf("mock row has %d columns, scan wants %d", len(cells), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if cells[i] == nil {
			target.SetZero()
			continue
		}
		v := reflect.ValueOf(cells[i])
		if target.Kind() == reflect.Pointer && v.Type().ConvertibleTo(target.Type().Elem()) {
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(v.Convert(target.Type().Elem()))
			target.Set(p)
			continue
		}
		if !v.Type().ConvertibleTo(target.Type()) {
			return fmt.Errorf("column %d: cannot scan %T into %s", i, cells[i], target.Type())
		}
		target.Set(v.Convert(target.Type()))
	}
	return nil
}
