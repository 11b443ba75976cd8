// Package driver implements a database/sql driver for minidb.
//
// What: a minimal driver exposing minidb through the standard database/sql
// interfaces, file-backed only ("file:path") since minidb has no in-memory
// mode. How: one *minidb.DB per driver.Conn, with BeginTx/Commit/Rollback
// mapped straight onto the facade's BEGIN/COMMIT/ROLLBACK statements, since
// minidb's transaction manager already serializes to a single active
// transaction with no concurrent readers to isolate from. Placeholders (?)
// are bound by literal substitution.
package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/minidb/minidb"
	"github.com/minidb/minidb/internal/exec"
	"github.com/minidb/minidb/internal/value"
)

var defaultDrv = &drv{}

func init() {
	sql.Register("minidb", defaultDrv)
}

// SetDefaultDB registers db as the instance subsequent Open("") calls reuse,
// for embedding environments that already hold a *minidb.DB.
func SetDefaultDB(db *minidb.DB) { defaultDrv.shared = db }

// Open returns a *sql.DB backed by a file-resident minidb database.
func Open(path string) (*sql.DB, error) { return sql.Open("minidb", "file:"+path) }

func parseDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "file:") {
		return "", fmt.Errorf("driver: unsupported DSN %q, expected file:<path>", dsn)
	}
	path := strings.TrimPrefix(dsn, "file:")
	if path == "" {
		return "", fmt.Errorf("driver: file: DSN requires a path")
	}
	return path, nil
}

type drv struct{ shared *minidb.DB }

func (d *drv) Open(name string) (driver.Conn, error) {
	if d.shared != nil {
		return &conn{db: d.shared}, nil
	}
	path, err := parseDSN(name)
	if err != nil {
		return nil, err
	}
	db, err := minidb.Open(path)
	if err != nil {
		return nil, err
	}
	return &conn{db: db, owned: true}, nil
}

// conn wraps one *minidb.DB. minidb serializes every statement under its own
// lock, so conn needs no concurrency primitives of its own.
type conn struct {
	db    *minidb.DB
	owned bool
}

func (c *conn) Prepare(query string) (driver.Stmt, error) { return &stmt{c: c, sql: query}, nil }

func (c *conn) Close() error {
	if c.owned {
		return c.db.Close()
	}
	return nil
}

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if opts.ReadOnly {
		return nil, fmt.Errorf("driver: read-only transactions are not supported")
	}
	if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) {
		return nil, fmt.Errorf("driver: isolation level %v is not supported", opts.Isolation)
	}
	if _, err := c.db.Execute("BEGIN"); err != nil {
		return nil, err
	}
	return &tx{c: c}, nil
}

func (c *conn) Ping(ctx context.Context) error { return nil }

type tx struct{ c *conn }

func (t *tx) Commit() error {
	_, err := t.c.db.Execute("COMMIT")
	return err
}

func (t *tx) Rollback() error {
	_, err := t.c.db.Execute("ROLLBACK")
	return err
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	bound, err := bindPlaceholders(query, args)
	if err != nil {
		return nil, err
	}
	return c.execSQL(bound)
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	bound, err := bindPlaceholders(query, args)
	if err != nil {
		return nil, err
	}
	return c.querySQL(bound)
}

func (c *conn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.ExecContext(context.Background(), query, namedFromValues(args))
}

func (c *conn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.QueryContext(context.Background(), query, namedFromValues(args))
}

func namedFromValues(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func (c *conn) execSQL(sqlStr string) (driver.Result, error) {
	res, err := c.db.Execute(sqlStr)
	if err != nil {
		return nil, err
	}
	return execResult{affected: int64(res.AffectedRows)}, nil
}

func (c *conn) querySQL(sqlStr string) (driver.Rows, error) {
	res, err := c.db.Execute(sqlStr)
	if err != nil {
		return nil, err
	}
	if len(res.Columns) == 0 {
		return emptyRows{}, nil
	}
	return &rows{cols: res.Columns, data: res.Rows}, nil
}

type execResult struct{ affected int64 }

func (r execResult) LastInsertId() (int64, error) {
	return 0, fmt.Errorf("driver: LastInsertId is not supported")
}
func (r execResult) RowsAffected() (int64, error) { return r.affected, nil }

func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	switch nv.Value.(type) {
	case int64, float64, bool, []byte, string, nil:
		return nil
	default:
		return driver.ErrSkip
	}
}

type stmt struct {
	c   *conn
	sql string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.c.Exec(s.sql, args)
}
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.c.Query(s.sql, args)
}
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.c.ExecContext(ctx, s.sql, args)
}
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.c.QueryContext(ctx, s.sql, args)
}

// rows adapts an exec.QueryResult's rows, keyed by column name per row, to
// driver.Rows' positional scanning.
type rows struct {
	cols []string
	data []exec.Row
	pos  int
}

func (r *rows) Columns() []string { return r.cols }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.pos]
	r.pos++
	for i, col := range r.cols {
		v, ok := row[strings.ToUpper(col)]
		if !ok || v.IsNull() {
			dest[i] = nil
			continue
		}
		switch v.Kind {
		case value.KindInt:
			dest[i] = v.I
		default:
			dest[i] = v.S
		}
	}
	return nil
}

func (r *rows) ColumnTypeDatabaseTypeName(i int) string { return "TEXT" }
func (r *rows) ColumnTypeNullable(i int) (bool, bool)   { return true, true }
func (r *rows) ColumnTypeScanType(i int) any            { return "interface{}" }

type emptyRows struct{}

func (emptyRows) Columns() []string                     { return []string{} }
func (emptyRows) Close() error                          { return nil }
func (emptyRows) Next([]driver.Value) error             { return io.EOF }
func (emptyRows) ColumnTypeDatabaseTypeName(int) string { return "TEXT" }
func (emptyRows) ColumnTypeNullable(int) (bool, bool)   { return true, true }
func (emptyRows) ColumnTypeScanType(int) any            { return "interface{}" }

// bindPlaceholders substitutes each ? in sqlStr with its bound literal, in
// order. Strings are single-quote escaped; there is no other SQL injection
// surface since every value becomes a self-contained literal.
func bindPlaceholders(sqlStr string, args []driver.NamedValue) (string, error) {
	if len(args) == 0 {
		return sqlStr, nil
	}
	var b strings.Builder
	argIdx := 0
	for i := 0; i < len(sqlStr); i++ {
		ch := sqlStr[i]
		if ch != '?' {
			b.WriteByte(ch)
			continue
		}
		if argIdx >= len(args) {
			return "", fmt.Errorf("driver: not enough arguments for placeholders: have %d", len(args))
		}
		b.WriteString(sqlLiteral(args[argIdx].Value))
		argIdx++
	}
	if argIdx != len(args) {
		return "", fmt.Errorf("driver: too many arguments for placeholders: have %d, used %d", len(args), argIdx)
	}
	return b.String(), nil
}

func sqlLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case []byte:
		return "'" + strings.ReplaceAll(string(t), "'", "''") + "'"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(t), "'", "''") + "'"
	}
}
