package driver

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driver.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// minidb has no story for two *minidb.DB instances sharing one file
	// concurrently, so pin the pool to the single connection every other
	// test in this file assumes.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParseDSNRequiresFileScheme(t *testing.T) {
	if _, err := parseDSN("memory:foo"); err == nil {
		t.Fatalf("expected an error for a non-file DSN")
	}
	if _, err := parseDSN("file:"); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
	path, err := parseDSN("file:/tmp/x.db")
	if err != nil {
		t.Fatalf("parseDSN: %v", err)
	}
	if path != "/tmp/x.db" {
		t.Fatalf("parseDSN path = %q, want /tmp/x.db", path)
	}
}

func TestExecCreateTableAndInsert(t *testing.T) {
	db := openDB(t)
	if _, err := db.Exec("CREATE TABLE t(id INT, name VARCHAR(20))"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	res, err := db.Exec("INSERT INTO t VALUES (1, 'Alice')")
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		t.Fatalf("RowsAffected: %v", err)
	}
	if affected != 1 {
		t.Fatalf("RowsAffected = %d, want 1", affected)
	}
}

func TestQueryScansRows(t *testing.T) {
	db := openDB(t)
	mustExec(t, db, "CREATE TABLE t(id INT, name VARCHAR(20))")
	mustExec(t, db, "INSERT INTO t VALUES (1, 'Alice')")
	mustExec(t, db, "INSERT INTO t VALUES (2, 'Bob')")

	rows, err := db.Query("SELECT id, name FROM t ORDER BY id")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer rows.Close()

	var got []struct {
		id   int64
		name string
	}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		got = append(got, struct {
			id   int64
			name string
		}{id, name})
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].name != "Alice" || got[1].name != "Bob" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestQueryWithPlaceholderBinding(t *testing.T) {
	db := openDB(t)
	mustExec(t, db, "CREATE TABLE t(id INT, name VARCHAR(20))")
	mustExec(t, db, "INSERT INTO t VALUES (1, 'Alice')")
	mustExec(t, db, "INSERT INTO t VALUES (2, 'Bob')")

	row := db.QueryRow("SELECT name FROM t WHERE id = ?", 2)
	var name string
	if err := row.Scan(&name); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if name != "Bob" {
		t.Fatalf("name = %q, want Bob", name)
	}
}

func TestQueryWithStringPlaceholderEscapesQuotes(t *testing.T) {
	db := openDB(t)
	mustExec(t, db, "CREATE TABLE t(name VARCHAR(20))")
	if _, err := db.Exec("INSERT INTO t VALUES (?)", "O'Brien"); err != nil {
		t.Fatalf("INSERT with quoted literal: %v", err)
	}
	var name string
	if err := db.QueryRow("SELECT name FROM t").Scan(&name); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if name != "O'Brien" {
		t.Fatalf("name = %q, want O'Brien", name)
	}
}

func TestTransactionCommitPersistsChanges(t *testing.T) {
	db := openDB(t)
	mustExec(t, db, "CREATE TABLE t(id INT)")

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("Exec inside tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestTransactionRollbackUndoesCreateTable(t *testing.T) {
	db := openDB(t)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.Exec("CREATE TABLE gone(id INT)"); err != nil {
		t.Fatalf("Exec inside tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := db.Exec("SELECT * FROM gone"); err == nil {
		t.Fatalf("table gone should not exist after rollback")
	}
}

func TestReadOnlyTransactionIsUnsupported(t *testing.T) {
	db := openDB(t)
	_, err := db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err == nil {
		t.Fatalf("expected an error opening a read-only transaction")
	}
}

func TestQueryOnAStatementWithNoColumnsReturnsEmptyRows(t *testing.T) {
	db := openDB(t)
	mustExec(t, db, "CREATE TABLE t(id INT)")
	mustExec(t, db, "INSERT INTO t VALUES (1)")

	rows, err := db.Query("DELETE FROM t")
	if err != nil {
		t.Fatalf("Query(DELETE): %v", err)
	}
	defer rows.Close()
	if len(rows.Columns()) != 0 {
		t.Fatalf("Columns() = %v, want none", rows.Columns())
	}
	if rows.Next() {
		t.Fatalf("expected no rows from a columnless result")
	}
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("Exec(%q): %v", query, err)
	}
}
