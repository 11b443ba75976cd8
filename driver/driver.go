// Package driver re-exports minidb's database/sql driver under a stable
// public path, keeping the implementation under internal/driver and
// exposing only a thin wrapper here.
package driver

import (
	"database/sql"

	"github.com/minidb/minidb"
	id "github.com/minidb/minidb/internal/driver"
)

// DriverName is the registered database/sql driver name for minidb.
const DriverName = "minidb"

// Open is a convenience wrapper around `sql.Open(DriverName, dsn)`, where dsn
// is a `file:<path>` DSN.
func Open(dsn string) (*sql.DB, error) { return sql.Open(DriverName, dsn) }

// OpenFile opens a file-backed minidb database by constructing a `file:` DSN
// for `sql.Open`.
func OpenFile(path string) (*sql.DB, error) { return Open("file:" + path) }

// OpenWithDB registers the provided *minidb.DB as the driver's default
// connection target and returns a *sql.DB wrapping it. Useful for embedding
// or tests that already hold an open database.
func OpenWithDB(db *minidb.DB) (*sql.DB, error) {
	SetDefaultDB(db)
	return Open("")
}

// SetDefaultDB re-exports the internal driver's registration hook so
// external consumers have a stable public API while the implementation
// stays under internal/driver.
var SetDefaultDB = id.SetDefaultDB

