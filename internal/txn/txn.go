// Package txn implements minidb's session-local transaction control: begin,
// commit, rollback, and a best-effort undo log, in Go's explicit-error
// style (no printed warnings; rollback returns a report the caller can
// surface instead).
package txn

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/minidb/minidb/internal/catalog"
)

// State is a transaction's lifecycle state.
type State int

const (
	Active State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// OperationType names the kind of mutation an undo log entry records.
type OperationType int

const (
	OpInsert OperationType = iota
	OpUpdate
	OpDelete
	OpCreateTable
	OpDropTable
)

func (o OperationType) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpCreateTable:
		return "CREATE_TABLE"
	case OpDropTable:
		return "DROP_TABLE"
	default:
		return "UNKNOWN"
	}
}

// LogEntry is one undo-log record.
type LogEntry struct {
	TxnID     string
	Op        OperationType
	Table     string
	OldRow    catalog.Row
	NewRow    catalog.Row
	DroppedAt *catalog.TableDef // populated for OpDropTable so it can be recreated
	Timestamp time.Time
}

// Transaction is one in-flight or completed transaction.
type Transaction struct {
	ID             string
	State          State
	StartTime      time.Time
	Log            []LogEntry
	ModifiedTables map[string]bool
}

func (t *Transaction) addLog(e LogEntry) {
	t.Log = append(t.Log, e)
	if t.ModifiedTables == nil {
		t.ModifiedTables = make(map[string]bool)
	}
	t.ModifiedTables[e.Table] = true
}

// UndoStep reports what rollback did (or could not do) for one log entry.
type UndoStep struct {
	Entry   LogEntry
	Applied bool
	Note    string
}

// Undoer performs the storage-level work rollback needs: dropping a table
// created inside the aborted transaction, or recreating one dropped inside
// it. INSERT/UPDATE/DELETE undo is intentionally not part of this
// interface — the baseline heap has no stable row identity to undo
// against, so those log entries are reported, not replayed.
type Undoer interface {
	DropTable(name string) error
	RecreateTable(def *catalog.TableDef) error
}

// Manager is the session's single-transaction controller: at most one
// ACTIVE transaction at a time.
type Manager struct {
	undoer  Undoer
	current *Transaction
	global  []LogEntry
}

// NewManager returns a transaction manager bound to undoer for rollback of
// reversible operations.
func NewManager(undoer Undoer) *Manager {
	return &Manager{undoer: undoer}
}

// IsActive reports whether a transaction is currently in progress.
func (m *Manager) IsActive() bool {
	return m.current != nil && m.current.State == Active
}

// CurrentTxnID returns the active transaction's id, or "" if none.
func (m *Manager) CurrentTxnID() string {
	if m.current == nil {
		return ""
	}
	return m.current.ID
}

// Begin starts a new transaction, first committing any outstanding one. The
// transaction id is a uuid.
func (m *Manager) Begin() (string, error) {
	if m.IsActive() {
		if _, err := m.Commit(); err != nil {
			return "", err
		}
	}
	m.current = &Transaction{ID: uuid.NewString(), State: Active, StartTime: time.Now()}
	return m.current.ID, nil
}

// Commit finalizes the active transaction.
func (m *Manager) Commit() (bool, error) {
	if !m.IsActive() {
		return false, nil
	}
	m.current.State = Committed
	m.global = append(m.global, m.current.Log...)
	m.current = nil
	return true, nil
}

// Rollback aborts the active transaction and replays its undo log in
// reverse, returning one UndoStep per entry.
func (m *Manager) Rollback() ([]UndoStep, error) {
	if !m.IsActive() {
		return nil, nil
	}
	t := m.current
	t.State = Aborted
	m.current = nil

	steps := make([]UndoStep, 0, len(t.Log))
	for i := len(t.Log) - 1; i >= 0; i-- {
		entry := t.Log[i]
		steps = append(steps, m.undo(entry))
	}
	return steps, nil
}

func (m *Manager) undo(entry LogEntry) UndoStep {
	switch entry.Op {
	case OpCreateTable:
		if m.undoer == nil {
			return UndoStep{Entry: entry, Applied: false, Note: "no storage bound for undo"}
		}
		if err := m.undoer.DropTable(entry.Table); err != nil {
			return UndoStep{Entry: entry, Applied: false, Note: err.Error()}
		}
		return UndoStep{Entry: entry, Applied: true}
	case OpDropTable:
		if m.undoer == nil || entry.DroppedAt == nil {
			return UndoStep{Entry: entry, Applied: false, Note: "cannot undo DROP TABLE: no stored definition"}
		}
		if err := m.undoer.RecreateTable(entry.DroppedAt); err != nil {
			return UndoStep{Entry: entry, Applied: false, Note: err.Error()}
		}
		return UndoStep{Entry: entry, Applied: true}
	case OpInsert, OpUpdate, OpDelete:
		return UndoStep{
			Entry:   entry,
			Applied: false,
			Note:    fmt.Sprintf("cannot precisely undo %s on %q: no stable row identity", entry.Op, entry.Table),
		}
	default:
		return UndoStep{Entry: entry, Applied: false, Note: "unknown operation type"}
	}
}

// LogInsert records an insert under the active transaction, if any.
func (m *Manager) LogInsert(table string, row catalog.Row) {
	if !m.IsActive() {
		return
	}
	m.current.addLog(LogEntry{TxnID: m.current.ID, Op: OpInsert, Table: table, NewRow: row, Timestamp: time.Now()})
}

// LogUpdate records an update under the active transaction, if any.
func (m *Manager) LogUpdate(table string, oldRow, newRow catalog.Row) {
	if !m.IsActive() {
		return
	}
	m.current.addLog(LogEntry{TxnID: m.current.ID, Op: OpUpdate, Table: table, OldRow: oldRow, NewRow: newRow, Timestamp: time.Now()})
}

// LogDelete records a delete under the active transaction, if any.
func (m *Manager) LogDelete(table string, row catalog.Row) {
	if !m.IsActive() {
		return
	}
	m.current.addLog(LogEntry{TxnID: m.current.ID, Op: OpDelete, Table: table, OldRow: row, Timestamp: time.Now()})
}

// LogCreateTable records a CREATE TABLE under the active transaction, if any.
func (m *Manager) LogCreateTable(table string) {
	if !m.IsActive() {
		return
	}
	m.current.addLog(LogEntry{TxnID: m.current.ID, Op: OpCreateTable, Table: table, Timestamp: time.Now()})
}

// LogDropTable records a DROP TABLE (with its definition, for undo) under
// the active transaction, if any.
func (m *Manager) LogDropTable(table string, def *catalog.TableDef) {
	if !m.IsActive() {
		return
	}
	m.current.addLog(LogEntry{TxnID: m.current.ID, Op: OpDropTable, Table: table, DroppedAt: def, Timestamp: time.Now()})
}

// Info summarizes the active transaction for diagnostics.
type Info struct {
	InTransaction  bool
	TxnID          string
	State          string
	StartTime      time.Time
	Operations     int
	ModifiedTables []string
}

// TransactionInfo reports the active transaction's state, if any.
func (m *Manager) TransactionInfo() Info {
	if !m.IsActive() {
		return Info{InTransaction: false}
	}
	tables := make([]string, 0, len(m.current.ModifiedTables))
	for t := range m.current.ModifiedTables {
		tables = append(tables, t)
	}
	return Info{
		InTransaction:  true,
		TxnID:          m.current.ID,
		State:          m.current.State.String(),
		StartTime:      m.current.StartTime,
		Operations:     len(m.current.Log),
		ModifiedTables: tables,
	}
}
