// Package exec turns a physical plan tree into a Volcano operator tree and
// drives it to completion: one operator per plan node, built bottom-up,
// wired against the live catalog, table heaps, and transaction manager.
package exec

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/sql/parser"
	"github.com/minidb/minidb/internal/sql/planner"
	"github.com/minidb/minidb/internal/storage/buffer"
	"github.com/minidb/minidb/internal/storage/heap"
	"github.com/minidb/minidb/internal/txn"
	"github.com/minidb/minidb/internal/value"
)

// Engine owns the live storage handles a plan tree executes against: the
// schema catalog, the buffer pool pages are paged through, one open heap per
// table, and the session's transaction manager.
type Engine struct {
	cat    *catalog.Catalog
	pool   *buffer.Pool
	tables map[string]*heap.Table
	txns   *txn.Manager
	log    zerolog.Logger
}

// NewEngine returns an engine with no tables open yet; tableFor opens and
// caches each table's heap lazily, on first reference.
func NewEngine(cat *catalog.Catalog, pool *buffer.Pool, txns *txn.Manager) *Engine {
	return &Engine{cat: cat, pool: pool, tables: make(map[string]*heap.Table), txns: txns, log: zerolog.Nop()}
}

// SetLogger attaches a logger used for debug-level operator open/close
// tracing.
func (e *Engine) SetLogger(log zerolog.Logger) { e.log = log }

func foldName(s string) string { return upper.String(s) }

// tableFor returns the open heap for name, opening it over the catalog's
// recorded page list on first reference.
func (e *Engine) tableFor(name string) (*heap.Table, *catalog.TableDef, error) {
	key := foldName(name)
	def, ok := e.cat.GetTable(name)
	if !ok {
		return nil, nil, &catalog.ErrTableNotFound{Name: name}
	}
	if t, ok := e.tables[key]; ok {
		return t, def, nil
	}

	curPages := append([]uint32{}, def.PageIDs...)
	curCount := def.RecordCount
	sync := heap.Sync{
		SetPages: func(ids []uint32) error {
			curPages = append([]uint32{}, ids...)
			return e.cat.SetStorage(def.Name, curPages, curCount)
		},
		SetCount: func(count int64) error {
			curCount = count
			return e.cat.SetStorage(def.Name, curPages, curCount)
		},
	}
	t, err := heap.Open(e.pool, def.ColumnNames(), def.PageIDs, def.RecordCount, sync)
	if err != nil {
		return nil, nil, err
	}
	e.tables[key] = t
	return t, def, nil
}

// DropTable implements txn.Undoer for rolling back a CREATE TABLE: it drops
// the table from the catalog and discards its open heap handle.
func (e *Engine) DropTable(name string) error {
	if _, err := e.cat.DropTable(name); err != nil {
		return err
	}
	delete(e.tables, foldName(name))
	return nil
}

// RecreateTable implements txn.Undoer for rolling back a DROP TABLE: it
// reinstates the captured definition, including its page list, so the
// table's rows are not lost.
func (e *Engine) RecreateTable(def *catalog.TableDef) error {
	if def == nil {
		return fmt.Errorf("exec: cannot recreate table from nil definition")
	}
	restored := *def
	if err := e.cat.CreateTable(restored); err != nil {
		return err
	}
	return e.cat.SetStorage(def.Name, def.PageIDs, def.RecordCount)
}

// QueryResult is one statement's outcome: the rows it produced (for SELECT),
// or a summary message and affected-row count (for DML/DDL/transaction
// control), plus how long execution took.
type QueryResult struct {
	Success       bool
	Message       string
	Columns       []string
	Rows          []Row
	AffectedRows  int
	ExecutionTime time.Duration
}

// Execute drives a single plan tree to completion.
func (e *Engine) Execute(node *planner.Node) (*QueryResult, error) {
	start := time.Now()
	op, err := e.build(node)
	if err != nil {
		return nil, err
	}
	e.log.Debug().Str("operator", string(node.Operator)).Msg("operator open")
	if err := op.Open(); err != nil {
		return nil, err
	}
	defer func() {
		op.Close()
		e.log.Debug().Str("operator", string(node.Operator)).Msg("operator close")
	}()

	var rows []Row
	for {
		row, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}

	result := &QueryResult{Success: true, Rows: rows, ExecutionTime: time.Since(start)}
	switch node.Operator {
	case planner.OpInsert, planner.OpDelete, planner.OpUpdate:
		result.AffectedRows = summaryCount(rows)
		result.Message = summaryMessage(node.Operator, result.AffectedRows)
	case planner.OpCreateTable, planner.OpDropTable:
		result.Message = summaryMessage(node.Operator, 0)
	case planner.OpBegin, planner.OpCommit, planner.OpRollback:
		result.Message = summaryMessage(node.Operator, 0)
	default:
		result.Columns = columnOrder(node)
	}
	return result, nil
}

func summaryCount(rows []Row) int {
	if len(rows) != 1 {
		return 0
	}
	for _, k := range []string{"INSERTED", "DELETED", "UPDATED"} {
		if v, ok := rows[0][k]; ok {
			return int(v.I)
		}
	}
	return 0
}

func summaryMessage(op planner.Op, n int) string {
	switch op {
	case planner.OpInsert:
		return fmt.Sprintf("%d row(s) inserted", n)
	case planner.OpDelete:
		return fmt.Sprintf("%d row(s) deleted", n)
	case planner.OpUpdate:
		return fmt.Sprintf("%d row(s) updated", n)
	case planner.OpCreateTable:
		return "table created"
	case planner.OpDropTable:
		return "table dropped"
	case planner.OpBegin:
		return "transaction started"
	case planner.OpCommit:
		return "transaction committed"
	case planner.OpRollback:
		return "transaction rolled back"
	default:
		return ""
	}
}

func columnOrder(node *planner.Node) []string {
	items, _ := node.Properties["items"].([]parser.SelectItem)
	cols := make([]string, 0, len(items))
	for _, it := range items {
		switch {
		case it.Star:
			cols = append(cols, "*")
		case it.Aggregate != nil:
			cols = append(cols, aggregateLabel(it.Aggregate))
		default:
			cols = append(cols, it.Column)
		}
	}
	return cols
}

// build compiles a plan node, and its children, into an operator tree.
func (e *Engine) build(node *planner.Node) (Operator, error) {
	switch node.Operator {
	case planner.OpSeqScan:
		table, _ := node.Properties["table"].(string)
		tbl, _, err := e.tableFor(table)
		if err != nil {
			return nil, err
		}
		return newSeqScan(table, tbl), nil

	case planner.OpFilter:
		child, err := e.build(node.Children[0])
		if err != nil {
			return nil, err
		}
		cond, _ := node.Properties["condition"].(parser.Expr)
		return &filterOp{child: child, condition: cond}, nil

	case planner.OpJoin:
		left, err := e.build(node.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := e.build(node.Children[1])
		if err != nil {
			return nil, err
		}
		kind, _ := node.Properties["join_type"].(parser.JoinKind)
		cond, _ := node.Properties["condition"].(parser.Expr)
		return &joinOp{left: left, right: right, kind: kind, condition: cond}, nil

	case planner.OpSort:
		child, err := e.build(node.Children[0])
		if err != nil {
			return nil, err
		}
		items, _ := node.Properties["sort_items"].([]parser.SortItem)
		return &sortOp{child: child, items: items}, nil

	case planner.OpProject:
		child, err := e.build(node.Children[0])
		if err != nil {
			return nil, err
		}
		items, _ := node.Properties["items"].([]parser.SelectItem)
		return &projectOp{child: child, items: items, columns: e.scanColumns(node.Children[0])}, nil

	case planner.OpCreateTable:
		return e.buildCreateTable(node)
	case planner.OpDropTable:
		return e.buildDropTable(node)
	case planner.OpInsert:
		return e.buildInsert(node)
	case planner.OpDelete:
		return e.buildDelete(node)
	case planner.OpUpdate:
		return e.buildUpdate(node)
	case planner.OpBegin:
		return e.buildBegin(), nil
	case planner.OpCommit:
		return e.buildCommit(), nil
	case planner.OpRollback:
		return e.buildRollback(), nil

	default:
		return nil, fmt.Errorf("exec: unsupported plan operator %s", node.Operator)
	}
}

// scanColumns walks down to the SeqScan leaves under node and returns the
// union of their tables' declared column names, used for '*' expansion.
func (e *Engine) scanColumns(node *planner.Node) []string {
	var cols []string
	var walk func(n *planner.Node)
	walk = func(n *planner.Node) {
		if n.Operator == planner.OpSeqScan {
			if table, ok := n.Properties["table"].(string); ok {
				if def, ok := e.cat.GetTable(table); ok {
					cols = append(cols, def.ColumnNames()...)
				}
			}
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(node)
	return cols
}

// --- DDL --------------------------------------------------------------

// buildCreateTable does not register the table with the catalog: the
// analyzer already did that (so later statements in the same program see
// the new schema). Execution only needs to open the table's heap and log
// the operation for undo.
func (e *Engine) buildCreateTable(node *planner.Node) (Operator, error) {
	table, _ := node.Properties["table"].(string)

	return &singleRowOp{run: func() (Row, error) {
		if _, _, err := e.tableFor(table); err != nil {
			return nil, err
		}
		e.txns.LogCreateTable(table)
		return Row{"CREATED": value.NewString(table)}, nil
	}}, nil
}

func (e *Engine) buildDropTable(node *planner.Node) (Operator, error) {
	table, _ := node.Properties["table"].(string)
	resolved := planner.ResolvedDropTable(node)

	return &singleRowOp{run: func() (Row, error) {
		delete(e.tables, foldName(table))
		e.txns.LogDropTable(table, resolved)
		return Row{"DROPPED": value.NewString(table)}, nil
	}}, nil
}

// --- DML ----------------------------------------------------------------

func (e *Engine) buildInsert(node *planner.Node) (Operator, error) {
	table, _ := node.Properties["table"].(string)
	cols, _ := node.Properties["columns"].([]string)
	values, _ := node.Properties["values"].([]parser.Expr)

	return &singleRowOp{run: func() (Row, error) {
		tbl, def, err := e.tableFor(table)
		if err != nil {
			return nil, err
		}
		names := cols
		if names == nil {
			names = def.ColumnNames()
		}
		if len(names) != len(values) {
			return nil, fmt.Errorf("exec: insert into %q expects %d values, got %d", table, len(names), len(values))
		}
		raw := make(catalog.Row, len(names))
		for i, n := range names {
			raw[upper.String(n)] = evalExpr(values[i], nil)
		}
		record, err := e.cat.ValidateRecord(table, raw)
		if err != nil {
			return nil, err
		}
		if err := tbl.Insert(record); err != nil {
			return nil, err
		}
		e.txns.LogInsert(table, record)
		return Row{"INSERTED": value.NewInt(1)}, nil
	}}, nil
}

func (e *Engine) buildDelete(node *planner.Node) (Operator, error) {
	table, _ := node.Properties["table"].(string)
	cond, _ := node.Properties["condition"].(parser.Expr)

	return &singleRowOp{run: func() (Row, error) {
		tbl, _, err := e.tableFor(table)
		if err != nil {
			return nil, err
		}
		n, err := tbl.Delete(func(row catalog.Row) bool {
			return EvalCondition(cond, Row(row))
		})
		if err != nil {
			return nil, err
		}
		e.txns.LogDelete(table, nil)
		return Row{"DELETED": value.NewInt(int64(n))}, nil
	}}, nil
}

func (e *Engine) buildUpdate(node *planner.Node) (Operator, error) {
	table, _ := node.Properties["table"].(string)
	cond, _ := node.Properties["condition"].(parser.Expr)
	assignments, _ := node.Properties["assignments"].([]parser.Assignment)

	return &singleRowOp{run: func() (Row, error) {
		tbl, _, err := e.tableFor(table)
		if err != nil {
			return nil, err
		}
		var applyErr error
		n, err := tbl.Update(
			func(row catalog.Row) bool { return EvalCondition(cond, Row(row)) },
			func(row catalog.Row) catalog.Row {
				current := Row(row)
				next := make(catalog.Row, len(row))
				for k, v := range row {
					next[k] = v
				}
				for _, a := range assignments {
					next[upper.String(a.Column)] = evalExpr(a.Value, current)
				}
				validated, verr := e.cat.ValidateRecord(table, next)
				if verr != nil {
					if applyErr == nil {
						applyErr = verr
					}
					return row
				}
				return validated
			},
		)
		if err != nil {
			return nil, err
		}
		if applyErr != nil {
			return nil, applyErr
		}
		e.txns.LogUpdate(table, nil, nil)
		return Row{"UPDATED": value.NewInt(int64(n))}, nil
	}}, nil
}

// --- transaction control -------------------------------------------------

func (e *Engine) buildBegin() Operator {
	return &singleRowOp{run: func() (Row, error) {
		id, err := e.txns.Begin()
		if err != nil {
			return nil, err
		}
		return Row{"TXN_ID": value.NewString(id)}, nil
	}}
}

func (e *Engine) buildCommit() Operator {
	return &singleRowOp{run: func() (Row, error) {
		_, err := e.txns.Commit()
		if err != nil {
			return nil, err
		}
		return Row{"STATUS": value.NewString("COMMITTED")}, nil
	}}
}

func (e *Engine) buildRollback() Operator {
	return &singleRowOp{run: func() (Row, error) {
		steps, err := e.txns.Rollback()
		if err != nil {
			return nil, err
		}
		return Row{"STATUS": value.NewString("ROLLED_BACK"), "UNDO_STEPS": value.NewInt(int64(len(steps)))}, nil
	}}
}
