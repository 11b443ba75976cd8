// Package planner turns a validated AST into a tree of physical plan
// operators, built bottom-up: one node per operator kind, a property bag,
// and an ordered child list, with tree-string introspection kept for
// diagnostics.
package planner

import (
	"fmt"
	"strings"

	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/sql/parser"
)

// Op names a physical plan operator kind.
type Op string

const (
	OpCreateTable Op = "CreateTable"
	OpInsert      Op = "Insert"
	OpSeqScan     Op = "SeqScan"
	OpFilter      Op = "Filter"
	OpProject     Op = "Project"
	OpSort        Op = "Sort"
	OpJoin        Op = "Join"
	OpDelete      Op = "Delete"
	OpUpdate      Op = "Update"
	OpDropTable   Op = "DropTable"
	OpBegin       Op = "Begin"
	OpCommit      Op = "Commit"
	OpRollback    Op = "Rollback"
)

// Node is one plan tree node.
type Node struct {
	Operator   Op
	Properties map[string]any
	Children   []*Node
}

func newNode(op Op, props map[string]any, children ...*Node) *Node {
	return &Node{Operator: op, Properties: props, Children: children}
}

// ToTreeString renders the plan as an indented, parenthesized tree for
// diagnostics.
func (n *Node) ToTreeString(indent int) string {
	prefix := strings.Repeat("  ", indent)
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(string(n.Operator))
	if len(n.Properties) > 0 {
		sb.WriteString("(")
		first := true
		for k, v := range n.Properties {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sb, "%s=%v", k, v)
		}
		sb.WriteString(")")
	}
	sb.WriteString("\n")
	for _, c := range n.Children {
		sb.WriteString(c.ToTreeString(indent + 1))
	}
	return sb.String()
}

// Generate builds one plan tree per top-level statement in prog.
func Generate(prog *parser.Program) ([]*Node, error) {
	plans := make([]*Node, 0, len(prog.Statements))
	for _, stmt := range prog.Statements {
		node, err := generateStmt(stmt)
		if err != nil {
			return nil, err
		}
		plans = append(plans, node)
	}
	return plans, nil
}

func generateStmt(stmt parser.Stmt) (*Node, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return newNode(OpCreateTable, map[string]any{"table": s.Table, "columns": s.Columns}), nil
	case *parser.InsertStmt:
		return newNode(OpInsert, map[string]any{"table": s.Table, "columns": s.Columns, "values": s.Values}), nil
	case *parser.SelectStmt:
		return generateSelect(s)
	case *parser.DeleteStmt:
		return newNode(OpDelete, map[string]any{"table": s.Table, "condition": s.Where}), nil
	case *parser.UpdateStmt:
		return newNode(OpUpdate, map[string]any{"table": s.Table, "assignments": s.Assignments, "condition": s.Where}), nil
	case *parser.DropTableStmt:
		return newNode(OpDropTable, map[string]any{"table": s.Table, "resolved": s.Resolved()}), nil
	case *parser.BeginStmt:
		return newNode(OpBegin, nil), nil
	case *parser.CommitStmt:
		return newNode(OpCommit, nil), nil
	case *parser.RollbackStmt:
		return newNode(OpRollback, nil), nil
	default:
		return nil, fmt.Errorf("planner: unsupported statement type %T", stmt)
	}
}

func generateSelect(s *parser.SelectStmt) (*Node, error) {
	root := newNode(OpSeqScan, map[string]any{"table": s.Table})

	if s.Where != nil {
		root = newNode(OpFilter, map[string]any{"condition": s.Where}, root)
	}

	for _, j := range s.Joins {
		right := newNode(OpSeqScan, map[string]any{"table": j.Table})
		root = newNode(OpJoin, map[string]any{"join_type": j.Kind, "condition": j.On}, root, right)
	}

	if len(s.OrderBy) > 0 {
		root = newNode(OpSort, map[string]any{"sort_items": s.OrderBy}, root)
	}

	root = newNode(OpProject, map[string]any{"items": s.Items}, root)
	return root, nil
}

// ResolvedDropTable extracts the analyzer-captured table definition from a
// DropTable plan node's properties, if present.
func ResolvedDropTable(n *Node) *catalog.TableDef {
	v, ok := n.Properties["resolved"]
	if !ok || v == nil {
		return nil
	}
	def, _ := v.(*catalog.TableDef)
	return def
}
