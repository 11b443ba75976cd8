// Package optimizer is an optional, plan-shape-preserving pre-pass run
// between plan generation and execution: constant folding and predicate
// pushdown into join scans. It never introduces or removes operator kinds;
// the one rewrite it performs is relocating a Filter from one side of a
// Join to the other when the condition can only be resolved against that
// other side.
package optimizer

import (
	"github.com/minidb/minidb/internal/sql/parser"
	"github.com/minidb/minidb/internal/sql/planner"
)

// Stats counts how many rewrites of each category were applied, surfaced
// through the facade's performance_stats.
type Stats struct {
	ConstantFolds      int
	PredicatePushdowns int
}

// Add accumulates another Stats into s.
func (s *Stats) Add(o Stats) {
	s.ConstantFolds += o.ConstantFolds
	s.PredicatePushdowns += o.PredicatePushdowns
}

// Optimize rewrites node (and its children) in place and returns the
// rewrite counts for this one plan tree.
func Optimize(node *planner.Node) Stats {
	var stats Stats
	optimizeNode(node, &stats)
	return stats
}

func optimizeNode(node *planner.Node, stats *Stats) {
	if node == nil {
		return
	}
	for _, c := range node.Children {
		optimizeNode(c, stats)
	}

	switch node.Operator {
	case planner.OpFilter:
		if cond, ok := node.Properties["condition"].(parser.Expr); ok {
			node.Properties["condition"] = foldConstants(cond, stats)
		}
	case planner.OpJoin:
		if cond, ok := node.Properties["condition"].(parser.Expr); ok {
			node.Properties["condition"] = foldConstants(cond, stats)
		}
		pushFilterIntoJoin(node, stats)
	}
}

// foldConstants collapses a binary expression whose both sides are already
// integer literals into a single literal 1/0.
func foldConstants(e parser.Expr, stats *Stats) parser.Expr {
	bin, ok := e.(*parser.BinaryExpr)
	if !ok {
		return e
	}
	bin.Left = foldConstants(bin.Left, stats)
	bin.Right = foldConstants(bin.Right, stats)

	ll, lok := bin.Left.(*parser.LiteralExpr)
	rl, rok := bin.Right.(*parser.LiteralExpr)
	if !lok || !rok || !ll.IsInt || !rl.IsInt {
		return bin
	}
	if bin.Op == parser.OpAnd || bin.Op == parser.OpOr {
		return bin
	}

	var result bool
	switch bin.Op {
	case parser.OpEq:
		result = ll.Int == rl.Int
	case parser.OpNeq:
		result = ll.Int != rl.Int
	case parser.OpLt:
		result = ll.Int < rl.Int
	case parser.OpGt:
		result = ll.Int > rl.Int
	case parser.OpLte:
		result = ll.Int <= rl.Int
	case parser.OpGte:
		result = ll.Int >= rl.Int
	default:
		return bin
	}
	stats.ConstantFolds++
	folded := int64(0)
	if result {
		folded = 1
	}
	return &parser.LiteralExpr{Pos: bin.Pos, IsInt: true, Int: folded}
}

// pushFilterIntoJoin moves a Filter sitting on a Join's left child over to
// whichever side its condition actually names. The generator always wraps a
// WHERE condition around the base table's scan before any joins are added,
// so a Filter ends up on the left side of the innermost Join regardless of
// which table it names; if the whole condition is only resolvable against
// the right side instead, evaluating it there lets the join see the smaller,
// already-filtered side on the correct input. Conservative: it only acts on
// an INNER Join whose left child is a Filter directly wrapping a base scan,
// and only when the whole condition names one side. Outer joins are left
// alone: moving a predicate on the non-preserved side below a LEFT/RIGHT/
// FULL join changes which rows count as "unmatched" and get null-filled,
// which is not an equivalent rewrite.
func pushFilterIntoJoin(join *planner.Node, stats *Stats) {
	if join.Properties["join_type"] != parser.JoinInner {
		return
	}
	if len(join.Children) != 2 || join.Children[0].Operator != planner.OpFilter {
		return
	}
	filter := join.Children[0]
	if len(filter.Children) != 1 {
		return
	}
	cond, _ := filter.Properties["condition"].(parser.Expr)
	if cond == nil {
		return
	}

	leftTable, leftIsScan := tableName(filter.Children[0])
	rightTable, _ := tableName(join.Children[1])

	switch {
	case leftIsScan && onlyReferences(cond, leftTable):
		return
	case onlyReferences(cond, rightTable):
		join.Children[0] = filter.Children[0]
		join.Children[1] = &planner.Node{
			Operator:   planner.OpFilter,
			Properties: map[string]any{"condition": cond},
			Children:   []*planner.Node{join.Children[1]},
		}
		stats.PredicatePushdowns++
	}
}

func tableName(n *planner.Node) (string, bool) {
	if n.Operator != planner.OpSeqScan {
		return "", false
	}
	t, ok := n.Properties["table"].(string)
	return t, ok
}

// onlyReferences reports whether every identifier in e is qualified to
// table, or unqualified (in which case it cannot be proven safe to push, so
// this returns false conservatively).
func onlyReferences(e parser.Expr, table string) bool {
	if table == "" {
		return false
	}
	switch ex := e.(type) {
	case *parser.LiteralExpr:
		return true
	case *parser.IdentExpr:
		return ex.Qualifier != "" && equalFold(ex.Qualifier, table)
	case *parser.BinaryExpr:
		return onlyReferences(ex.Left, table) && onlyReferences(ex.Right, table)
	default:
		return false
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 32
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}
