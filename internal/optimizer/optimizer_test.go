package optimizer

import (
	"testing"

	"github.com/minidb/minidb/internal/sql/parser"
	"github.com/minidb/minidb/internal/sql/planner"
)

func mustPlan(t *testing.T, src string) *planner.Node {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parser.Parse(%q): %v", src, err)
	}
	plans, err := planner.Generate(prog)
	if err != nil {
		t.Fatalf("planner.Generate(%q): %v", src, err)
	}
	return plans[0]
}

func TestOptimizeFoldsLiteralComparison(t *testing.T) {
	root := mustPlan(t, "SELECT * FROM t WHERE 1 = 1")
	stats := Optimize(root)
	if stats.ConstantFolds != 1 {
		t.Fatalf("ConstantFolds = %d, want 1", stats.ConstantFolds)
	}
	filter := root.Children[0]
	cond, ok := filter.Properties["condition"].(*parser.LiteralExpr)
	if !ok || !cond.IsInt || cond.Int != 1 {
		t.Fatalf("folded condition = %+v, want literal 1", filter.Properties["condition"])
	}
}

func TestOptimizeDoesNotFoldNonLiteralComparison(t *testing.T) {
	root := mustPlan(t, "SELECT * FROM t WHERE id = 1")
	stats := Optimize(root)
	if stats.ConstantFolds != 0 {
		t.Fatalf("ConstantFolds = %d, want 0 for a column comparison", stats.ConstantFolds)
	}
}

func TestOptimizePreservesOperatorShape(t *testing.T) {
	root := mustPlan(t, "SELECT * FROM a JOIN b ON a.id = b.id WHERE a.x = 1 ORDER BY a.x")
	before := countOps(root)
	Optimize(root)
	after := countOps(root)
	if before != after {
		t.Fatalf("optimizer changed operator counts: before=%v after=%v", before, after)
	}
}

func countOps(n *planner.Node) map[planner.Op]int {
	counts := map[planner.Op]int{}
	var walk func(*planner.Node)
	walk = func(node *planner.Node) {
		counts[node.Operator]++
		for _, c := range node.Children {
			walk(c)
		}
	}
	walk(n)
	return counts
}

func TestOptimizePushesFilterOntoTheTableItActuallyNames(t *testing.T) {
	root := mustPlan(t, "SELECT * FROM a JOIN b ON a.id = b.id WHERE b.x = 1")
	stats := Optimize(root)
	if stats.PredicatePushdowns != 1 {
		t.Fatalf("PredicatePushdowns = %d, want 1", stats.PredicatePushdowns)
	}

	join := root.Children[0]
	if join.Operator != planner.OpJoin {
		t.Fatalf("root.Children[0].Operator = %v, want Join", join.Operator)
	}
	if join.Children[0].Operator != planner.OpSeqScan {
		t.Fatalf("join.Children[0].Operator = %v, want SeqScan (filter should have moved off the left side)", join.Children[0].Operator)
	}
	right := join.Children[1]
	if right.Operator != planner.OpFilter {
		t.Fatalf("join.Children[1].Operator = %v, want Filter", right.Operator)
	}
	if right.Children[0].Operator != planner.OpSeqScan {
		t.Fatalf("right filter should wrap a SeqScan, got %v", right.Children[0].Operator)
	}
}

func TestOptimizeDoesNotPushFilterAcrossAnOuterJoin(t *testing.T) {
	root := mustPlan(t, "SELECT * FROM a LEFT JOIN b ON a.id = b.id WHERE b.x = 5")
	stats := Optimize(root)
	if stats.PredicatePushdowns != 0 {
		t.Fatalf("PredicatePushdowns = %d, want 0: pushing a right-side predicate below a LEFT JOIN changes which rows are unmatched", stats.PredicatePushdowns)
	}

	join := root.Children[0]
	if join.Children[0].Operator != planner.OpFilter {
		t.Fatalf("join.Children[0].Operator = %v, want Filter to stay on the join's left input", join.Children[0].Operator)
	}
}

func TestOptimizeLeavesACorrectlyPlacedFilterAlone(t *testing.T) {
	root := mustPlan(t, "SELECT * FROM a JOIN b ON a.id = b.id WHERE a.x = 1")
	stats := Optimize(root)
	if stats.PredicatePushdowns != 0 {
		t.Fatalf("PredicatePushdowns = %d, want 0 when the filter already names the side it sits on", stats.PredicatePushdowns)
	}

	join := root.Children[0]
	if join.Children[0].Operator != planner.OpFilter {
		t.Fatalf("join.Children[0].Operator = %v, want Filter to stay put", join.Children[0].Operator)
	}
}

func TestStatsAddAccumulates(t *testing.T) {
	var total Stats
	total.Add(Stats{ConstantFolds: 2, PredicatePushdowns: 1})
	total.Add(Stats{ConstantFolds: 3})
	if total.ConstantFolds != 5 || total.PredicatePushdowns != 1 {
		t.Fatalf("Add did not accumulate correctly: %+v", total)
	}
}
