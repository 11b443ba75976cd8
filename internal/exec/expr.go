package exec

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/minidb/minidb/internal/sql/parser"
	"github.com/minidb/minidb/internal/value"
)

// Row is a decoded tuple flowing between operators, keyed by upper-cased
// column name and, when it came from a named scan, also by
// "QUALIFIER.COLUMN" so qualified identifiers in joins resolve correctly.
type Row map[string]value.Value

var upper = cases.Upper(language.Und)

func foldKey(s string) string { return upper.String(s) }

// qualify tags every key in row with table as a prefix, in addition to the
// bare column name, so a later Filter/Project/Join can resolve both
// "orders.amt" and "amt".
func qualify(row Row, table string) Row {
	out := make(Row, len(row)*2)
	prefix := foldKey(table) + "."
	for k, v := range row {
		out[k] = v
		out[prefix+k] = v
	}
	return out
}

// merge combines a left and right row for a join. Column-name collisions
// on the bare key resolve last-write-wins (right overwrites left); the
// qualified keys from both sides are preserved so either side is still
// addressable by qualifier.
func merge(left, right Row) Row {
	out := make(Row, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		out[k] = v
	}
	return out
}

// evalExpr evaluates e against row. Unknown identifiers yield NULL rather
// than an error, matching the executor's documented evaluation semantics.
func evalExpr(e parser.Expr, row Row) value.Value {
	switch ex := e.(type) {
	case *parser.LiteralExpr:
		switch {
		case ex.IsInt:
			return value.NewInt(ex.Int)
		case ex.IsStr:
			return value.NewString(ex.Str)
		default:
			return value.Null
		}
	case *parser.IdentExpr:
		if ex.Qualifier != "" {
			key := foldKey(ex.Qualifier) + "." + foldKey(ex.Name)
			if v, ok := row[key]; ok {
				return v
			}
			return value.Null
		}
		if v, ok := row[foldKey(ex.Name)]; ok {
			return v
		}
		return value.Null
	case *parser.BinaryExpr:
		return evalBinary(ex, row)
	default:
		return value.Null
	}
}

func evalBinary(ex *parser.BinaryExpr, row Row) value.Value {
	switch ex.Op {
	case parser.OpOr:
		if truthy(evalExpr(ex.Left, row)) {
			return value.NewInt(1)
		}
		return boolValue(truthy(evalExpr(ex.Right, row)))
	case parser.OpAnd:
		if !truthy(evalExpr(ex.Left, row)) {
			return value.NewInt(0)
		}
		return boolValue(truthy(evalExpr(ex.Right, row)))
	default:
		return boolValue(compare(ex.Op, evalExpr(ex.Left, row), evalExpr(ex.Right, row)))
	}
}

func boolValue(b bool) value.Value {
	if b {
		return value.NewInt(1)
	}
	return value.NewInt(0)
}

// truthy reports whether the already-evaluated value v counts as true.
func truthy(v value.Value) bool { return v.Truthy() }

// EvalCondition evaluates a WHERE/ON/HAVING-shaped expression to a boolean,
// with NULL and incompatible-family comparisons evaluating to false.
func EvalCondition(e parser.Expr, row Row) bool {
	if e == nil {
		return true
	}
	return truthy(evalExpr(e, row))
}

// compare applies a comparison operator to two values. Any comparison with
// NULL on either side, != included, evaluates to false; comparisons across
// incompatible type families evaluate to false.
func compare(op parser.BinOp, a, b value.Value) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	if !value.SameFamily(a, b) {
		return false
	}
	switch a.Kind {
	case value.KindInt:
		return compareOrdered(op, a.I, b.I)
	default:
		return compareOrdered(op, a.S, b.S)
	}
}

func compareOrdered[T int64 | string](op parser.BinOp, a, b T) bool {
	switch op {
	case parser.OpEq:
		return a == b
	case parser.OpNeq:
		return a != b
	case parser.OpLt:
		return a < b
	case parser.OpGt:
		return a > b
	case parser.OpLte:
		return a <= b
	case parser.OpGte:
		return a >= b
	default:
		return false
	}
}
