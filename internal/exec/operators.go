package exec

import (
	"fmt"
	"sort"

	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/sql/parser"
	"github.com/minidb/minidb/internal/storage/heap"
	"github.com/minidb/minidb/internal/value"
)

// Operator is the pull-based iterator contract every plan node implements:
// open, next (explicit end-of-stream rather than a sentinel exception),
// close.
type Operator interface {
	Open() error
	Next() (Row, bool, error)
	Close() error
}

// --- SeqScan -------------------------------------------------------------

// seqScanOp restartably scans a table heap, tagging each row with its
// table's name as a qualifier.
type seqScanOp struct {
	table string
	tbl   *heap.Table
	rows  []Row
	idx   int
}

func newSeqScan(table string, tbl *heap.Table) *seqScanOp {
	return &seqScanOp{table: table, tbl: tbl}
}

func (o *seqScanOp) Open() error {
	o.rows = nil
	o.idx = 0
	return o.tbl.Scan(func(r catalog.Row) bool {
		row := make(Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		o.rows = append(o.rows, qualify(row, o.table))
		return true
	})
}

func (o *seqScanOp) Next() (Row, bool, error) {
	if o.idx >= len(o.rows) {
		return nil, false, nil
	}
	r := o.rows[o.idx]
	o.idx++
	return r, true, nil
}

func (o *seqScanOp) Close() error { return nil }

// --- Filter ----------------------------------------------------------------

type filterOp struct {
	child     Operator
	condition parser.Expr
}

func (o *filterOp) Open() error { return o.child.Open() }

func (o *filterOp) Next() (Row, bool, error) {
	for {
		row, ok, err := o.child.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		if EvalCondition(o.condition, row) {
			return row, true, nil
		}
	}
}

func (o *filterOp) Close() error { return o.child.Close() }

// --- Join --------------------------------------------------------------

type joinOp struct {
	left, right Operator
	kind        parser.JoinKind
	condition   parser.Expr

	rightRows    []Row
	rightMatched []bool
	rightShape   Row // one right row's keys, used to null-fill unmatched left rows
	leftShape    Row // one left row's keys, used to null-fill for unmatched right rows

	pending      []Row
	pendingIdx   int
	leftDrained  bool
	emittedRight bool
}

func (o *joinOp) Open() error {
	if err := o.left.Open(); err != nil {
		return err
	}
	if err := o.right.Open(); err != nil {
		return err
	}
	o.rightRows = nil
	for {
		r, ok, err := o.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		o.rightRows = append(o.rightRows, r)
	}
	if len(o.rightRows) > 0 {
		o.rightShape = o.rightRows[0]
	}
	o.rightMatched = make([]bool, len(o.rightRows))
	return o.right.Close()
}

func nullFilled(shape Row) Row {
	out := make(Row, len(shape))
	for k := range shape {
		out[k] = value.Null
	}
	return out
}

func (o *joinOp) Next() (Row, bool, error) {
	for {
		if o.pendingIdx < len(o.pending) {
			r := o.pending[o.pendingIdx]
			o.pendingIdx++
			return r, true, nil
		}

		if !o.leftDrained {
			row, ok, err := o.left.Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				o.leftDrained = true
				continue
			}
			if o.leftShape == nil {
				o.leftShape = row
			}

			var matches []Row
			for i, rr := range o.rightRows {
				combined := merge(row, rr)
				if EvalCondition(o.condition, combined) {
					matches = append(matches, combined)
					o.rightMatched[i] = true
				}
			}
			if len(matches) == 0 && (o.kind == parser.JoinLeft || o.kind == parser.JoinFull) {
				matches = append(matches, merge(row, nullFilled(o.rightShape)))
			}
			o.pending = matches
			o.pendingIdx = 0
			continue
		}

		if !o.emittedRight {
			o.emittedRight = true
			if o.kind == parser.JoinRight || o.kind == parser.JoinFull {
				var matches []Row
				for i, rr := range o.rightRows {
					if !o.rightMatched[i] {
						matches = append(matches, merge(nullFilled(o.leftShape), rr))
					}
				}
				o.pending = matches
				o.pendingIdx = 0
				continue
			}
		}

		return nil, false, nil
	}
}

func (o *joinOp) Close() error { return o.left.Close() }

// --- Project ---------------------------------------------------------------

type projectOp struct {
	child    Operator
	items    []parser.SelectItem
	columns  []string // declared order, used for '*' expansion
	done     bool
	yielded  bool
	rowsOnce []Row
}

func isAggregateProjection(items []parser.SelectItem) bool {
	for _, it := range items {
		if it.Aggregate != nil {
			return true
		}
	}
	return false
}

func (o *projectOp) Open() error { return o.child.Open() }

func (o *projectOp) Next() (Row, bool, error) {
	if isAggregateProjection(o.items) {
		if o.done {
			return nil, false, nil
		}
		o.done = true
		return o.computeAggregates()
	}

	row, ok, err := o.child.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	return o.projectRow(row), true, nil
}

func (o *projectOp) projectRow(row Row) Row {
	out := make(Row)
	for _, item := range o.items {
		if item.Star {
			for _, c := range o.columns {
				out[foldKey(c)] = row[foldKey(c)]
			}
			continue
		}
		if item.Aggregate != nil {
			continue
		}
		out[foldKey(item.Column)] = row[foldKey(item.Column)]
	}
	return out
}

func (o *projectOp) computeAggregates() (Row, bool, error) {
	var rows []Row
	for {
		row, ok, err := o.child.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}

	out := make(Row)
	for _, item := range o.items {
		if item.Aggregate == nil {
			continue
		}
		key, v := evalAggregate(item.Aggregate, rows)
		out[key] = v
	}
	return out, true, nil
}

func (o *projectOp) Close() error { return o.child.Close() }

func aggregateLabel(agg *parser.AggregateExpr) string {
	fn := aggregateFnName(agg.Fn)
	arg := "*"
	if !agg.Star {
		if id, ok := agg.Arg.(*parser.IdentExpr); ok {
			arg = id.Name
		}
	}
	if agg.Distinct {
		return fmt.Sprintf("%s(DISTINCT %s)", fn, arg)
	}
	return fmt.Sprintf("%s(%s)", fn, arg)
}

func aggregateFnName(fn parser.AggregateFn) string {
	switch fn {
	case parser.AggCount:
		return "COUNT"
	case parser.AggSum:
		return "SUM"
	case parser.AggAvg:
		return "AVG"
	case parser.AggMax:
		return "MAX"
	case parser.AggMin:
		return "MIN"
	default:
		return "?"
	}
}

func evalAggregate(agg *parser.AggregateExpr, rows []Row) (string, value.Value) {
	label := aggregateLabel(agg)

	if agg.Fn == parser.AggCount && agg.Star {
		return label, value.NewInt(int64(len(rows)))
	}

	var values []value.Value
	for _, r := range rows {
		v := evalExpr(agg.Arg, r)
		if v.IsNull() {
			continue
		}
		values = append(values, v)
	}
	if agg.Distinct {
		values = distinctValues(values)
	}

	switch agg.Fn {
	case parser.AggCount:
		return label, value.NewInt(int64(len(values)))
	case parser.AggSum:
		var sum int64
		for _, v := range values {
			sum += v.I
		}
		return label, value.NewInt(sum)
	case parser.AggAvg:
		if len(values) == 0 {
			return label, value.Null
		}
		var sum int64
		for _, v := range values {
			sum += v.I
		}
		return label, value.NewInt(sum / int64(len(values)))
	case parser.AggMax:
		if len(values) == 0 {
			return label, value.Null
		}
		best := values[0]
		for _, v := range values[1:] {
			if compare(parser.OpGt, v, best) {
				best = v
			}
		}
		return label, best
	case parser.AggMin:
		if len(values) == 0 {
			return label, value.Null
		}
		best := values[0]
		for _, v := range values[1:] {
			if compare(parser.OpLt, v, best) {
				best = v
			}
		}
		return label, best
	default:
		return label, value.Null
	}
}

func distinctValues(values []value.Value) []value.Value {
	seen := make(map[string]bool, len(values))
	out := make([]value.Value, 0, len(values))
	for _, v := range values {
		k := v.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// --- Sort --------------------------------------------------------------

type sortOp struct {
	child Operator
	items []parser.SortItem
	rows  []Row
	idx   int
}

func (o *sortOp) Open() error {
	if err := o.child.Open(); err != nil {
		return err
	}
	o.rows = nil
	for {
		row, ok, err := o.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		o.rows = append(o.rows, row)
	}
	sort.SliceStable(o.rows, func(i, j int) bool { return o.less(o.rows[i], o.rows[j]) })
	o.idx = 0
	return nil
}

func (o *sortOp) less(a, b Row) bool {
	for _, item := range o.items {
		va := evalExpr(item.Expr, a)
		vb := evalExpr(item.Expr, b)
		cmp := compareNullsLast(va, vb)
		if cmp == 0 {
			continue
		}
		if va.IsNull() || vb.IsNull() {
			return cmp < 0
		}
		if item.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// compareNullsLast returns -1/0/1, with NULL sorting after every non-NULL
// value regardless of sort direction.
func compareNullsLast(a, b value.Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return 1
	}
	if b.IsNull() {
		return -1
	}
	switch a.Kind {
	case value.KindInt:
		switch {
		case a.I < b.I:
			return -1
		case a.I > b.I:
			return 1
		default:
			return 0
		}
	default:
		switch {
		case a.S < b.S:
			return -1
		case a.S > b.S:
			return 1
		default:
			return 0
		}
	}
}

func (o *sortOp) Next() (Row, bool, error) {
	if o.idx >= len(o.rows) {
		return nil, false, nil
	}
	r := o.rows[o.idx]
	o.idx++
	return r, true, nil
}

func (o *sortOp) Close() error { return o.child.Close() }

// --- summary-row operators (DML/DDL/txn control) --------------------------

// singleRowOp runs a side-effecting action once, then yields one summary
// row and ends.
type singleRowOp struct {
	run  func() (Row, error)
	row  Row
	done bool
	err  error
	ran  bool
}

func (o *singleRowOp) Open() error { return nil }

func (o *singleRowOp) Next() (Row, bool, error) {
	if o.done {
		return nil, false, nil
	}
	if !o.ran {
		o.row, o.err = o.run()
		o.ran = true
	}
	o.done = true
	if o.err != nil {
		return nil, false, o.err
	}
	return o.row, true, nil
}

func (o *singleRowOp) Close() error { return nil }

