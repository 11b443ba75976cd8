package parser

import "testing"

func parseOne(t *testing.T, src string) Stmt {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	if len(prog.Statements) != 1 {
		t.Fatalf("Parse(%q) produced %d statements, want 1", src, len(prog.Statements))
	}
	return prog.Statements[0]
}

func TestParseCreateTable(t *testing.T) {
	st := parseOne(t, "CREATE TABLE users(id INT, name VARCHAR(50))")
	ct, ok := st.(*CreateTableStmt)
	if !ok {
		t.Fatalf("got %T, want *CreateTableStmt", st)
	}
	if ct.Table != "users" || len(ct.Columns) != 2 {
		t.Fatalf("unexpected CreateTableStmt: %+v", ct)
	}
	if ct.Columns[1].Type != ColVarChar || ct.Columns[1].Size != 50 {
		t.Fatalf("unexpected column def: %+v", ct.Columns[1])
	}
}

func TestParseInsertWithAndWithoutColumnList(t *testing.T) {
	st := parseOne(t, "INSERT INTO users VALUES (1, 'Alice')")
	ins, ok := st.(*InsertStmt)
	if !ok {
		t.Fatalf("got %T, want *InsertStmt", st)
	}
	if ins.Columns != nil {
		t.Fatalf("bare INSERT should leave Columns nil, got %v", ins.Columns)
	}
	if len(ins.Values) != 2 {
		t.Fatalf("want 2 values, got %d", len(ins.Values))
	}

	st = parseOne(t, "INSERT INTO users (id, name) VALUES (1, 'Alice')")
	ins = st.(*InsertStmt)
	if len(ins.Columns) != 2 || ins.Columns[0] != "id" {
		t.Fatalf("unexpected column list: %v", ins.Columns)
	}
}

func TestParseSelectStar(t *testing.T) {
	st := parseOne(t, "SELECT * FROM users")
	sel, ok := st.(*SelectStmt)
	if !ok {
		t.Fatalf("got %T, want *SelectStmt", st)
	}
	if len(sel.Items) != 1 || !sel.Items[0].Star {
		t.Fatalf("unexpected select items: %+v", sel.Items)
	}
	if sel.Table != "users" || sel.Where != nil {
		t.Fatalf("unexpected select: %+v", sel)
	}
}

func TestParseSelectWithWhereAndOrderBy(t *testing.T) {
	st := parseOne(t, "SELECT id, age FROM t WHERE age > 20 ORDER BY age DESC, id ASC")
	sel := st.(*SelectStmt)
	if len(sel.Items) != 2 || sel.Items[0].Column != "id" || sel.Items[1].Column != "age" {
		t.Fatalf("unexpected items: %+v", sel.Items)
	}
	if sel.Where == nil {
		t.Fatalf("expected a WHERE clause")
	}
	if len(sel.OrderBy) != 2 || !sel.OrderBy[0].Desc || sel.OrderBy[1].Desc {
		t.Fatalf("unexpected order by: %+v", sel.OrderBy)
	}
}

func TestParseJoinClause(t *testing.T) {
	st := parseOne(t, "SELECT users.name, orders.amt FROM users JOIN orders ON users.id = orders.uid")
	sel := st.(*SelectStmt)
	if len(sel.Joins) != 1 {
		t.Fatalf("want 1 join, got %d", len(sel.Joins))
	}
	j := sel.Joins[0]
	if j.Kind != JoinInner || j.Table != "orders" || j.On == nil {
		t.Fatalf("unexpected join clause: %+v", j)
	}
}

func TestParseOuterJoinKinds(t *testing.T) {
	cases := map[string]JoinKind{
		"LEFT JOIN":  JoinLeft,
		"RIGHT JOIN": JoinRight,
		"FULL JOIN":  JoinFull,
		"INNER JOIN": JoinInner,
	}
	for clause, want := range cases {
		st := parseOne(t, "SELECT * FROM a "+clause+" b ON a.id = b.id")
		sel := st.(*SelectStmt)
		if len(sel.Joins) != 1 || sel.Joins[0].Kind != want {
			t.Fatalf("%s: got %+v, want kind %v", clause, sel.Joins, want)
		}
	}
}

func TestParseAggregateCall(t *testing.T) {
	st := parseOne(t, "SELECT COUNT(*), SUM(v), AVG(DISTINCT v) FROM nums")
	sel := st.(*SelectStmt)
	if len(sel.Items) != 3 {
		t.Fatalf("want 3 items, got %d", len(sel.Items))
	}
	if sel.Items[0].Aggregate == nil || sel.Items[0].Aggregate.Fn != AggCount || !sel.Items[0].Aggregate.Star {
		t.Fatalf("unexpected COUNT(*) item: %+v", sel.Items[0])
	}
	if sel.Items[2].Aggregate == nil || !sel.Items[2].Aggregate.Distinct {
		t.Fatalf("unexpected AVG(DISTINCT v) item: %+v", sel.Items[2])
	}
}

func TestParseDelete(t *testing.T) {
	st := parseOne(t, "DELETE FROM t WHERE id = 1")
	del, ok := st.(*DeleteStmt)
	if !ok {
		t.Fatalf("got %T, want *DeleteStmt", st)
	}
	if del.Table != "t" || del.Where == nil {
		t.Fatalf("unexpected delete: %+v", del)
	}

	st = parseOne(t, "DELETE FROM t")
	del = st.(*DeleteStmt)
	if del.Where != nil {
		t.Fatalf("bare DELETE should have nil WHERE")
	}
}

func TestParseUpdate(t *testing.T) {
	st := parseOne(t, "UPDATE t SET a = 1, b = c WHERE id = 1")
	upd, ok := st.(*UpdateStmt)
	if !ok {
		t.Fatalf("got %T, want *UpdateStmt", st)
	}
	if len(upd.Assignments) != 2 || upd.Assignments[0].Column != "a" {
		t.Fatalf("unexpected assignments: %+v", upd.Assignments)
	}
	if upd.Where == nil {
		t.Fatalf("expected a WHERE clause")
	}
}

func TestParseDropTable(t *testing.T) {
	st := parseOne(t, "DROP TABLE t")
	drop, ok := st.(*DropTableStmt)
	if !ok {
		t.Fatalf("got %T, want *DropTableStmt", st)
	}
	if drop.Table != "t" {
		t.Fatalf("unexpected drop: %+v", drop)
	}
}

func TestParseTransactionControl(t *testing.T) {
	if _, ok := parseOne(t, "BEGIN").(*BeginStmt); !ok {
		t.Fatalf("BEGIN did not parse as *BeginStmt")
	}
	if _, ok := parseOne(t, "BEGIN TRANSACTION").(*BeginStmt); !ok {
		t.Fatalf("BEGIN TRANSACTION did not parse as *BeginStmt")
	}
	if _, ok := parseOne(t, "COMMIT").(*CommitStmt); !ok {
		t.Fatalf("COMMIT did not parse as *CommitStmt")
	}
	if _, ok := parseOne(t, "ROLLBACK").(*RollbackStmt); !ok {
		t.Fatalf("ROLLBACK did not parse as *RollbackStmt")
	}
}

func TestParseMultipleStatementsSeparatedBySemicolons(t *testing.T) {
	prog, err := Parse("CREATE TABLE t(id INT); INSERT INTO t VALUES (1); SELECT * FROM t;")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Statements) != 3 {
		t.Fatalf("want 3 statements, got %d", len(prog.Statements))
	}
}

func TestParseAndOrPrecedence(t *testing.T) {
	st := parseOne(t, "SELECT * FROM t WHERE a = 1 AND b = 2 OR c = 3")
	sel := st.(*SelectStmt)
	or, ok := sel.Where.(*BinaryExpr)
	if !ok || or.Op != OpOr {
		t.Fatalf("top-level operator should be OR (lowest precedence): %+v", sel.Where)
	}
	and, ok := or.Left.(*BinaryExpr)
	if !ok || and.Op != OpAnd {
		t.Fatalf("left side of OR should be an AND expression: %+v", or.Left)
	}
}

func TestParseSyntaxErrorReportsPosition(t *testing.T) {
	_, err := Parse("CREATE TABLE (id INT)")
	if err == nil {
		t.Fatalf("expected a syntax error for a missing table name")
	}
	perr, ok := err.(*Error)
	if !ok {
		t.Fatalf("want *Error, got %T", err)
	}
	if perr.Pos.Line == 0 {
		t.Fatalf("syntax error should carry a source position: %+v", perr)
	}
}
