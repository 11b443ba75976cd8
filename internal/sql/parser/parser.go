package parser

import (
	"fmt"

	"github.com/minidb/minidb/internal/sql/lexer"
)

// Error is a syntax failure carrying the offending token's position.
type Error struct {
	Msg string
	Pos lexer.Position
}

func (e *Error) Error() string { return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg) }

// Parser is a single-pass recursive-descent parser over a pre-tokenized
// stream with one-token lookahead.
type Parser struct {
	toks []lexer.Token
	pos  int
}

// Parse tokenizes and parses source text into a Program.
func Parse(src string) (*Program, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	return NewParser(toks).ParseProgram()
}

// NewParser wraps a pre-tokenized stream.
func NewParser(toks []lexer.Token) *Parser { return &Parser{toks: toks} }

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Kind: lexer.KindEOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) atEOF() bool { return p.cur().Kind == lexer.KindEOF }

func (p *Parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == lexer.KindKeyword && t.Val == kw
}

func (p *Parser) isDelim(d string) bool {
	t := p.cur()
	return t.Kind == lexer.KindDelimiter && t.Val == d
}

func (p *Parser) isOp(op string) bool {
	t := p.cur()
	return t.Kind == lexer.KindOperator && t.Val == op
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return &Error{Msg: fmt.Sprintf("expected %s, got %q", kw, p.cur().Val), Pos: p.cur().Pos}
	}
	p.advance()
	return nil
}

func (p *Parser) expectDelim(d string) error {
	if !p.isDelim(d) {
		return &Error{Msg: fmt.Sprintf("expected %q, got %q", d, p.cur().Val), Pos: p.cur().Pos}
	}
	p.advance()
	return nil
}

func (p *Parser) expectIdent() (string, error) {
	t := p.cur()
	if t.Kind != lexer.KindIdent {
		return "", &Error{Msg: fmt.Sprintf("expected identifier, got %q", t.Val), Pos: t.Pos}
	}
	p.advance()
	return t.Val, nil
}

// ParseProgram parses `statement (';' statement)* ';'?` through EOF.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for !p.atEOF() {
		if p.isDelim(";") {
			p.advance()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
		for p.isDelim(";") {
			p.advance()
		}
	}
	return prog, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	t := p.cur()
	if t.Kind != lexer.KindKeyword {
		return nil, &Error{Msg: fmt.Sprintf("expected statement, got %q", t.Val), Pos: t.Pos}
	}
	switch t.Val {
	case "CREATE":
		return p.parseCreateTable()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "DELETE":
		return p.parseDelete()
	case "UPDATE":
		return p.parseUpdate()
	case "DROP":
		return p.parseDropTable()
	case "BEGIN":
		return p.parseBegin()
	case "COMMIT":
		return p.parseCommit()
	case "ROLLBACK":
		return p.parseRollback()
	default:
		return nil, &Error{Msg: fmt.Sprintf("unexpected keyword %q", t.Val), Pos: t.Pos}
	}
}

func (p *Parser) parseCreateTable() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectDelim("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.isDelim(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectDelim(")"); err != nil {
		return nil, err
	}
	return &CreateTableStmt{Pos: pos, Table: name, Columns: cols}, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	t := p.cur()
	if t.Kind != lexer.KindKeyword {
		return ColumnDef{}, &Error{Msg: fmt.Sprintf("expected column type, got %q", t.Val), Pos: t.Pos}
	}
	switch t.Val {
	case "INT", "INTEGER":
		p.advance()
		return ColumnDef{Name: name, Type: ColInt}, nil
	case "VARCHAR", "CHAR":
		kind := ColVarChar
		if t.Val == "CHAR" {
			kind = ColChar
		}
		p.advance()
		if err := p.expectDelim("("); err != nil {
			return ColumnDef{}, err
		}
		size, err := p.expectInt()
		if err != nil {
			return ColumnDef{}, err
		}
		if err := p.expectDelim(")"); err != nil {
			return ColumnDef{}, err
		}
		return ColumnDef{Name: name, Type: kind, Size: size}, nil
	default:
		return ColumnDef{}, &Error{Msg: fmt.Sprintf("unknown column type %q", t.Val), Pos: t.Pos}
	}
}

func (p *Parser) expectInt() (int, error) {
	t := p.cur()
	if t.Kind != lexer.KindInt {
		return 0, &Error{Msg: fmt.Sprintf("expected integer, got %q", t.Val), Pos: t.Pos}
	}
	p.advance()
	n := 0
	for _, r := range t.Val {
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func (p *Parser) parseInsert() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var cols []string
	if p.isDelim("(") {
		p.advance()
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
			if p.isDelim(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectDelim(")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectDelim("("); err != nil {
		return nil, err
	}
	var values []Expr
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
		if p.isDelim(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectDelim(")"); err != nil {
		return nil, err
	}
	return &InsertStmt{Pos: pos, Table: name, Columns: cols, Values: values}, nil
}

func (p *Parser) parseLiteral() (Expr, error) {
	t := p.cur()
	switch t.Kind {
	case lexer.KindInt:
		p.advance()
		n := int64(0)
		neg := false
		start := t.Val
		if len(start) > 0 && start[0] == '-' {
			neg = true
			start = start[1:]
		}
		for _, r := range start {
			n = n*10 + int64(r-'0')
		}
		if neg {
			n = -n
		}
		return &LiteralExpr{Pos: t.Pos, IsInt: true, Int: n}, nil
	case lexer.KindString:
		p.advance()
		return &LiteralExpr{Pos: t.Pos, IsStr: true, Str: t.Val}, nil
	case lexer.KindOperator:
		if t.Val == "-" {
			p.advance()
			inner, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			lit, ok := inner.(*LiteralExpr)
			if !ok || !lit.IsInt {
				return nil, &Error{Msg: "expected integer literal after '-'", Pos: t.Pos}
			}
			lit.Int = -lit.Int
			return lit, nil
		}
	}
	return nil, &Error{Msg: fmt.Sprintf("expected literal, got %q", t.Val), Pos: t.Pos}
}

func (p *Parser) parseSelect() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.isDelim(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var joins []JoinClause
	for p.startsJoin() {
		j, err := p.parseJoinClause()
		if err != nil {
			return nil, err
		}
		joins = append(joins, j)
	}

	var where Expr
	if p.isKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}

	var order []SortItem
	if p.isKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.isKeyword("ASC") {
				p.advance()
			} else if p.isKeyword("DESC") {
				p.advance()
				desc = true
			}
			order = append(order, SortItem{Expr: e, Desc: desc})
			if p.isDelim(",") {
				p.advance()
				continue
			}
			break
		}
	}

	return &SelectStmt{Pos: pos, Items: items, Table: table, Joins: joins, Where: where, OrderBy: order}, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.isDelim("*") {
		p.advance()
		return SelectItem{Star: true}, nil
	}
	if agg, ok := p.tryParseAggregate(); ok {
		a, err := agg()
		if err != nil {
			return SelectItem{}, err
		}
		return SelectItem{Aggregate: a}, nil
	}
	name, err := p.expectIdent()
	if err != nil {
		return SelectItem{}, err
	}
	return SelectItem{Column: name}, nil
}

func (p *Parser) tryParseAggregate() (func() (*AggregateExpr, error), bool) {
	t := p.cur()
	if t.Kind != lexer.KindKeyword {
		return nil, false
	}
	var fn AggregateFn
	switch t.Val {
	case "COUNT":
		fn = AggCount
	case "SUM":
		fn = AggSum
	case "AVG":
		fn = AggAvg
	case "MAX":
		fn = AggMax
	case "MIN":
		fn = AggMin
	default:
		return nil, false
	}
	return func() (*AggregateExpr, error) { return p.parseAggregate(fn) }, true
}

func (p *Parser) parseAggregate(fn AggregateFn) (*AggregateExpr, error) {
	pos := p.cur().Pos
	p.advance() // function keyword
	if err := p.expectDelim("("); err != nil {
		return nil, err
	}
	distinct := false
	if p.isKeyword("DISTINCT") {
		p.advance()
		distinct = true
	}
	if p.isDelim("*") {
		p.advance()
		if err := p.expectDelim(")"); err != nil {
			return nil, err
		}
		return &AggregateExpr{Pos: pos, Fn: fn, Distinct: distinct, Star: true}, nil
	}
	arg, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectDelim(")"); err != nil {
		return nil, err
	}
	return &AggregateExpr{Pos: pos, Fn: fn, Distinct: distinct, Arg: arg}, nil
}

func (p *Parser) startsJoin() bool {
	t := p.cur()
	if t.Kind != lexer.KindKeyword {
		return false
	}
	switch t.Val {
	case "JOIN", "INNER", "LEFT", "RIGHT", "FULL":
		return true
	}
	return false
}

func (p *Parser) parseJoinClause() (JoinClause, error) {
	kind := JoinInner
	switch p.cur().Val {
	case "INNER":
		p.advance()
	case "LEFT":
		kind = JoinLeft
		p.advance()
	case "RIGHT":
		kind = JoinRight
		p.advance()
	case "FULL":
		kind = JoinFull
		p.advance()
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return JoinClause{}, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return JoinClause{}, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return JoinClause{}, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return JoinClause{}, err
	}
	return JoinClause{Kind: kind, Table: table, On: cond}, nil
}

func (p *Parser) parseDelete() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("DELETE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var where Expr
	if p.isKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &DeleteStmt{Pos: pos, Table: table, Where: where}, nil
}

func (p *Parser) parseUpdate() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var assigns []Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, Assignment{Column: col, Value: val})
		if p.isDelim(",") {
			p.advance()
			continue
		}
		break
	}
	var where Expr
	if p.isKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &UpdateStmt{Pos: pos, Table: table, Assignments: assigns, Where: where}, nil
}

func (p *Parser) expectOp(op string) error {
	if !p.isOp(op) {
		return &Error{Msg: fmt.Sprintf("expected %q, got %q", op, p.cur().Val), Pos: p.cur().Pos}
	}
	p.advance()
	return nil
}

func (p *Parser) parseDropTable() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("DROP"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &DropTableStmt{Pos: pos, Table: name}, nil
}

func (p *Parser) parseBegin() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("BEGIN"); err != nil {
		return nil, err
	}
	if p.isKeyword("TRANSACTION") {
		p.advance()
	}
	return &BeginStmt{Pos: pos}, nil
}

func (p *Parser) parseCommit() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("COMMIT"); err != nil {
		return nil, err
	}
	if p.isKeyword("TRANSACTION") {
		p.advance()
	}
	return &CommitStmt{Pos: pos}, nil
}

func (p *Parser) parseRollback() (Stmt, error) {
	pos := p.cur().Pos
	if err := p.expectKeyword("ROLLBACK"); err != nil {
		return nil, err
	}
	if p.isKeyword("TRANSACTION") {
		p.advance()
	}
	return &RollbackStmt{Pos: pos}, nil
}

// --- expressions: expr := or_expr; or_expr := and_expr (OR and_expr)*; ... --

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		pos := p.cur().Pos
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: pos, Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		pos := p.cur().Pos
		p.advance()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: pos, Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseCmp() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if op, ok := p.cmpOp(); ok {
		pos := p.cur().Pos
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Pos: pos, Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) cmpOp() (BinOp, bool) {
	t := p.cur()
	if t.Kind != lexer.KindOperator {
		return 0, false
	}
	switch t.Val {
	case "=":
		return OpEq, true
	case "!=", "<>":
		return OpNeq, true
	case "<":
		return OpLt, true
	case ">":
		return OpGt, true
	case "<=":
		return OpLte, true
	case ">=":
		return OpGte, true
	}
	return 0, false
}

func (p *Parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch {
	case t.Kind == lexer.KindInt || t.Kind == lexer.KindString:
		return p.parseLiteral()
	case t.Kind == lexer.KindKeyword && isKeywordNull(t.Val):
		p.advance()
		return &LiteralExpr{Pos: t.Pos, IsNil: true}, nil
	case t.Kind == lexer.KindKeyword:
		if agg, ok := p.tryParseAggregate(); ok {
			return agg()
		}
		return nil, &Error{Msg: fmt.Sprintf("unexpected keyword %q in expression", t.Val), Pos: t.Pos}
	case t.Kind == lexer.KindIdent:
		return p.parseIdentExpr()
	default:
		return nil, &Error{Msg: fmt.Sprintf("unexpected token %q in expression", t.Val), Pos: t.Pos}
	}
}

func isKeywordNull(v string) bool { return v == "NULL" }

func (p *Parser) parseIdentExpr() (Expr, error) {
	t := p.cur()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.isOp(".") {
		p.advance()
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &IdentExpr{Pos: t.Pos, Qualifier: name, Name: col}, nil
	}
	return &IdentExpr{Pos: t.Pos, Name: name}, nil
}
