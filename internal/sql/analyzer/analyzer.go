// Package analyzer validates a parsed program against the catalog: table
// and column existence, arity, and type compatibility. It never panics —
// every rule violation becomes an Error appended to the returned slice
// instead of stopping at the first one.
//
// On a successful CREATE TABLE, the analyzer registers the table in the
// catalog immediately, and on DROP TABLE it removes it immediately, so a
// later statement in the same program sees the schema change. This mirrors
// how the plan generator's later stages (and the executor after it) expect
// catalog state to already reflect everything analyzed so far.
package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/sql/parser"
)

// Kind enumerates the validation-error categories from the contract.
type Kind int

const (
	TableAlreadyExists Kind = iota
	DuplicateColumn
	InvalidDataType
	MissingSize
	InvalidSize
	TableNotExists
	ColumnNotExists
	ValueCountMismatch
	TypeMismatch
	InvalidSortDirection
)

func (k Kind) String() string {
	switch k {
	case TableAlreadyExists:
		return "TABLE_ALREADY_EXISTS"
	case DuplicateColumn:
		return "DUPLICATE_COLUMN"
	case InvalidDataType:
		return "INVALID_DATA_TYPE"
	case MissingSize:
		return "MISSING_SIZE"
	case InvalidSize:
		return "INVALID_SIZE"
	case TableNotExists:
		return "TABLE_NOT_EXISTS"
	case ColumnNotExists:
		return "COLUMN_NOT_EXISTS"
	case ValueCountMismatch:
		return "VALUE_COUNT_MISMATCH"
	case TypeMismatch:
		return "TYPE_MISMATCH"
	case InvalidSortDirection:
		return "INVALID_SORT_DIRECTION"
	default:
		return "UNKNOWN"
	}
}

// Error is one validation failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// Result is the outcome of analyzing one program.
type Result struct {
	OK     bool
	Errors []*Error
}

// Analyze validates every statement in prog against cat, mutating cat for
// CREATE/DROP TABLE as it goes so later statements see the updated schema.
func Analyze(prog *parser.Program, cat *catalog.Catalog) *Result {
	res := &Result{OK: true}
	for _, stmt := range prog.Statements {
		errs := analyzeStmt(stmt, cat)
		if len(errs) > 0 {
			res.OK = false
			res.Errors = append(res.Errors, errs...)
		}
	}
	return res
}

func analyzeStmt(stmt parser.Stmt, cat *catalog.Catalog) []*Error {
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return analyzeCreateTable(s, cat)
	case *parser.InsertStmt:
		return analyzeInsert(s, cat)
	case *parser.SelectStmt:
		return analyzeSelect(s, cat)
	case *parser.DeleteStmt:
		return analyzeDelete(s, cat)
	case *parser.UpdateStmt:
		return analyzeUpdate(s, cat)
	case *parser.DropTableStmt:
		return analyzeDropTable(s, cat)
	default:
		return nil
	}
}

func analyzeCreateTable(s *parser.CreateTableStmt, cat *catalog.Catalog) []*Error {
	var errs []*Error
	if _, ok := cat.GetTable(s.Table); ok {
		errs = append(errs, &Error{Kind: TableAlreadyExists, Msg: fmt.Sprintf("table %q already exists", s.Table)})
		return errs
	}

	seen := make(map[string]bool)
	var cols []catalog.Column
	for _, cd := range s.Columns {
		folded := strings.ToUpper(cd.Name)
		if seen[folded] {
			errs = append(errs, &Error{Kind: DuplicateColumn, Msg: fmt.Sprintf("duplicate column %q in table %q", cd.Name, s.Table)})
			continue
		}
		seen[folded] = true

		col := catalog.Column{Name: cd.Name, Nullable: true}
		switch cd.Type {
		case parser.ColInt:
			col.Type = catalog.IntType
		case parser.ColVarChar:
			col.Type = catalog.VarCharType
			if cd.Size <= 0 {
				errs = append(errs, &Error{Kind: MissingSize, Msg: fmt.Sprintf("VARCHAR column %q requires a size", cd.Name)})
				continue
			}
			col.Size = cd.Size
		case parser.ColChar:
			col.Type = catalog.CharType
			if cd.Size <= 0 {
				errs = append(errs, &Error{Kind: MissingSize, Msg: fmt.Sprintf("CHAR column %q requires a size", cd.Name)})
				continue
			}
			col.Size = cd.Size
		default:
			errs = append(errs, &Error{Kind: InvalidDataType, Msg: fmt.Sprintf("unknown type for column %q", cd.Name)})
			continue
		}
		if col.Size < 0 {
			errs = append(errs, &Error{Kind: InvalidSize, Msg: fmt.Sprintf("column %q has a negative size", cd.Name)})
			continue
		}
		cols = append(cols, col)
	}
	if len(errs) > 0 {
		return errs
	}

	err := cat.CreateTable(catalog.TableDef{Name: s.Table, Columns: cols, CreatedAt: time.Now()})
	if err != nil {
		errs = append(errs, &Error{Kind: TableAlreadyExists, Msg: err.Error()})
	}
	return errs
}

func analyzeInsert(s *parser.InsertStmt, cat *catalog.Catalog) []*Error {
	def, ok := cat.GetTable(s.Table)
	if !ok {
		return []*Error{{Kind: TableNotExists, Msg: fmt.Sprintf("table %q does not exist", s.Table)}}
	}

	targetCols := s.Columns
	if targetCols == nil {
		targetCols = def.ColumnNames()
	}
	var errs []*Error
	for _, name := range targetCols {
		if _, ok := def.Column(name); !ok {
			errs = append(errs, &Error{Kind: ColumnNotExists, Msg: fmt.Sprintf("column %q does not exist on table %q", name, s.Table)})
		}
	}
	if len(targetCols) != len(s.Values) {
		errs = append(errs, &Error{Kind: ValueCountMismatch, Msg: fmt.Sprintf("expected %d values, got %d", len(targetCols), len(s.Values))})
		return errs
	}
	for i, name := range targetCols {
		col, ok := def.Column(name)
		if !ok {
			continue
		}
		lit, ok := s.Values[i].(*parser.LiteralExpr)
		if !ok {
			continue
		}
		if !literalMatchesType(lit, col) {
			errs = append(errs, &Error{Kind: TypeMismatch, Msg: fmt.Sprintf("value for column %q does not match its declared type", name)})
		}
	}
	return errs
}

func literalMatchesType(lit *parser.LiteralExpr, col catalog.Column) bool {
	if lit.IsNil {
		return col.Nullable
	}
	switch col.Type {
	case catalog.IntType:
		return lit.IsInt
	case catalog.VarCharType, catalog.CharType:
		return lit.IsStr
	default:
		return false
	}
}

func analyzeSelect(s *parser.SelectStmt, cat *catalog.Catalog) []*Error {
	var errs []*Error
	def, ok := cat.GetTable(s.Table)
	if !ok {
		errs = append(errs, &Error{Kind: TableNotExists, Msg: fmt.Sprintf("table %q does not exist", s.Table)})
		return errs
	}

	scope := map[string]*catalog.TableDef{strings.ToUpper(s.Table): def}
	for _, j := range s.Joins {
		jdef, ok := cat.GetTable(j.Table)
		if !ok {
			errs = append(errs, &Error{Kind: TableNotExists, Msg: fmt.Sprintf("table %q does not exist", j.Table)})
			continue
		}
		scope[strings.ToUpper(j.Table)] = jdef
		errs = append(errs, checkExprTypes(j.On, scope)...)
	}

	for _, item := range s.Items {
		if item.Star || item.Aggregate != nil {
			if item.Aggregate != nil && item.Aggregate.Arg != nil {
				errs = append(errs, checkIdentsResolvable(item.Aggregate.Arg, scope)...)
			}
			continue
		}
		if !columnResolvable(item.Column, scope) {
			errs = append(errs, &Error{Kind: ColumnNotExists, Msg: fmt.Sprintf("column %q does not exist", item.Column)})
		}
	}

	if s.Where != nil {
		errs = append(errs, checkIdentsResolvable(s.Where, scope)...)
		errs = append(errs, checkExprTypes(s.Where, scope)...)
	}
	for _, sort := range s.OrderBy {
		errs = append(errs, checkIdentsResolvable(sort.Expr, scope)...)
	}
	return errs
}

func columnResolvable(name string, scope map[string]*catalog.TableDef) bool {
	for _, def := range scope {
		if _, ok := def.Column(name); ok {
			return true
		}
	}
	return false
}

func checkIdentsResolvable(e parser.Expr, scope map[string]*catalog.TableDef) []*Error {
	var errs []*Error
	switch ex := e.(type) {
	case *parser.IdentExpr:
		if ex.Qualifier != "" {
			def, ok := scope[strings.ToUpper(ex.Qualifier)]
			if !ok {
				errs = append(errs, &Error{Kind: TableNotExists, Msg: fmt.Sprintf("table %q does not exist", ex.Qualifier)})
				return errs
			}
			if _, ok := def.Column(ex.Name); !ok {
				errs = append(errs, &Error{Kind: ColumnNotExists, Msg: fmt.Sprintf("column %q does not exist on table %q", ex.Name, ex.Qualifier)})
			}
			return errs
		}
		if !columnResolvable(ex.Name, scope) {
			errs = append(errs, &Error{Kind: ColumnNotExists, Msg: fmt.Sprintf("column %q does not exist", ex.Name)})
		}
	case *parser.BinaryExpr:
		errs = append(errs, checkIdentsResolvable(ex.Left, scope)...)
		errs = append(errs, checkIdentsResolvable(ex.Right, scope)...)
	case *parser.AggregateExpr:
		if ex.Arg != nil {
			errs = append(errs, checkIdentsResolvable(ex.Arg, scope)...)
		}
	}
	return errs
}

// checkExprTypes flags TYPE_MISMATCH on comparisons between incompatible
// type families. It is conservative: it only checks comparisons where both
// sides are literals or resolvable identifiers of a known column type.
func checkExprTypes(e parser.Expr, scope map[string]*catalog.TableDef) []*Error {
	bin, ok := e.(*parser.BinaryExpr)
	if !ok {
		return nil
	}
	var errs []*Error
	errs = append(errs, checkExprTypes(bin.Left, scope)...)
	errs = append(errs, checkExprTypes(bin.Right, scope)...)

	if bin.Op == parser.OpAnd || bin.Op == parser.OpOr {
		return errs
	}
	lt, lok := exprFamily(bin.Left, scope)
	rt, rok := exprFamily(bin.Right, scope)
	if lok && rok && lt != rt {
		errs = append(errs, &Error{Kind: TypeMismatch, Msg: "comparison between incompatible type families"})
	}
	return errs
}

type typeFamily int

const (
	familyNumeric typeFamily = iota
	familyString
)

func exprFamily(e parser.Expr, scope map[string]*catalog.TableDef) (typeFamily, bool) {
	switch ex := e.(type) {
	case *parser.LiteralExpr:
		if ex.IsInt {
			return familyNumeric, true
		}
		if ex.IsStr {
			return familyString, true
		}
		return 0, false
	case *parser.IdentExpr:
		var def *catalog.TableDef
		if ex.Qualifier != "" {
			def = scope[strings.ToUpper(ex.Qualifier)]
		} else {
			for _, d := range scope {
				if _, ok := d.Column(ex.Name); ok {
					def = d
					break
				}
			}
		}
		if def == nil {
			return 0, false
		}
		col, ok := def.Column(ex.Name)
		if !ok {
			return 0, false
		}
		if col.Type == catalog.IntType {
			return familyNumeric, true
		}
		return familyString, true
	default:
		return 0, false
	}
}

func analyzeDelete(s *parser.DeleteStmt, cat *catalog.Catalog) []*Error {
	def, ok := cat.GetTable(s.Table)
	if !ok {
		return []*Error{{Kind: TableNotExists, Msg: fmt.Sprintf("table %q does not exist", s.Table)}}
	}
	if s.Where == nil {
		return nil
	}
	scope := map[string]*catalog.TableDef{strings.ToUpper(s.Table): def}
	var errs []*Error
	errs = append(errs, checkIdentsResolvable(s.Where, scope)...)
	errs = append(errs, checkExprTypes(s.Where, scope)...)
	return errs
}

func analyzeUpdate(s *parser.UpdateStmt, cat *catalog.Catalog) []*Error {
	def, ok := cat.GetTable(s.Table)
	if !ok {
		return []*Error{{Kind: TableNotExists, Msg: fmt.Sprintf("table %q does not exist", s.Table)}}
	}
	scope := map[string]*catalog.TableDef{strings.ToUpper(s.Table): def}
	var errs []*Error
	for _, a := range s.Assignments {
		col, ok := def.Column(a.Column)
		if !ok {
			errs = append(errs, &Error{Kind: ColumnNotExists, Msg: fmt.Sprintf("column %q does not exist on table %q", a.Column, s.Table)})
			continue
		}
		errs = append(errs, checkIdentsResolvable(a.Value, scope)...)
		if lit, ok := a.Value.(*parser.LiteralExpr); ok && !literalMatchesType(lit, col) {
			errs = append(errs, &Error{Kind: TypeMismatch, Msg: fmt.Sprintf("value for column %q does not match its declared type", a.Column)})
		}
	}
	if s.Where != nil {
		errs = append(errs, checkIdentsResolvable(s.Where, scope)...)
		errs = append(errs, checkExprTypes(s.Where, scope)...)
	}
	return errs
}

func analyzeDropTable(s *parser.DropTableStmt, cat *catalog.Catalog) []*Error {
	def, ok := cat.GetTable(s.Table)
	if !ok {
		return []*Error{{Kind: TableNotExists, Msg: fmt.Sprintf("table %q does not exist", s.Table)}}
	}
	snapshot := *def
	snapshot.Columns = append([]catalog.Column{}, def.Columns...)
	s.SetResolved(&snapshot)
	if _, err := cat.DropTable(s.Table); err != nil {
		return []*Error{{Kind: TableNotExists, Msg: err.Error()}}
	}
	return nil
}
