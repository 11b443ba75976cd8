// Package catalog implements minidb's schema registry: table and column
// metadata, duplicate/arity validation, and record validation against
// declared column types, for minidb's three-value (INT/VARCHAR/CHAR) data
// model.
package catalog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/minidb/minidb/internal/value"
)

var upper = cases.Upper(language.Und)

// ColType enumerates the column types the grammar can declare.
type ColType int

const (
	IntType ColType = iota
	VarCharType
	CharType
)

func (t ColType) String() string {
	switch t {
	case IntType:
		return "INT"
	case VarCharType:
		return "VARCHAR"
	case CharType:
		return "CHAR"
	default:
		return "UNKNOWN"
	}
}

// Column is one declared column of a table.
type Column struct {
	Name       string
	Type       ColType
	Size       int // declared VARCHAR(n)/CHAR(n) size; unused for INT
	Nullable   bool
	Default    *value.Value
	PrimaryKey bool
	Unique     bool
}

// foldName normalizes an identifier to upper-case for case-insensitive
// comparison and storage.
func foldName(s string) string { return upper.String(s) }

// TableDef is a table's persisted metadata: its column list, creation time,
// cached record count, and the page-ids of its table heap.
type TableDef struct {
	Name        string
	Columns     []Column
	CreatedAt   time.Time
	RecordCount int64
	PageIDs     []uint32
}

// ColumnNames returns the table's column names in declared order.
func (t *TableDef) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by case-insensitive name.
func (t *TableDef) Column(name string) (Column, bool) {
	folded := foldName(name)
	for _, c := range t.Columns {
		if foldName(c.Name) == folded {
			return c, true
		}
	}
	return Column{}, false
}

// Row is a column-name-to-value map, keyed by folded (upper-cased) name.
type Row map[string]value.Value

// Catalog is the process-wide mapping from normalized table name to
// TableDef, plus auxiliary index and sequence bookkeeping (recorded but
// not consulted by the core for lookups).
type Catalog struct {
	mu        sync.RWMutex
	tables    map[string]*TableDef
	indexes   map[string][]string
	sequences map[string]int64
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		tables:    make(map[string]*TableDef),
		indexes:   make(map[string][]string),
		sequences: make(map[string]int64),
	}
}

// ErrTableExists is returned by CreateTable for a duplicate name.
type ErrTableExists struct{ Name string }

func (e *ErrTableExists) Error() string { return fmt.Sprintf("table %q already exists", e.Name) }

// ErrDuplicateColumn is returned by CreateTable for a repeated column name.
type ErrDuplicateColumn struct {
	Table, Column string
}

func (e *ErrDuplicateColumn) Error() string {
	return fmt.Sprintf("duplicate column %q in table %q", e.Column, e.Table)
}

// ErrTableNotFound is returned by DropTable/SetStorage/ValidateRecord.
type ErrTableNotFound struct{ Name string }

func (e *ErrTableNotFound) Error() string { return fmt.Sprintf("table %q does not exist", e.Name) }

// CreateTable registers a new table definition. It rejects a duplicate table
// name and duplicate column names within the table (case-folded), and
// records a primary-key index entry when any column is flagged PrimaryKey.
func (c *Catalog) CreateTable(def TableDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := foldName(def.Name)
	if _, exists := c.tables[key]; exists {
		return &ErrTableExists{Name: def.Name}
	}

	seen := make(map[string]bool, len(def.Columns))
	var pkCols []string
	for _, col := range def.Columns {
		folded := foldName(col.Name)
		if seen[folded] {
			return &ErrDuplicateColumn{Table: def.Name, Column: col.Name}
		}
		seen[folded] = true
		if col.PrimaryKey {
			pkCols = append(pkCols, col.Name)
		}
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	stored := def
	c.tables[key] = &stored
	if len(pkCols) > 0 {
		c.indexes["pk_"+key] = pkCols
	}
	return nil
}

// DropTable removes a table entry and any derived index entries, returning
// the removed definition. The semantic analyzer, which performs DROP TABLE,
// takes its own copy of the definition for transaction undo before calling
// this.
func (c *Catalog) DropTable(name string) (*TableDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := foldName(name)
	def, ok := c.tables[key]
	if !ok {
		return nil, &ErrTableNotFound{Name: name}
	}
	delete(c.tables, key)
	delete(c.indexes, "pk_"+key)
	return def, nil
}

// GetTable returns the table definition, if any.
func (c *Catalog) GetTable(name string) (*TableDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.tables[foldName(name)]
	return def, ok
}

// ListTables returns all table names known to the catalog.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for _, def := range c.tables {
		names = append(names, def.Name)
	}
	return names
}

// SetStorage records the table heap's current page list and record count.
// The executor's heap Sync callbacks call this after every mutating
// table-heap operation so the catalog's on-disk metadata stays in sync
// with storage.
func (c *Catalog) SetStorage(name string, pageIDs []uint32, recordCount int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.tables[foldName(name)]
	if !ok {
		return &ErrTableNotFound{Name: name}
	}
	def.PageIDs = append([]uint32{}, pageIDs...)
	def.RecordCount = recordCount
	return nil
}

// ValidateRecord fills in defaults for omitted non-nullable columns, rejects
// unknown columns, and checks declared-type compatibility for every present
// column.
func (c *Catalog) ValidateRecord(table string, record Row) (Row, error) {
	c.mu.RLock()
	def, ok := c.tables[foldName(table)]
	c.mu.RUnlock()
	if !ok {
		return nil, &ErrTableNotFound{Name: table}
	}

	out := make(Row, len(def.Columns))
	for k, v := range record {
		out[foldName(k)] = v
	}

	known := make(map[string]bool, len(def.Columns))
	for _, col := range def.Columns {
		folded := foldName(col.Name)
		known[folded] = true
		v, present := out[folded]
		if !present {
			if col.Default != nil {
				out[folded] = *col.Default
				continue
			}
			if !col.Nullable {
				return nil, fmt.Errorf("column %q cannot be null", col.Name)
			}
			out[folded] = value.Null
			continue
		}
		if err := checkType(col, v); err != nil {
			return nil, err
		}
	}

	for k := range out {
		if !known[k] {
			return nil, fmt.Errorf("unknown column %q", k)
		}
	}
	return out, nil
}

func checkType(col Column, v value.Value) error {
	if v.IsNull() {
		if !col.Nullable {
			return fmt.Errorf("column %q cannot be null", col.Name)
		}
		return nil
	}
	switch col.Type {
	case IntType:
		if v.Kind != value.KindInt {
			return fmt.Errorf("column %q expects INT, got %s", col.Name, kindName(v))
		}
	case VarCharType, CharType:
		if v.Kind != value.KindString {
			return fmt.Errorf("column %q expects %s, got %s", col.Name, col.Type, kindName(v))
		}
		if col.Size > 0 && len(v.S) > col.Size {
			return fmt.Errorf("column %q: value length %d exceeds declared size %d", col.Name, len(v.S), col.Size)
		}
	}
	return nil
}

func kindName(v value.Value) string {
	switch v.Kind {
	case value.KindInt:
		return "INT"
	case value.KindString:
		return "STRING"
	default:
		return "NULL"
	}
}

// --- persistence -----------------------------------------------------------

type diskColumn struct {
	Name       string
	Type       int
	Size       int
	Nullable   bool
	DefaultInt *int64
	DefaultStr *string
	HasDefault bool
	PrimaryKey bool
	Unique     bool
}

type diskTable struct {
	Name        string
	Columns     []diskColumn
	CreatedAt   time.Time
	RecordCount int64
	PageIDs     []uint32
}

type diskCatalog struct {
	Tables    []diskTable
	Indexes   map[string][]string
	Sequences map[string]int64
}

// ToBytes serializes the full catalog state (tables, indexes, sequences) as
// JSON, the format used for both the sidecar file and the page-embedded
// fallback copy.
func (c *Catalog) ToBytes() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dc := diskCatalog{Indexes: c.indexes, Sequences: c.sequences}
	for _, def := range c.tables {
		dt := diskTable{
			Name:        def.Name,
			CreatedAt:   def.CreatedAt,
			RecordCount: def.RecordCount,
			PageIDs:     def.PageIDs,
		}
		for _, col := range def.Columns {
			dcol := diskColumn{
				Name:       col.Name,
				Type:       int(col.Type),
				Size:       col.Size,
				Nullable:   col.Nullable,
				PrimaryKey: col.PrimaryKey,
				Unique:     col.Unique,
			}
			if col.Default != nil {
				dcol.HasDefault = true
				switch col.Default.Kind {
				case value.KindInt:
					v := col.Default.I
					dcol.DefaultInt = &v
				case value.KindString:
					v := col.Default.S
					dcol.DefaultStr = &v
				}
			}
			dt.Columns = append(dt.Columns, dcol)
		}
		dc.Tables = append(dc.Tables, dt)
	}
	return json.Marshal(dc)
}

// FromBytes reconstructs a catalog from the JSON produced by ToBytes.
func FromBytes(data []byte) (*Catalog, error) {
	var dc diskCatalog
	if err := json.Unmarshal(data, &dc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	c := New()
	if dc.Indexes != nil {
		c.indexes = dc.Indexes
	}
	if dc.Sequences != nil {
		c.sequences = dc.Sequences
	}
	for _, dt := range dc.Tables {
		def := &TableDef{
			Name:        dt.Name,
			CreatedAt:   dt.CreatedAt,
			RecordCount: dt.RecordCount,
			PageIDs:     dt.PageIDs,
		}
		for _, dcol := range dt.Columns {
			col := Column{
				Name:       dcol.Name,
				Type:       ColType(dcol.Type),
				Size:       dcol.Size,
				Nullable:   dcol.Nullable,
				PrimaryKey: dcol.PrimaryKey,
				Unique:     dcol.Unique,
			}
			if dcol.HasDefault {
				var v value.Value
				switch {
				case dcol.DefaultInt != nil:
					v = value.NewInt(*dcol.DefaultInt)
				case dcol.DefaultStr != nil:
					v = value.NewString(*dcol.DefaultStr)
				}
				col.Default = &v
			}
			def.Columns = append(def.Columns, col)
		}
		c.tables[foldName(def.Name)] = def
	}
	return c, nil
}
