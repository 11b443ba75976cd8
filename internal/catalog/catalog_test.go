package catalog

import (
	"testing"

	"github.com/minidb/minidb/internal/value"
)

func usersDef() TableDef {
	return TableDef{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: IntType},
			{Name: "name", Type: VarCharType, Size: 50, Nullable: true},
		},
	}
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	c := New()
	if err := c.CreateTable(usersDef()); err != nil {
		t.Fatalf("first CreateTable: %v", err)
	}
	err := c.CreateTable(usersDef())
	if _, ok := err.(*ErrTableExists); !ok {
		t.Fatalf("want ErrTableExists, got %v", err)
	}
}

func TestCreateTableRejectsDuplicateColumn(t *testing.T) {
	c := New()
	def := TableDef{
		Name: "t",
		Columns: []Column{
			{Name: "id", Type: IntType},
			{Name: "ID", Type: IntType}, // duplicate under case-folding
		},
	}
	err := c.CreateTable(def)
	if _, ok := err.(*ErrDuplicateColumn); !ok {
		t.Fatalf("want ErrDuplicateColumn, got %v", err)
	}
}

func TestTableNameIsCaseInsensitive(t *testing.T) {
	c := New()
	if err := c.CreateTable(usersDef()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, ok := c.GetTable("USERS"); !ok {
		t.Fatalf("GetTable(USERS) should find table created as users")
	}
	if _, ok := c.GetTable("Users"); !ok {
		t.Fatalf("GetTable(Users) should find table created as users")
	}
}

func TestDropTableRemovesEntryAndReturnsDefinition(t *testing.T) {
	c := New()
	if err := c.CreateTable(usersDef()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	def, err := c.DropTable("users")
	if err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if def.Name != "users" {
		t.Fatalf("DropTable returned def for %q, want users", def.Name)
	}
	if _, ok := c.GetTable("users"); ok {
		t.Fatalf("table should no longer exist after drop")
	}
	if _, err := c.DropTable("users"); err == nil {
		t.Fatalf("dropping a missing table should error")
	}
}

func TestValidateRecordFillsDefaultsAndRejectsUnknownColumns(t *testing.T) {
	c := New()
	def := usersDef()
	if err := c.CreateTable(def); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	rec, err := c.ValidateRecord("users", Row{"ID": value.NewInt(1)})
	if err != nil {
		t.Fatalf("ValidateRecord: %v", err)
	}
	if !rec["NAME"].IsNull() {
		t.Fatalf("omitted nullable column should default to NULL, got %v", rec["NAME"])
	}

	_, err = c.ValidateRecord("users", Row{"ID": value.NewInt(1), "BOGUS": value.NewInt(2)})
	if err == nil {
		t.Fatalf("unknown column should be rejected")
	}
}

func TestValidateRecordRejectsNonNullableMissingColumn(t *testing.T) {
	c := New()
	def := TableDef{
		Name: "t",
		Columns: []Column{
			{Name: "id", Type: IntType, Nullable: false},
		},
	}
	if err := c.CreateTable(def); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.ValidateRecord("t", Row{}); err == nil {
		t.Fatalf("missing non-nullable column without default should error")
	}
}

func TestValidateRecordChecksTypesAndVarcharSize(t *testing.T) {
	c := New()
	if err := c.CreateTable(usersDef()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.ValidateRecord("users", Row{"ID": value.NewString("nope")}); err == nil {
		t.Fatalf("wrong-typed INT column should be rejected")
	}
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := c.ValidateRecord("users", Row{"ID": value.NewInt(1), "NAME": value.NewString(string(long))}); err == nil {
		t.Fatalf("VARCHAR(50) value longer than 50 should be rejected")
	}
}

func TestCatalogToBytesFromBytesRoundTrip(t *testing.T) {
	c := New()
	dflt := value.NewInt(7)
	def := TableDef{
		Name: "widgets",
		Columns: []Column{
			{Name: "id", Type: IntType, PrimaryKey: true},
			{Name: "qty", Type: IntType, Default: &dflt, Nullable: true},
			{Name: "label", Type: CharType, Size: 10, Nullable: true},
		},
		PageIDs: []uint32{0, 1, 2},
	}
	if err := c.CreateTable(def); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := c.SetStorage("widgets", []uint32{0, 1, 2}, 5); err != nil {
		t.Fatalf("SetStorage: %v", err)
	}

	data, err := c.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	restored, err := FromBytes(data)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}

	got, ok := restored.GetTable("widgets")
	if !ok {
		t.Fatalf("restored catalog missing widgets table")
	}
	if got.RecordCount != 5 || len(got.Columns) != 3 {
		t.Fatalf("restored table mismatch: %+v", got)
	}
	if got.Columns[1].Default == nil || got.Columns[1].Default.I != 7 {
		t.Fatalf("restored default value mismatch: %+v", got.Columns[1].Default)
	}
	if len(got.PageIDs) != 3 {
		t.Fatalf("restored page ids mismatch: %v", got.PageIDs)
	}
}

func TestColumnNamesAndLookup(t *testing.T) {
	def := usersDef()
	names := def.ColumnNames()
	if len(names) != 2 || names[0] != "id" || names[1] != "name" {
		t.Fatalf("ColumnNames() = %v", names)
	}
	if _, ok := def.Column("NAME"); !ok {
		t.Fatalf("Column lookup should be case-insensitive")
	}
	if _, ok := def.Column("missing"); ok {
		t.Fatalf("Column lookup should fail for unknown name")
	}
}
