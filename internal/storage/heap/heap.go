// Package heap implements the table heap: a chain of buffer-pool pages
// holding a table's rows as a simple unordered append/scan structure, with
// no per-row indexing or slot directory. Each page's payload holds the whole
// encoded row list for that page; a mutation rewrites the affected page's
// row list in full and pushes the new page/record-count totals into the
// catalog so metadata stays persisted after every successful mutation.
package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/storage/buffer"
	"github.com/minidb/minidb/internal/storage/page"
	"github.com/minidb/minidb/internal/value"
)

// Sync lets a Table push its current page list and record count somewhere
// durable (the catalog) after every mutating operation.
type Sync struct {
	SetPages func(pageIDs []uint32) error
	SetCount func(count int64) error
}

// Table is one table's heap: an ordered list of page ids plus the column
// order needed to encode/decode rows.
type Table struct {
	pool    *buffer.Pool
	columns []string
	pageIDs []uint32
	count   int64
	sync    Sync
}

// Open attaches a heap view over an existing page list (used when reopening
// a database), or creates the first page when pageIDs is empty.
func Open(pool *buffer.Pool, columns []string, pageIDs []uint32, recordCount int64, sync Sync) (*Table, error) {
	t := &Table{pool: pool, columns: columns, pageIDs: append([]uint32{}, pageIDs...), count: recordCount, sync: sync}
	if len(t.pageIDs) == 0 {
		pg, err := pool.NewPage(page.TypeData)
		if err != nil {
			return nil, err
		}
		t.pageIDs = []uint32{pg.Header.PageID}
		if err := t.persist(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// PageIDs returns the heap's current page list.
func (t *Table) PageIDs() []uint32 { return append([]uint32{}, t.pageIDs...) }

// Count returns the heap's cached row count.
func (t *Table) Count() int64 { return t.count }

func (t *Table) persist() error {
	if t.sync.SetPages != nil {
		if err := t.sync.SetPages(t.pageIDs); err != nil {
			return err
		}
	}
	if t.sync.SetCount != nil {
		if err := t.sync.SetCount(t.count); err != nil {
			return err
		}
	}
	return nil
}

// Insert appends a row to the last page if it has room, allocating a new page
// when the last page is full.
func (t *Table) Insert(row catalog.Row) error {
	encoded := encodeRow(t.columns, row)

	if n := len(t.pageIDs); n > 0 {
		pid := t.pageIDs[n-1]
		pg, err := t.pool.Get(pid)
		if err != nil {
			return err
		}
		rows, err := decodePage(pg, t.columns)
		if err != nil {
			return err
		}
		rows = append(rows, encoded)
		if err := writePage(pg, rows); err == nil {
			t.pool.Unpin(pid, true)
			t.count++
			return t.persist()
		}
		t.pool.Unpin(pid, false)
	}

	pg, err := t.pool.NewPage(page.TypeData)
	if err != nil {
		return err
	}
	t.pageIDs = append(t.pageIDs, pg.Header.PageID)
	if err := writePage(pg, [][]byte{encoded}); err != nil {
		return err
	}
	t.count++
	return t.persist()
}

// Scan calls fn for every row in page order. Scanning stops early if fn
// returns false.
func (t *Table) Scan(fn func(row catalog.Row) bool) error {
	for _, pid := range t.pageIDs {
		pg, err := t.pool.Get(pid)
		if err != nil {
			return err
		}
		rows, err := decodePage(pg, t.columns)
		if err != nil {
			return err
		}
		for _, raw := range rows {
			row, err := decodeRow(t.columns, raw)
			if err != nil {
				return err
			}
			if !fn(row) {
				return nil
			}
		}
	}
	return nil
}

// Delete removes every row for which match returns true, returning the
// number of rows removed. Each stored row is decoded and passed to match;
// the encoded bytes of the rows that do not match are written back, since
// the heap has no row id.
func (t *Table) Delete(match func(row catalog.Row) bool) (int, error) {
	removed := 0
	for _, pid := range t.pageIDs {
		pg, err := t.pool.Get(pid)
		if err != nil {
			return removed, err
		}
		rawRows, err := decodePage(pg, t.columns)
		if err != nil {
			return removed, err
		}
		kept := make([][]byte, 0, len(rawRows))
		for _, raw := range rawRows {
			row, err := decodeRow(t.columns, raw)
			if err != nil {
				return removed, err
			}
			if match(row) {
				removed++
				continue
			}
			kept = append(kept, raw)
		}
		if err := writePage(pg, kept); err != nil {
			t.pool.Unpin(pid, false)
			return removed, err
		}
		t.pool.Unpin(pid, true)
	}
	t.count -= int64(removed)
	if err := t.persist(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Update rewrites every row for which match returns true using apply, which
// receives the matched row and returns its replacement. It returns the
// number of rows updated.
func (t *Table) Update(match func(row catalog.Row) bool, apply func(row catalog.Row) catalog.Row) (int, error) {
	updated := 0
	for _, pid := range t.pageIDs {
		pg, err := t.pool.Get(pid)
		if err != nil {
			return updated, err
		}
		rawRows, err := decodePage(pg, t.columns)
		if err != nil {
			return updated, err
		}
		newRows := make([][]byte, len(rawRows))
		changed := false
		for i, raw := range rawRows {
			row, err := decodeRow(t.columns, raw)
			if err != nil {
				return updated, err
			}
			if match(row) {
				newRows[i] = encodeRow(t.columns, apply(row))
				updated++
				changed = true
			} else {
				newRows[i] = raw
			}
		}
		if !changed {
			t.pool.Unpin(pid, false)
			continue
		}
		if err := writePage(pg, newRows); err != nil {
			t.pool.Unpin(pid, false)
			return updated, err
		}
		t.pool.Unpin(pid, true)
	}
	if updated > 0 {
		if err := t.persist(); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// Clear removes every row from every page, keeping the first page allocated
// as an empty table.
func (t *Table) Clear() error {
	for _, pid := range t.pageIDs {
		pg, err := t.pool.Get(pid)
		if err != nil {
			return err
		}
		pg.Clear()
		t.pool.Unpin(pid, true)
	}
	t.count = 0
	return t.persist()
}

// --- row codec ---------------------------------------------------------

// EncodeRows serializes an ordered list of already-encoded row byte slices
// into a single page payload: a 4-byte row count followed by
// length-prefixed rows.
func EncodeRows(rows [][]byte) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(rows)))
	for _, r := range rows {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(r)))
		buf = append(buf, lenBuf...)
		buf = append(buf, r...)
	}
	return buf
}

// DecodeRows is the inverse of EncodeRows.
func DecodeRows(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, nil
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	offset := 4
	rows := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("heap: truncated row length at row %d", i)
		}
		rowLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if offset+rowLen > len(data) {
			return nil, fmt.Errorf("heap: truncated row body at row %d", i)
		}
		rows = append(rows, data[offset:offset+rowLen])
		offset += rowLen
	}
	return rows, nil
}

func decodePage(pg *page.Page, columns []string) ([][]byte, error) {
	_ = columns
	return DecodeRows(pg.PayloadBytes())
}

func writePage(pg *page.Page, rows [][]byte) error {
	blob := EncodeRows(rows)
	return pg.SetPayload(blob, uint32(len(rows)))
}

// encodeRow serializes a row's values in column order: a column-count
// prefix, then per column a 1-byte type tag (0=null, 1=int64, 2=string)
// followed by the value's bytes.
func encodeRow(columns []string, row catalog.Row) []byte {
	buf := []byte{byte(len(columns))}
	for _, col := range columns {
		v := row[col]
		switch v.Kind {
		case value.KindInt:
			buf = append(buf, 1)
			ib := make([]byte, 8)
			binary.LittleEndian.PutUint64(ib, uint64(v.I))
			buf = append(buf, ib...)
		case value.KindString:
			buf = append(buf, 2)
			lb := make([]byte, 4)
			binary.LittleEndian.PutUint32(lb, uint32(len(v.S)))
			buf = append(buf, lb...)
			buf = append(buf, v.S...)
		default:
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeRow(columns []string, data []byte) (catalog.Row, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("heap: empty row")
	}
	n := int(data[0])
	if n != len(columns) {
		return nil, fmt.Errorf("heap: row has %d columns, table has %d", n, len(columns))
	}
	offset := 1
	row := make(catalog.Row, n)
	for _, col := range columns {
		if offset >= len(data) {
			return nil, fmt.Errorf("heap: truncated row")
		}
		tag := data[offset]
		offset++
		switch tag {
		case 0:
			row[col] = value.Null
		case 1:
			if offset+8 > len(data) {
				return nil, fmt.Errorf("heap: truncated int value")
			}
			i := int64(binary.LittleEndian.Uint64(data[offset : offset+8]))
			offset += 8
			row[col] = value.NewInt(i)
		case 2:
			if offset+4 > len(data) {
				return nil, fmt.Errorf("heap: truncated string length")
			}
			l := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
			offset += 4
			if offset+l > len(data) {
				return nil, fmt.Errorf("heap: truncated string value")
			}
			row[col] = value.NewString(string(data[offset : offset+l]))
			offset += l
		default:
			return nil, fmt.Errorf("heap: unknown value tag %d", tag)
		}
	}
	return row, nil
}
