package buffer

import (
	"path/filepath"
	"testing"

	"github.com/minidb/minidb/internal/storage/disk"
	"github.com/minidb/minidb/internal/storage/page"
)

func openTestPool(t *testing.T, capacity int, strategy Strategy) *Pool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	p, err := NewPool(dm, capacity, strategy)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func TestNewPageThenGetHits(t *testing.T) {
	p := openTestPool(t, 4, LRU)
	pg, err := p.NewPage(page.TypeData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if _, err := p.Get(pg.Header.PageID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	stats := p.Stats()
	if stats.Hits != 1 {
		t.Fatalf("want 1 hit, got %+v", stats)
	}
}

func TestCapacityInvariantNeverExceeded(t *testing.T) {
	p := openTestPool(t, 2, LRU)
	for i := 0; i < 5; i++ {
		if _, err := p.NewPage(page.TypeData); err != nil {
			t.Fatalf("NewPage %d: %v", i, err)
		}
		if p.Size() > 2 {
			t.Fatalf("pool exceeded capacity: size %d", p.Size())
		}
	}
}

func TestPinProtectsFromEviction(t *testing.T) {
	p := openTestPool(t, 1, LRU)
	pg, err := p.NewPage(page.TypeData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if _, err := p.Pin(pg.Header.PageID); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if _, err := p.NewPage(page.TypeData); err == nil {
		t.Fatal("want error: sole pinned page cannot be evicted to make room")
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	p := openTestPool(t, 2, LRU)
	a, _ := p.NewPage(page.TypeData)
	b, _ := p.NewPage(page.TypeData)
	// touch a again so b becomes the LRU victim
	if _, err := p.Get(a.Header.PageID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := p.NewPage(page.TypeData); err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if p.Size() != 2 {
		t.Fatalf("want pool size 2, got %d", p.Size())
	}
	if _, ok := p.pages[b.Header.PageID]; ok {
		t.Fatalf("want page %d evicted, still resident", b.Header.PageID)
	}
	if _, ok := p.pages[a.Header.PageID]; !ok {
		t.Fatalf("want recently-touched page %d to survive eviction", a.Header.PageID)
	}
}

func TestCapacityOneAlternatingAccessCountsEveryEviction(t *testing.T) {
	p := openTestPool(t, 1, LRU)
	a, err := p.NewPage(page.TypeData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	b, err := p.NewPage(page.TypeData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := p.Get(a.Header.PageID); err != nil {
			t.Fatalf("Get a: %v", err)
		}
		if _, err := p.Get(b.Header.PageID); err != nil {
			t.Fatalf("Get b: %v", err)
		}
	}

	stats := p.Stats()
	if stats.Evictions == 0 {
		t.Fatalf("want nonzero evictions alternating over a capacity-1 pool, got %+v", stats)
	}
}

func TestUnpinMarkDirtyFlushesOnEviction(t *testing.T) {
	p := openTestPool(t, 1, LRU)
	pg, err := p.NewPage(page.TypeData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if err := pg.WriteAt(0, []byte("dirty")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	p.Unpin(pg.Header.PageID, true)

	if _, err := p.NewPage(page.TypeData); err != nil {
		t.Fatalf("NewPage (forces eviction): %v", err)
	}
	stats := p.Stats()
	if stats.Flushes == 0 {
		t.Fatalf("want dirty page flushed on eviction, got %+v", stats)
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	defer dm.Close()
	if _, err := NewPool(dm, 4, Strategy("BOGUS")); err == nil {
		t.Fatal("want error for unknown eviction strategy")
	}
}

func TestZeroCapacityRejected(t *testing.T) {
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	defer dm.Close()
	if _, err := NewPool(dm, 0, LRU); err == nil {
		t.Fatal("want error for non-positive capacity")
	}
}
