// Package buffer implements the page cache sitting between the table heap
// and the disk manager, with hit/miss/eviction/flush stats and a pluggable
// Policy so minidb can offer LRU, FIFO, CLOCK, and LFU eviction.
package buffer

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/minidb/minidb/internal/storage/disk"
	"github.com/minidb/minidb/internal/storage/page"
)

// Strategy names a buffer-pool eviction policy.
type Strategy string

const (
	LRU   Strategy = "LRU"
	FIFO  Strategy = "FIFO"
	CLOCK Strategy = "CLOCK"
	LFU   Strategy = "LFU"
)

func newPolicy(s Strategy) (Policy, error) {
	switch s {
	case LRU, "":
		return NewLRU(), nil
	case FIFO:
		return NewFIFO(), nil
	case CLOCK:
		return NewClock(), nil
	case LFU:
		return NewLFU(), nil
	default:
		return nil, fmt.Errorf("buffer: unknown eviction strategy %q", s)
	}
}

// Stats tracks hit/miss/eviction/flush counters plus a derived hit rate.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Flushes   int64
}

// HitRate returns Hits / (Hits + Misses), or 0 when there have been no
// accesses yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Pool is the fixed-capacity page cache. Every public method takes the lock
// exactly once; logic shared between methods lives in unexported *Locked
// helpers that assume the lock is held, so the locking is never
// accidentally re-entered.
type Pool struct {
	mu       sync.Mutex
	disk     *disk.Manager
	capacity int
	policy   Policy

	pages  map[uint32]*page.Page
	dirty  map[uint32]bool
	pinned map[uint32]int

	stats Stats
	log   zerolog.Logger
}

// SetLogger attaches a logger the pool uses for debug-level hit/miss/
// eviction tracing. The zero value pool logs nothing.
func (p *Pool) SetLogger(log zerolog.Logger) { p.log = log }

// NewPool creates a buffer pool of the given capacity (page count) over
// disk, using the named eviction strategy.
func NewPool(d *disk.Manager, capacity int, strategy Strategy) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer: capacity must be positive, got %d", capacity)
	}
	pol, err := newPolicy(strategy)
	if err != nil {
		return nil, err
	}
	return &Pool{
		disk:     d,
		capacity: capacity,
		policy:   pol,
		pages:    make(map[uint32]*page.Page),
		dirty:    make(map[uint32]bool),
		pinned:   make(map[uint32]int),
		log:      zerolog.Nop(),
	}, nil
}

// Get returns the page for id, loading it from disk on a cache miss and
// evicting a victim if the pool is full.
func (p *Pool) Get(id uint32) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getLocked(id)
}

func (p *Pool) getLocked(id uint32) (*page.Page, error) {
	if pg, ok := p.pages[id]; ok {
		p.stats.Hits++
		p.policy.Touch(id)
		p.log.Debug().Uint32("page_id", id).Msg("buffer hit")
		return pg, nil
	}

	p.stats.Misses++
	p.log.Debug().Uint32("page_id", id).Msg("buffer miss")
	if len(p.pages) >= p.capacity {
		if err := p.makeRoomLocked(); err != nil {
			return nil, err
		}
	}

	raw, err := p.disk.ReadPage(id)
	if err != nil {
		return nil, err
	}
	pg, err := page.FromBytes(raw)
	if err != nil {
		return nil, err
	}
	p.pages[id] = pg
	p.policy.Touch(id)
	return pg, nil
}

// NewPage allocates a fresh page on disk of the given type and caches it.
func (p *Pool) NewPage(typ page.Type) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, err
	}
	if len(p.pages) >= p.capacity {
		if err := p.makeRoomLocked(); err != nil {
			return nil, err
		}
	}
	pg := page.New(id, typ)
	pg.MarkDirty()
	p.pages[id] = pg
	p.dirty[id] = true
	p.policy.Touch(id)
	return pg, nil
}

// Pin pins the page for id against eviction, loading it if necessary.
func (p *Pool) Pin(id uint32) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pg, err := p.getLocked(id)
	if err != nil {
		return nil, err
	}
	pg.Pin()
	p.pinned[id]++
	return pg, nil
}

// Unpin releases one pin on id. If markDirty is set, the page is flagged
// dirty regardless of whether the caller actually changed it.
func (p *Pool) Unpin(id uint32, markDirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pg, ok := p.pages[id]
	if !ok {
		return
	}
	pg.Unpin()
	if n := p.pinned[id]; n > 0 {
		p.pinned[id] = n - 1
		if p.pinned[id] == 0 {
			delete(p.pinned, id)
		}
	}
	if markDirty {
		pg.MarkDirty()
		p.dirty[id] = true
	}
}

// FlushPage writes a single dirty page back to disk.
func (p *Pool) FlushPage(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(id)
}

func (p *Pool) flushLocked(id uint32) error {
	pg, ok := p.pages[id]
	if !ok {
		return nil
	}
	if !pg.IsDirty() {
		return nil
	}
	if err := p.disk.WritePage(id, pg.ToBytes()); err != nil {
		return err
	}
	pg.ClearDirty()
	delete(p.dirty, id)
	p.stats.Flushes++
	return nil
}

// FlushAll writes every dirty page back to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.dirty {
		if err := p.flushLocked(id); err != nil {
			return err
		}
	}
	return nil
}

// makeRoomLocked evicts one unpinned page to make room for a new one. It
// assumes the caller already holds the lock.
func (p *Pool) makeRoomLocked() error {
	candidates := make(map[uint32]bool, len(p.pages))
	for id := range p.pages {
		if p.pinned[id] == 0 {
			candidates[id] = true
		}
	}
	victim, ok := p.policy.Victim(candidates)
	if !ok {
		return fmt.Errorf("buffer: pool exhausted, no unpinned page to evict")
	}
	if err := p.flushLocked(victim); err != nil {
		return err
	}
	delete(p.pages, victim)
	delete(p.dirty, victim)
	p.policy.Remove(victim)
	p.stats.Evictions++
	p.log.Debug().Uint32("page_id", victim).Msg("buffer eviction")
	return nil
}

// Stats returns a snapshot of the pool's cache statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ResetStats zeroes the cache statistics counters.
func (p *Pool) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = Stats{}
}

// Size returns the number of pages currently resident in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}
