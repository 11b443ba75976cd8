// Package disk implements the bottom of minidb's storage stack: a single
// database file addressed by fixed page_id*page_size offsets. Offsets are
// fixed at page_id*page.Size for the lifetime of the file and free pages
// are tracked purely in memory, so a page's on-disk location never changes
// once allocated, even after it is freed and reused.
package disk

import (
	"fmt"
	"os"
	"sync"

	"github.com/minidb/minidb/internal/storage/page"
)

// Manager owns the single underlying database file and hands out page ids.
type Manager struct {
	mu        sync.Mutex
	file      *os.File
	nextID    uint32
	freePages map[uint32]bool
}

// Open opens (or creates) the database file at path and recovers the next
// page id from its current size.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}

	m := &Manager{file: f, freePages: make(map[uint32]bool)}
	m.nextID = uint32(info.Size() / page.Size)
	return m, nil
}

// AllocatePage reuses a deallocated page id if one is available, otherwise
// grows the file by one page, and returns the id of a zeroed page.
func (m *Manager) AllocatePage() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id uint32
	if len(m.freePages) > 0 {
		for pid := range m.freePages {
			id = pid
			break
		}
		delete(m.freePages, id)
	} else {
		id = m.nextID
		m.nextID++
	}

	if err := m.writePageLocked(id, make([]byte, page.Size)); err != nil {
		return 0, err
	}
	return id, nil
}

// DeallocatePage marks a page id free for reuse. It does not shrink the
// file; the slot is simply reused by a future AllocatePage.
func (m *Manager) DeallocatePage(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freePages[id] = true
}

// ReadPage reads the Size-byte block for id.
func (m *Manager) ReadPage(id uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, page.Size)
	n, err := m.file.ReadAt(buf, int64(id)*page.Size)
	if err != nil && n != page.Size {
		return nil, fmt.Errorf("disk: read page %d: %w", id, err)
	}
	return buf, nil
}

// WritePage writes a Size-byte block at id's fixed offset.
func (m *Manager) WritePage(id uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writePageLocked(id, data)
}

func (m *Manager) writePageLocked(id uint32, data []byte) error {
	if len(data) != page.Size {
		return fmt.Errorf("disk: page payload must be %d bytes, got %d", page.Size, len(data))
	}
	if _, err := m.file.WriteAt(data, int64(id)*page.Size); err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	return nil
}

// PageCount returns the number of pages ever allocated (including free
// ones still occupying file space).
func (m *Manager) PageCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID
}

// FreePageCount returns the number of pages currently marked free.
func (m *Manager) FreePageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.freePages)
}

// SizeInBytes returns the database file's current size on disk.
func (m *Manager) SizeInBytes() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("disk: stat: %w", err)
	}
	return info.Size(), nil
}

// Flush syncs the underlying file to stable storage.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: sync: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (m *Manager) Close() error {
	if err := m.Flush(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("disk: close: %w", err)
	}
	return nil
}
