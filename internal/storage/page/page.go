// Package page implements minidb's fixed-size disk page: a 32-byte header
// (page id, page type, record count, free space, and sibling links) followed
// by a payload region, serialized with explicit little-endian
// binary.LittleEndian.PutUint32/Uint32 calls.
package page

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// Size is the fixed page size in bytes.
	Size = 4096

	// HeaderSize is the fixed header size in bytes: six uint32/int32 fields
	// (24 bytes) plus an 8-byte zero-padded page-type tag.
	HeaderSize = 32

	typeTagSize = 8

	// PayloadSize is the usable payload area after the header.
	PayloadSize = Size - HeaderSize
)

// NoPage is the sentinel for an absent next/prev page link.
const NoPage int32 = -1

// Type labels the kind of content a page holds.
type Type string

const (
	TypeData     Type = "DATA"
	TypeMetadata Type = "META"
	TypeFree     Type = "FREE"
)

// Header is the fixed fields stored at the front of every page.
type Header struct {
	PageID      uint32
	Type        Type
	RecordCount uint32
	FreeSpace   uint32
	NextPage    int32
	PrevPage    int32
}

// Page is one fixed-size disk page: a header plus a payload buffer. Pages
// are also the unit of buffer-pool caching, so Page carries the pin count
// and dirty flag the buffer pool needs to track.
type Page struct {
	Header  Header
	Payload [PayloadSize]byte

	pinCount int
	dirty    bool
}

// New creates a zeroed page of the given id and type, with the full payload
// area reported free.
func New(id uint32, typ Type) *Page {
	return &Page{
		Header: Header{
			PageID:    id,
			Type:      typ,
			NextPage:  NoPage,
			PrevPage:  NoPage,
			FreeSpace: PayloadSize,
		},
	}
}

// Pin increments the page's pin count. A pinned page must not be evicted.
func (p *Page) Pin() { p.pinCount++ }

// Unpin decrements the page's pin count, floored at zero.
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

// PinCount reports the current pin count.
func (p *Page) PinCount() int { return p.pinCount }

// MarkDirty flags the page as modified since it was last flushed.
func (p *Page) MarkDirty() { p.dirty = true }

// ClearDirty clears the dirty flag, typically right after a flush.
func (p *Page) ClearDirty() { p.dirty = false }

// IsDirty reports whether the page has unflushed modifications.
func (p *Page) IsDirty() bool { return p.dirty }

// FreeSpace returns the number of unused payload bytes.
func (p *Page) FreeSpace() uint32 { return p.Header.FreeSpace }

// WriteAt copies data into the payload at offset, updating the free-space
// accounting and the dirty flag. It returns an error if data does not fit.
func (p *Page) WriteAt(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > PayloadSize {
		return fmt.Errorf("page: write of %d bytes at offset %d exceeds payload size %d", len(data), offset, PayloadSize)
	}
	copy(p.Payload[offset:], data)
	used := offset + len(data)
	if free := uint32(PayloadSize - used); free < p.Header.FreeSpace {
		p.Header.FreeSpace = free
	}
	p.dirty = true
	return nil
}

// ReadAt returns a copy of n bytes of payload starting at offset.
func (p *Page) ReadAt(offset, n int) ([]byte, error) {
	if offset < 0 || offset+n > PayloadSize {
		return nil, fmt.Errorf("page: read of %d bytes at offset %d exceeds payload size %d", n, offset, PayloadSize)
	}
	out := make([]byte, n)
	copy(out, p.Payload[offset:offset+n])
	return out, nil
}

// SetPayload replaces the entire payload with data (zero-filled after
// len(data)) and recomputes free space and record count. This is how
// the table heap persists a page's full row list after every mutation.
func (p *Page) SetPayload(data []byte, recordCount uint32) error {
	if len(data) > PayloadSize {
		return fmt.Errorf("page: payload of %d bytes exceeds capacity %d", len(data), PayloadSize)
	}
	var buf [PayloadSize]byte
	copy(buf[:], data)
	p.Payload = buf
	p.Header.FreeSpace = uint32(PayloadSize - len(data))
	p.Header.RecordCount = recordCount
	p.dirty = true
	return nil
}

// PayloadBytes returns the payload bytes actually in use, i.e. everything
// before the trailing free region.
func (p *Page) PayloadBytes() []byte {
	used := PayloadSize - int(p.Header.FreeSpace)
	if used < 0 {
		used = 0
	}
	if used > PayloadSize {
		used = PayloadSize
	}
	out := make([]byte, used)
	copy(out, p.Payload[:used])
	return out
}

// Clear resets the page's payload and record count, leaving id/type/links
// untouched. Used when a table heap page's rows are all deleted.
func (p *Page) Clear() {
	p.Payload = [PayloadSize]byte{}
	p.Header.FreeSpace = PayloadSize
	p.Header.RecordCount = 0
	p.dirty = true
}

// ToBytes serializes the page (header + payload) into a Size-byte buffer:
// page id, type length, record count, free space, next page, and prev page
// as six little-endian uint32/int32 fields, followed by an 8-byte type tag.
func (p *Page) ToBytes() []byte {
	buf := make([]byte, Size)
	typeTag := make([]byte, typeTagSize)
	copy(typeTag, p.Header.Type)

	binary.LittleEndian.PutUint32(buf[0:4], p.Header.PageID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(p.Header.Type)))
	binary.LittleEndian.PutUint32(buf[8:12], p.Header.RecordCount)
	binary.LittleEndian.PutUint32(buf[12:16], p.Header.FreeSpace)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(p.Header.NextPage))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(p.Header.PrevPage))
	copy(buf[24:32], typeTag)
	copy(buf[HeaderSize:], p.Payload[:])
	return buf
}

// FromBytes reconstructs a page from Size bytes produced by ToBytes.
func FromBytes(data []byte) (*Page, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("page: expected %d bytes, got %d", Size, len(data))
	}
	p := &Page{}
	p.Header.PageID = binary.LittleEndian.Uint32(data[0:4])
	typeLen := binary.LittleEndian.Uint32(data[4:8])
	p.Header.RecordCount = binary.LittleEndian.Uint32(data[8:12])
	p.Header.FreeSpace = binary.LittleEndian.Uint32(data[12:16])
	p.Header.NextPage = int32(binary.LittleEndian.Uint32(data[16:20]))
	p.Header.PrevPage = int32(binary.LittleEndian.Uint32(data[20:24]))

	tag := data[24:32]
	if typeLen > typeTagSize {
		typeLen = typeTagSize
	}
	p.Header.Type = Type(bytes.TrimRight(tag[:typeLen], "\x00"))

	copy(p.Payload[:], data[HeaderSize:])
	return p, nil
}
