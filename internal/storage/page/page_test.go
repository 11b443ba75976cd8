package page

import (
	"bytes"
	"testing"
)

func TestNewPageIsEmptyAndFree(t *testing.T) {
	p := New(7, TypeData)
	if p.Header.PageID != 7 || p.Header.Type != TypeData {
		t.Fatalf("unexpected header: %+v", p.Header)
	}
	if p.FreeSpace() != PayloadSize {
		t.Fatalf("want full free space, got %d", p.FreeSpace())
	}
	if p.Header.NextPage != NoPage || p.Header.PrevPage != NoPage {
		t.Fatalf("want unset sibling links, got %+v", p.Header)
	}
}

func TestWriteAtRejectsOverflow(t *testing.T) {
	p := New(1, TypeData)
	if err := p.WriteAt(PayloadSize-1, []byte{1, 2}); err == nil {
		t.Fatal("want error writing past payload end")
	}
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	p := New(42, TypeMetadata)
	if err := p.SetPayload([]byte("hello page"), 3); err != nil {
		t.Fatalf("SetPayload: %v", err)
	}
	p.Header.NextPage = 5
	p.Header.PrevPage = 4

	raw := p.ToBytes()
	if len(raw) != Size {
		t.Fatalf("want %d bytes, got %d", Size, len(raw))
	}

	got, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got.Header.PageID != 42 || got.Header.Type != TypeMetadata {
		t.Fatalf("header mismatch: %+v", got.Header)
	}
	if got.Header.RecordCount != 3 {
		t.Fatalf("want record count 3, got %d", got.Header.RecordCount)
	}
	if got.Header.NextPage != 5 || got.Header.PrevPage != 4 {
		t.Fatalf("sibling links mismatch: %+v", got.Header)
	}
	if !bytes.HasPrefix(got.PayloadBytes(), []byte("hello page")) {
		t.Fatalf("payload mismatch: %q", got.PayloadBytes())
	}
}

func TestFromBytesRejectsWrongSize(t *testing.T) {
	if _, err := FromBytes(make([]byte, Size-1)); err == nil {
		t.Fatal("want error for undersized buffer")
	}
}

func TestClearResetsPayloadKeepsLinks(t *testing.T) {
	p := New(1, TypeData)
	_ = p.WriteAt(0, []byte("row"))
	p.Header.NextPage = 9
	p.Clear()
	if p.FreeSpace() != PayloadSize {
		t.Fatalf("want full free space after clear, got %d", p.FreeSpace())
	}
	if p.Header.NextPage != 9 {
		t.Fatalf("want sibling link preserved across Clear, got %d", p.Header.NextPage)
	}
}

func TestPinUnpinFloorsAtZero(t *testing.T) {
	p := New(1, TypeData)
	p.Unpin()
	if p.PinCount() != 0 {
		t.Fatalf("want pin count floored at 0, got %d", p.PinCount())
	}
	p.Pin()
	p.Pin()
	p.Unpin()
	if p.PinCount() != 1 {
		t.Fatalf("want pin count 1, got %d", p.PinCount())
	}
}
