// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package disk

import (
	"encoding/binary"
	"fmt"
)

// A tree page is a fixed-size block: 496 bytes of content followed by the
// common 16-byte block trailer.  The content starts with a 4-byte page
// header, then the packed entries:
//
//	[0:2] entry count
//	[2]   entry size in bytes
//	[3]   level (0 = leaf, >0 = branch)
//	[4:]  entries
const (
	pageContentSize = PageSize - BlockTrailerSize
	pageMetaSize    = 4
)

// Page is a parsed tree page.
type Page struct {
	Level     uint8
	EntrySize int
	Count     int
	Width     int
	BID       uint64

	entries []byte
}

// ParsePageContent validates the structure of a page's content bytes (the
// trailer already stripped and verified by the caller).
func ParsePageContent(content []byte, width int, bid uint64) (*Page, error) {
	if len(content) != pageContentSize {
		return nil, fmt.Errorf("page content must be %d bytes, got %d", pageContentSize, len(content))
	}
	p := &Page{
		Count:     int(binary.LittleEndian.Uint16(content[0:])),
		EntrySize: int(content[2]),
		Level:     content[3],
		Width:     width,
		BID:       bid,
		entries:   content[pageMetaSize:],
	}
	if p.EntrySize == 0 {
		return nil, fmt.Errorf("page %x declares zero entry size", bid)
	}
	if p.Count*p.EntrySize > len(p.entries) {
		return nil, fmt.Errorf("page %x overflows: %d entries of %d bytes", bid, p.Count, p.EntrySize)
	}
	if p.Level > 0 && p.EntrySize != BranchEntrySize(width) {
		return nil, fmt.Errorf("branch page %x has entry size %d, want %d", bid, p.EntrySize, BranchEntrySize(width))
	}
	return p, nil
}

func (p *Page) IsLeaf() bool {
	return p.Level == 0
}

// Entry returns the raw bytes of entry i.
func (p *Page) Entry(i int) []byte {
	return p.entries[i*p.EntrySize : (i+1)*p.EntrySize]
}

// Branch decodes entry i of a branch page as (separator key, child ref).
func (p *Page) Branch(i int) (key uint64, child Ref) {
	raw := p.Entry(i)
	w := p.Width
	key = readID(raw, w)
	child.BID = readID(raw[w:], w)
	child.Off = readID(raw[2*w:], w)
	return key, child
}

// EncodePage packs entries into a full on-disk page image (content plus
// trailer) as written at off.
func EncodePage(width int, level uint8, entrySize int, entries [][]byte, off, bid uint64) ([]byte, error) {
	if entrySize <= 0 || entrySize > 0xFF {
		return nil, fmt.Errorf("entry size %d out of range", entrySize)
	}
	if len(entries)*entrySize > pageContentSize-pageMetaSize {
		return nil, fmt.Errorf("%d entries of %d bytes exceed page capacity", len(entries), entrySize)
	}
	content := make([]byte, pageContentSize)
	binary.LittleEndian.PutUint16(content[0:], uint16(len(entries)))
	content[2] = uint8(entrySize)
	content[3] = level
	at := pageMetaSize
	for _, e := range entries {
		if len(e) != entrySize {
			return nil, fmt.Errorf("entry is %d bytes, want %d", len(e), entrySize)
		}
		copy(content[at:], e)
		at += entrySize
	}
	return EncodeBlock(content, off, bid), nil
}

// PageEntriesPerPage reports how many entries of the given size fit in one
// page.
func PageEntriesPerPage(entrySize int) int {
	return (pageContentSize - pageMetaSize) / entrySize
}
