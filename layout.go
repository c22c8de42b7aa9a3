// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ndb

import (
	"bufio"
	"fmt"
	"sort"

	"github.com/pstkit/ndb/internal/disk"
)

// rawEntry is one pre-encoded leaf entry with its key, ready for page
// packing.  Callers hand them over sorted.
type rawEntry struct {
	key uint64
	raw []byte
}

// layout appends blocks and tree pages to the output file in order,
// tracking offsets, block-id allocation, and reference counts.
type layout struct {
	w      *bufio.Writer
	off    uint64
	width  int
	fanout int

	bidCounter uint64
	blocks     []disk.BlockEntry
	refs       map[uint64]int
}

func (l *layout) ref(bid uint64) {
	if bid != 0 {
		l.refs[bid]++
	}
}

func (l *layout) allocBID(internal bool) uint64 {
	l.bidCounter++
	return disk.MakeBID(l.bidCounter, internal)
}

func (l *layout) writeRaw(b []byte) error {
	if _, err := l.w.Write(b); err != nil {
		return fmt.Errorf("bufio.Write: %w", err)
	}
	l.off += uint64(len(b))
	return nil
}

func (l *layout) writeZeros(n int) error {
	return l.writeRaw(make([]byte, n))
}

// writeBlock appends one block (content plus trailer) and records its
// Block-Tree entry.
func (l *layout) writeBlock(content []byte, internal bool) (uint64, error) {
	if len(content) > disk.MaxBlockContent {
		return 0, fmt.Errorf("block content %d exceeds max %d", len(content), disk.MaxBlockContent)
	}
	bid := l.allocBID(internal)
	raw := disk.EncodeBlock(content, l.off, bid)
	l.blocks = append(l.blocks, disk.BlockEntry{
		BID: bid,
		Off: l.off,
		Len: uint16(len(raw)),
	})
	if err := l.writeRaw(raw); err != nil {
		return 0, err
	}
	return bid, nil
}

// writeData stores one logical byte stream, splitting it across external
// blocks behind an indirection chain when it exceeds a single block.  It
// returns the root block id.
func (l *layout) writeData(data []byte) (uint64, error) {
	if len(data) <= disk.MaxBlockContent {
		return l.writeBlock(data, false)
	}

	var children []uint64
	for chunk := data; len(chunk) > 0; {
		n := len(chunk)
		if n > disk.MaxBlockContent {
			n = disk.MaxBlockContent
		}
		bid, err := l.writeBlock(chunk[:n], false)
		if err != nil {
			return 0, err
		}
		children = append(children, bid)
		chunk = chunk[n:]
	}

	maxChildren := disk.MaxInternalChildren(l.width)
	if len(children) <= maxChildren {
		return l.writeInternal(1, uint32(len(data)), children)
	}

	// two levels: group the externals under level-1 blocks, then a
	// level-2 root over those
	var mids []uint64
	total := uint64(0)
	for start := 0; start < len(children); start += maxChildren {
		end := start + maxChildren
		if end > len(children) {
			end = len(children)
		}
		groupLen := uint32(0)
		if end == len(children) {
			groupLen = uint32(uint64(len(data)) - total)
		} else {
			groupLen = uint32((end - start) * disk.MaxBlockContent)
		}
		total += uint64(groupLen)
		mid, err := l.writeInternal(1, groupLen, children[start:end])
		if err != nil {
			return 0, err
		}
		mids = append(mids, mid)
	}
	if len(mids) > maxChildren {
		return 0, fmt.Errorf("data of %d bytes exceeds two indirection levels", len(data))
	}
	return l.writeInternal(2, uint32(len(data)), mids)
}

func (l *layout) writeInternal(level uint8, total uint32, children []uint64) (uint64, error) {
	for _, c := range children {
		l.ref(c)
	}
	content, err := disk.EncodeInternalBlock(l.width, level, total, children)
	if err != nil {
		return 0, err
	}
	return l.writeBlock(content, true)
}

// writePage appends one tree page.  Pages belonging to subnode trees are
// additionally recorded in the Block Tree so their roots can be resolved by
// bare block id.
func (l *layout) writePage(level uint8, entrySize int, entries [][]byte, inBBT bool) (disk.Ref, error) {
	bid := l.allocBID(false)
	img, err := disk.EncodePage(l.width, level, entrySize, entries, l.off, bid)
	if err != nil {
		return disk.Ref{}, err
	}
	ref := disk.Ref{BID: bid, Off: l.off}
	if inBBT {
		l.blocks = append(l.blocks, disk.BlockEntry{
			BID: bid,
			Off: l.off,
			Len: disk.PageSize,
		})
	}
	if err := l.writeRaw(img); err != nil {
		return disk.Ref{}, err
	}
	return ref, nil
}

func (l *layout) perPage(entrySize int) int {
	n := disk.PageEntriesPerPage(entrySize)
	if l.fanout > 0 && l.fanout < n {
		n = l.fanout
	}
	return n
}

// blockLeafEntries renders every block written so far as a sorted,
// refcounted Block-Tree leaf entry.
func (l *layout) blockLeafEntries() []rawEntry {
	sort.Slice(l.blocks, func(i, j int) bool { return l.blocks[i].BID < l.blocks[j].BID })
	entries := make([]rawEntry, 0, len(l.blocks))
	for _, be := range l.blocks {
		be.RefCount = uint16(l.refs[be.BID])
		if be.RefCount == 0 {
			be.RefCount = 1
		}
		entries = append(entries, rawEntry{
			key: be.BID,
			raw: disk.EncodeBlockEntry(l.width, be),
		})
	}
	return entries
}

// writeTree packs sorted leaf entries into pages and stacks branch levels
// on top until a single root remains.
func (l *layout) writeTree(entries []rawEntry, entrySize int, inBBT bool) (disk.Ref, error) {
	if len(entries) == 0 {
		return disk.Ref{}, nil
	}

	type childRef struct {
		key uint64
		ref disk.Ref
	}

	var level uint8
	var children []childRef
	perLeaf := l.perPage(entrySize)
	for start := 0; start < len(entries); start += perLeaf {
		end := start + perLeaf
		if end > len(entries) {
			end = len(entries)
		}
		raws := make([][]byte, 0, end-start)
		for _, e := range entries[start:end] {
			raws = append(raws, e.raw)
		}
		ref, err := l.writePage(0, entrySize, raws, inBBT)
		if err != nil {
			return disk.Ref{}, err
		}
		children = append(children, childRef{key: entries[start].key, ref: ref})
	}

	branchSize := disk.BranchEntrySize(l.width)
	perBranch := l.perPage(branchSize)
	for len(children) > 1 {
		level++
		var next []childRef
		for start := 0; start < len(children); start += perBranch {
			end := start + perBranch
			if end > len(children) {
				end = len(children)
			}
			raws := make([][]byte, 0, end-start)
			for _, c := range children[start:end] {
				l.ref(c.ref.BID)
				raws = append(raws, disk.AppendBranchEntry(nil, l.width, c.key, c.ref))
			}
			ref, err := l.writePage(level, branchSize, raws, inBBT)
			if err != nil {
				return disk.Ref{}, err
			}
			next = append(next, childRef{key: children[start].key, ref: ref})
		}
		children = next
	}
	return children[0].ref, nil
}
