// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstkit/ndb/internal/disk"
)

// memSource serves pages from memory, with the same integrity checks a real
// reader applies.
type memSource struct {
	pages map[uint64][]byte // keyed by page bid
	width int
	reads int
}

func (m *memSource) ReadPage(ref disk.Ref) (*disk.Page, error) {
	m.reads++
	img, ok := m.pages[ref.BID]
	if !ok {
		return nil, fmt.Errorf("no page at bid %x", ref.BID)
	}
	content, tr, err := disk.SplitBlock(img)
	if err != nil {
		return nil, err
	}
	if tr.BID != ref.BID {
		return nil, fmt.Errorf("page %x carries id %x", ref.BID, tr.BID)
	}
	return disk.ParsePageContent(content, m.width, tr.BID)
}

// buildTree packs sorted keys into leaf pages of `fanout` entries and
// stacks branch pages until one root remains.  Entries are BlockEntries
// whose Off doubles the key, so lookups can be checked for exactness.
func buildTree(t *testing.T, src *memSource, keys []uint64, fanout int) disk.Ref {
	t.Helper()
	width := src.width
	codec := disk.BlockCodec(width)
	nextBID := uint64(0x1000)

	type childRef struct {
		key uint64
		ref disk.Ref
	}
	var children []childRef

	for start := 0; start < len(keys); start += fanout {
		end := start + fanout
		if end > len(keys) {
			end = len(keys)
		}
		var entries [][]byte
		for _, k := range keys[start:end] {
			entries = append(entries, disk.EncodeBlockEntry(width, disk.BlockEntry{
				BID: k, Off: 2 * k, Len: 64, RefCount: 1,
			}))
		}
		bid := nextBID
		nextBID += 4
		img, err := disk.EncodePage(width, 0, codec.Size, entries, bid, bid)
		require.NoError(t, err)
		src.pages[bid] = img
		children = append(children, childRef{key: keys[start], ref: disk.Ref{BID: bid, Off: bid}})
	}

	var level uint8
	for len(children) > 1 {
		level++
		var next []childRef
		for start := 0; start < len(children); start += fanout {
			end := start + fanout
			if end > len(children) {
				end = len(children)
			}
			var entries [][]byte
			for _, c := range children[start:end] {
				entries = append(entries, disk.AppendBranchEntry(nil, width, c.key, c.ref))
			}
			bid := nextBID
			nextBID += 4
			img, err := disk.EncodePage(width, level, disk.BranchEntrySize(width), entries, bid, bid)
			require.NoError(t, err)
			src.pages[bid] = img
			next = append(next, childRef{key: children[start].key, ref: disk.Ref{BID: bid, Off: bid}})
		}
		children = next
	}
	return children[0].ref
}

func TestLookup_EmptyTree(t *testing.T) {
	src := &memSource{pages: map[uint64][]byte{}, width: 8}
	_, err := Lookup(src, disk.Ref{}, 42, disk.BlockCodec(8))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, src.reads)
}

func TestLookup_SingleLeafPage(t *testing.T) {
	src := &memSource{pages: map[uint64][]byte{}, width: 8}
	keys := []uint64{4, 8, 16}
	root := buildTree(t, src, keys, 8)

	for _, k := range keys {
		e, err := Lookup(src, root, k, disk.BlockCodec(8))
		require.NoError(t, err)
		assert.Equal(t, k, e.BID)
		assert.Equal(t, 2*k, e.Off)
	}
	for _, k := range []uint64{1, 5, 17} {
		_, err := Lookup(src, root, k, disk.BlockCodec(8))
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestLookup_Monotonicity(t *testing.T) {
	for _, width := range []int{4, 8} {
		src := &memSource{pages: map[uint64][]byte{}, width: width}

		// sparse ascending keys so every gap is a provable miss
		var keys []uint64
		for i := uint64(1); i <= 500; i++ {
			keys = append(keys, i*4)
		}
		// fanout 5 forces three levels: 100 leaves, 20 branches, 4, 1
		root := buildTree(t, src, keys, 5)

		codec := disk.BlockCodec(width)
		for _, k := range keys {
			e, err := Lookup(src, root, k, codec)
			require.NoError(t, err)
			require.Equal(t, k, e.BID)
			require.Equal(t, 2*k, e.Off)
		}
		for _, k := range keys {
			_, err := Lookup(src, root, k+1, codec)
			require.ErrorIs(t, err, ErrNotFound)
		}
		// below the smallest key the descent itself fails
		_, err := Lookup(src, root, 1, codec)
		require.ErrorIs(t, err, ErrNotFound)
		// beyond the largest key the rightmost leaf reports the miss
		_, err = Lookup(src, root, 1<<20, codec)
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestLookup_WrongLeafCodec(t *testing.T) {
	src := &memSource{pages: map[uint64][]byte{}, width: 8}
	root := buildTree(t, src, []uint64{4, 8}, 8)

	// the node codec's entry size disagrees with the stored leaf
	_, err := Lookup(src, root, 4, disk.NodeCodec(8))
	require.ErrorIs(t, err, ErrCorruptPage)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLookup_EmptyBranchPage(t *testing.T) {
	// a branch page with zero separators can never be descended; it is
	// structural corruption, not a missing key
	src := &memSource{pages: map[uint64][]byte{}, width: 8}
	bid := uint64(0x1000)
	img, err := disk.EncodePage(8, 1, disk.BranchEntrySize(8), nil, bid, bid)
	require.NoError(t, err)
	src.pages[bid] = img

	_, err = Lookup(src, disk.Ref{BID: bid, Off: bid}, 7, disk.BlockCodec(8))
	require.ErrorIs(t, err, ErrCorruptPage)
	assert.NotErrorIs(t, err, ErrNotFound)
	var pe *CorruptPageError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, bid, pe.BID)
}

func TestLookup_DepthGuard(t *testing.T) {
	// a branch page that is its own child descends forever without a cap
	src := &memSource{pages: map[uint64][]byte{}, width: 8}
	bid := uint64(0x1000)
	self := disk.Ref{BID: bid, Off: bid}
	entry := disk.AppendBranchEntry(nil, 8, 0, self)
	img, err := disk.EncodePage(8, 1, disk.BranchEntrySize(8), [][]byte{entry}, bid, bid)
	require.NoError(t, err)
	src.pages[bid] = img

	_, err = Lookup(src, self, 7, disk.BlockCodec(8))
	require.ErrorIs(t, err, ErrCorruptPage)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.LessOrEqual(t, src.reads, maxDepth)
}
