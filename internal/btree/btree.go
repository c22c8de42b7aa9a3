// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package btree holds the one tree-traversal algorithm shared by the Block
// Tree, the Node Tree, and every per-node subnode tree.  The trees differ
// only in id width and leaf-entry shape, which callers supply as a codec.
package btree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pstkit/ndb/internal/disk"
)

// ErrNotFound reports a key absent from the tree.  For the Node Tree this
// is the expected deleted-object signal, not corruption.
var ErrNotFound = errors.New("key not found")

// ErrCorruptPage is the sentinel all *CorruptPageError values unwrap to.
var ErrCorruptPage = errors.New("corrupt tree page")

// CorruptPageError reports a structurally invalid tree page: an empty
// branch, a leaf whose entry size disagrees with the tree's codec, or a
// descent that never reaches a leaf.  It is a distinct failure family from
// ErrNotFound; callers must never treat it as a missing key.
type CorruptPageError struct {
	BID    uint64
	Reason string
}

func (e *CorruptPageError) Error() string {
	return fmt.Sprintf("page %x: %s", e.BID, e.Reason)
}

func (e *CorruptPageError) Unwrap() error {
	return ErrCorruptPage
}

// maxDepth bounds descent through branch pages.  Well-formed trees are a
// handful of levels deep; a chain longer than this is a reference loop.
const maxDepth = 32

// PageSource fetches and integrity-checks one tree page.  Implementations
// must verify the page's checksum and that it carries the block id it was
// fetched by.
type PageSource interface {
	ReadPage(ref disk.Ref) (*disk.Page, error)
}

// Lookup walks the tree rooted at root for key.  Branch pages are descended
// by greatest separator <= key; leaf pages are binary-searched for an exact
// match.  A zero root is an empty tree.
func Lookup[E any](src PageSource, root disk.Ref, key uint64, codec disk.LeafCodec[E]) (E, error) {
	var zero E
	if root.IsZero() {
		return zero, fmt.Errorf("lookup %x in empty tree: %w", key, ErrNotFound)
	}
	ref := root
	for depth := 0; depth < maxDepth; depth++ {
		page, err := src.ReadPage(ref)
		if err != nil {
			return zero, err
		}
		if page.IsLeaf() {
			return searchLeaf(page, key, codec)
		}
		child, err := descend(page, key)
		if err != nil {
			return zero, err
		}
		ref = child
	}
	return zero, &CorruptPageError{BID: root.BID, Reason: fmt.Sprintf("tree deeper than %d levels", maxDepth)}
}

// descend picks the child whose separator is the greatest key <= target.
func descend(page *disk.Page, key uint64) (disk.Ref, error) {
	n := page.Count
	if n == 0 {
		return disk.Ref{}, &CorruptPageError{BID: page.BID, Reason: "empty branch page"}
	}
	// first index whose separator is > key
	i := sort.Search(n, func(i int) bool {
		sep, _ := page.Branch(i)
		return sep > key
	})
	if i == 0 {
		// key sorts before every separator, so no leaf can hold it
		return disk.Ref{}, fmt.Errorf("key %x below tree range: %w", key, ErrNotFound)
	}
	_, child := page.Branch(i - 1)
	return child, nil
}

func searchLeaf[E any](page *disk.Page, key uint64, codec disk.LeafCodec[E]) (E, error) {
	var zero E
	if sz := page.EntrySize; sz != codec.Size {
		return zero, &CorruptPageError{BID: page.BID, Reason: fmt.Sprintf("leaf entry size %d, want %d", sz, codec.Size)}
	}
	n := page.Count
	i := sort.Search(n, func(i int) bool {
		return codec.Key(page.Entry(i)) >= key
	})
	if i == n || codec.Key(page.Entry(i)) != key {
		return zero, fmt.Errorf("key %x: %w", key, ErrNotFound)
	}
	return codec.Decode(page.Entry(i)), nil
}
