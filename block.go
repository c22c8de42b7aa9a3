// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ndb

import (
	"fmt"
	"strconv"

	"github.com/pstkit/ndb/internal/disk"
)

// maxIndirectionDepth caps recursion through indirection blocks.  Well-
// formed files chain at most two levels; the format itself does not prove
// acyclicity, so depth and visited ids are both guarded.
const maxIndirectionDepth = 8

// decodedBlock is the tagged result of reading one block: either raw
// external payload or an indirection record.  Callers match on the concrete
// type.
type decodedBlock interface {
	decodedBlock()
}

type externalBlock struct {
	data []byte
}

// internalBlock is an indirection record: an ordered list of child block
// ids one level down, plus the declared byte length of the fully assembled
// data.
type internalBlock struct {
	level    uint8
	total    uint32
	children []uint64
}

func (externalBlock) decodedBlock()  {}
func (*internalBlock) decodedBlock() {}

// verifyBlock strips the trailer from a raw block extent read at off and
// checks all three integrity fields: the id the trailer carries, the
// offset-tying signature, and the content checksum.
func verifyBlock(raw []byte, off, bid uint64) ([]byte, error) {
	content, tr, err := disk.SplitBlock(raw)
	if err != nil {
		return nil, corrupt(bid, err.Error())
	}
	if tr.BID != bid {
		return nil, corrupt(bid, fmt.Sprintf("trailer carries id %x", tr.BID))
	}
	if want := disk.Signature(off, bid); tr.Sig != want {
		return nil, corruptValues(bid, "trailer signature mismatch", uint32(tr.Sig), uint32(want))
	}
	if computed := disk.Checksum(content); computed != tr.Checksum {
		return nil, corruptValues(bid, "checksum mismatch", tr.Checksum, computed)
	}
	return content, nil
}

// readBlock resolves bid through the Block Tree, reads its exact on-disk
// extent, and verifies the trailer before classifying the block.  A failed
// checksum fails the whole read; no partial bytes escape.
func (f *File) readBlock(bid uint64) (decodedBlock, error) {
	be, err := f.lookupBlock(bid)
	if err != nil {
		return nil, err
	}
	if be.Len < disk.BlockTrailerSize {
		return nil, corrupt(bid, fmt.Sprintf("block entry declares %d bytes, shorter than a trailer", be.Len))
	}

	raw := make([]byte, be.Len)
	if err := f.pf.ReadAt(raw, int64(be.Off)); err != nil {
		return nil, err
	}

	content, err := verifyBlock(raw, be.Off, bid)
	if err != nil {
		f.sugar.Warnw("block failed verification", "bid", bid, "err", err)
		return nil, err
	}

	if !disk.IsInternal(bid) {
		return externalBlock{data: content}, nil
	}
	level, total, children, err := disk.ParseInternalBlock(content, f.width)
	if err != nil {
		return nil, corrupt(bid, err.Error())
	}
	return &internalBlock{level: level, total: total, children: children}, nil
}

// assemble reconstructs the full logical byte stream rooted at bid,
// concatenating chained child blocks in listed order.  Cached entries are
// immutable once published and never escape: every caller gets its own
// copy, so mutating a result cannot poison other readers.  Concurrent
// misses for the same root collapse to one decode.
func (f *File) assemble(bid uint64) ([]byte, error) {
	if data, ok := f.cache.Get(bid); ok {
		return append([]byte(nil), data...), nil
	}
	v, err, _ := f.flight.Do(strconv.FormatUint(bid, 16), func() (interface{}, error) {
		visited := make(map[uint64]struct{})
		data, err := f.assembleChain(bid, 0, visited)
		if err != nil {
			return nil, err
		}
		f.cache.Set(bid, data, int64(len(data))+1)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (f *File) assembleChain(bid uint64, depth int, visited map[uint64]struct{}) ([]byte, error) {
	if depth > maxIndirectionDepth {
		return nil, corrupt(bid, "indirection chain too deep")
	}
	if _, seen := visited[bid]; seen {
		return nil, corrupt(bid, "indirection cycle")
	}
	visited[bid] = struct{}{}

	b, err := f.readBlock(bid)
	if err != nil {
		return nil, err
	}
	switch b := b.(type) {
	case externalBlock:
		return b.data, nil
	case *internalBlock:
		// the declared total is untrusted; never preallocate more than the
		// listed children could possibly hold
		capHint := int(b.total)
		if limit := len(b.children) * disk.MaxBlockContent; capHint > limit {
			capHint = limit
		}
		data := make([]byte, 0, capHint)
		for _, child := range b.children {
			if wantInternal := b.level > 1; disk.IsInternal(child) != wantInternal {
				return nil, corrupt(bid, fmt.Sprintf("level-%d chain references mistagged child %x", b.level, child))
			}
			childData, err := f.assembleChain(child, depth+1, visited)
			if err != nil {
				return nil, err
			}
			data = append(data, childData...)
		}
		if uint32(len(data)) != b.total {
			return nil, corruptValues(bid, "assembled length mismatch", b.total, uint32(len(data)))
		}
		return data, nil
	default:
		panic("unreachable block variant")
	}
}
