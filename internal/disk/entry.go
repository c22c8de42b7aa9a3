// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package disk

import (
	"encoding/binary"
)

// All ids and offsets inside tree entries are stored at the file's id width
// (4 or 8 bytes); the small counters (length, refcount) are always 16-bit.

func readID(b []byte, width int) uint64 {
	if width == 4 {
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}

func putID(b []byte, width int, v uint64) {
	if width == 4 {
		binary.LittleEndian.PutUint32(b, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(b, v)
}

// BlockEntry is one Block-Tree leaf entry: where a block lives, its total
// on-disk length (content plus trailer), and how many references it has.
type BlockEntry struct {
	BID      uint64
	Off      uint64
	Len      uint16
	RefCount uint16
}

// NodeEntry is one Node-Tree leaf entry.  DataBID, SubBID and ParentNID are
// zero when absent.
type NodeEntry struct {
	NID       uint64
	DataBID   uint64
	SubBID    uint64
	ParentNID uint64
}

// SubnodeEntry is one subnode-tree leaf entry, the per-node analogue of a
// NodeEntry without a parent link.
type SubnodeEntry struct {
	NID     uint64
	DataBID uint64
	SubBID  uint64
}

func BranchEntrySize(width int) int  { return 3 * width }
func BlockEntrySize(width int) int   { return 2*width + 4 }
func NodeEntrySize(width int) int    { return 4 * width }
func SubnodeEntrySize(width int) int { return 3 * width }

// LeafCodec describes how the generic tree reader interprets a leaf entry:
// its fixed size, how to extract its key, and how to decode it.
type LeafCodec[E any] struct {
	Size   int
	Key    func(raw []byte) uint64
	Decode func(raw []byte) E
}

// BlockCodec returns the Block-Tree leaf codec for an id width.
func BlockCodec(width int) LeafCodec[BlockEntry] {
	return LeafCodec[BlockEntry]{
		Size: BlockEntrySize(width),
		Key:  func(raw []byte) uint64 { return readID(raw, width) },
		Decode: func(raw []byte) BlockEntry {
			return BlockEntry{
				BID:      readID(raw, width),
				Off:      readID(raw[width:], width),
				Len:      binary.LittleEndian.Uint16(raw[2*width:]),
				RefCount: binary.LittleEndian.Uint16(raw[2*width+2:]),
			}
		},
	}
}

// NodeCodec returns the Node-Tree leaf codec for an id width.
func NodeCodec(width int) LeafCodec[NodeEntry] {
	return LeafCodec[NodeEntry]{
		Size: NodeEntrySize(width),
		Key:  func(raw []byte) uint64 { return readID(raw, width) },
		Decode: func(raw []byte) NodeEntry {
			return NodeEntry{
				NID:       readID(raw, width),
				DataBID:   readID(raw[width:], width),
				SubBID:    readID(raw[2*width:], width),
				ParentNID: readID(raw[3*width:], width),
			}
		},
	}
}

// SubnodeCodec returns the subnode-tree leaf codec for an id width.
func SubnodeCodec(width int) LeafCodec[SubnodeEntry] {
	return LeafCodec[SubnodeEntry]{
		Size: SubnodeEntrySize(width),
		Key:  func(raw []byte) uint64 { return readID(raw, width) },
		Decode: func(raw []byte) SubnodeEntry {
			return SubnodeEntry{
				NID:     readID(raw, width),
				DataBID: readID(raw[width:], width),
				SubBID:  readID(raw[2*width:], width),
			}
		},
	}
}

// AppendBranchEntry appends the encoded (key, child) pair to dst.
func AppendBranchEntry(dst []byte, width int, key uint64, child Ref) []byte {
	raw := make([]byte, BranchEntrySize(width))
	putID(raw, width, key)
	putID(raw[width:], width, child.BID)
	putID(raw[2*width:], width, child.Off)
	return append(dst, raw...)
}

// EncodeBlockEntry encodes one Block-Tree leaf entry.
func EncodeBlockEntry(width int, e BlockEntry) []byte {
	raw := make([]byte, BlockEntrySize(width))
	putID(raw, width, e.BID)
	putID(raw[width:], width, e.Off)
	binary.LittleEndian.PutUint16(raw[2*width:], e.Len)
	binary.LittleEndian.PutUint16(raw[2*width+2:], e.RefCount)
	return raw
}

// EncodeNodeEntry encodes one Node-Tree leaf entry.
func EncodeNodeEntry(width int, e NodeEntry) []byte {
	raw := make([]byte, NodeEntrySize(width))
	putID(raw, width, e.NID)
	putID(raw[width:], width, e.DataBID)
	putID(raw[2*width:], width, e.SubBID)
	putID(raw[3*width:], width, e.ParentNID)
	return raw
}

// EncodeSubnodeEntry encodes one subnode-tree leaf entry.
func EncodeSubnodeEntry(width int, e SubnodeEntry) []byte {
	raw := make([]byte, SubnodeEntrySize(width))
	putID(raw, width, e.NID)
	putID(raw[width:], width, e.DataBID)
	putID(raw[2*width:], width, e.SubBID)
	return raw
}
