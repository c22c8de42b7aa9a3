// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package disk

import (
	"encoding/binary"
	"fmt"
)

// Block trailer layout, in the last 16 bytes of every block:
//
//	[0:2]  content length (on-disk length minus the trailer)
//	[2:4]  signature over (offset, bid)
//	[4:8]  checksum over the content
//	[8:16] block id
type BlockTrailer struct {
	CB       int
	Sig      uint16
	Checksum uint32
	BID      uint64
}

// SplitBlock slices a raw on-disk block (as located by a Block-Tree entry)
// into its content and parsed trailer.
func SplitBlock(raw []byte) (content []byte, tr BlockTrailer, err error) {
	if len(raw) < BlockTrailerSize {
		return nil, tr, fmt.Errorf("block of %d bytes cannot hold a trailer", len(raw))
	}
	t := raw[len(raw)-BlockTrailerSize:]
	tr = BlockTrailer{
		CB:       int(binary.LittleEndian.Uint16(t[0:])),
		Sig:      binary.LittleEndian.Uint16(t[2:]),
		Checksum: binary.LittleEndian.Uint32(t[4:]),
		BID:      binary.LittleEndian.Uint64(t[8:]),
	}
	content = raw[:len(raw)-BlockTrailerSize]
	if tr.CB != len(content) {
		return nil, tr, fmt.Errorf("block trailer declares %d content bytes, have %d", tr.CB, len(content))
	}
	return content, tr, nil
}

// EncodeBlock returns the on-disk image of a block written at off: the
// content followed by a valid trailer.
func EncodeBlock(content []byte, off, bid uint64) []byte {
	raw := make([]byte, len(content)+BlockTrailerSize)
	copy(raw, content)
	t := raw[len(content):]
	binary.LittleEndian.PutUint16(t[0:], uint16(len(content)))
	binary.LittleEndian.PutUint16(t[2:], Signature(off, bid))
	binary.LittleEndian.PutUint32(t[4:], Checksum(content))
	binary.LittleEndian.PutUint64(t[8:], bid)
	return raw
}

// Internal (indirection) block content layout:
//
//	[0]    marker, always 0x01
//	[1]    level (1 = children are external, >1 = children are internal)
//	[2:4]  child count
//	[4:8]  declared total byte length of the assembled data
//	[8:]   child block ids, id-width each, in assembly order
//
// ParseInternalBlock decodes the content of a block whose id carries the
// indirection tag.
func ParseInternalBlock(content []byte, width int) (level uint8, total uint32, children []uint64, err error) {
	if len(content) < internalHeaderSize {
		return 0, 0, nil, fmt.Errorf("internal block content too short: %d bytes", len(content))
	}
	if content[0] != internalBlockMarker {
		return 0, 0, nil, fmt.Errorf("internal block marker is %#x, want %#x", content[0], internalBlockMarker)
	}
	level = content[1]
	if level == 0 {
		return 0, 0, nil, fmt.Errorf("internal block declares level 0")
	}
	count := int(binary.LittleEndian.Uint16(content[2:]))
	total = binary.LittleEndian.Uint32(content[4:])
	if internalHeaderSize+count*width > len(content) {
		return 0, 0, nil, fmt.Errorf("internal block declares %d children, content holds %d bytes", count, len(content))
	}
	children = make([]uint64, count)
	for i := 0; i < count; i++ {
		children[i] = readID(content[internalHeaderSize+i*width:], width)
	}
	return level, total, children, nil
}

// EncodeInternalBlock builds the content bytes of an indirection block.
func EncodeInternalBlock(width int, level uint8, total uint32, children []uint64) ([]byte, error) {
	if level == 0 {
		return nil, fmt.Errorf("indirection level must be >= 1")
	}
	if len(children) > 0xFFFF {
		return nil, fmt.Errorf("too many children: %d", len(children))
	}
	content := make([]byte, internalHeaderSize+len(children)*width)
	content[0] = internalBlockMarker
	content[1] = level
	binary.LittleEndian.PutUint16(content[2:], uint16(len(children)))
	binary.LittleEndian.PutUint32(content[4:], total)
	for i, c := range children {
		putID(content[internalHeaderSize+i*width:], width, c)
	}
	if len(content) > MaxBlockContent {
		return nil, fmt.Errorf("indirection block content %d exceeds max %d", len(content), MaxBlockContent)
	}
	return content, nil
}

// MaxInternalChildren reports how many child ids fit in one indirection
// block at the given id width.
func MaxInternalChildren(width int) int {
	return (MaxBlockContent - internalHeaderSize) / width
}
