// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package disk defines the on-disk layout of the container format: byte
// offsets and explicit encode/decode functions for the file header, tree
// pages, blocks, and B-tree entries.  Nothing here relies on Go struct
// layout matching the disk layout.
package disk

import (
	"github.com/dgryski/go-farm"
)

const (
	// Magic is the first 4 bytes of every container file ("!BDN").
	Magic = 0x4E444221

	// FormatSmall stores ids and offsets as 32-bit values, FormatLarge as
	// 64-bit.  The width is fixed at open time from the header and never
	// varies within a file.
	FormatSmall uint16 = 1
	FormatLarge uint16 = 2

	HeaderSize = 128

	PageSize = 512

	BlockTrailerSize = 16

	// MaxBlockContent caps the content bytes of a single block; larger node
	// data spans multiple blocks behind an indirection block.
	MaxBlockContent = 8192

	internalBlockMarker = 0x01
	internalHeaderSize  = 8 // marker + level + count(u16) + total(u32)

	// bidFlagInternal tags a block id as an indirection block.  The two low
	// bits of every id are tag bits; allocators hand out ids shifted left
	// by two.
	bidFlagInternal = 0x2

	// NIDTypeMask extracts the node-type tag from the low bits of a node id.
	NIDTypeMask = 0x1F
)

// Width returns the id width in bytes for a header format version, or 0 if
// the version is unknown.
func Width(version uint16) int {
	switch version {
	case FormatSmall:
		return 4
	case FormatLarge:
		return 8
	default:
		return 0
	}
}

// IsInternal reports whether a block id names an indirection block rather
// than raw external content.
func IsInternal(bid uint64) bool {
	return bid&bidFlagInternal != 0
}

// MakeBID builds a block id from an allocation counter, optionally tagged
// as an indirection block.
func MakeBID(counter uint64, internal bool) uint64 {
	bid := counter << 2
	if internal {
		bid |= bidFlagInternal
	}
	return bid
}

// Signature ties a block to the disk offset it was written at, so a block
// copied to the wrong offset fails validation even when its checksum is
// intact.
func Signature(off, bid uint64) uint16 {
	x := off ^ bid
	return uint16(x>>16) ^ uint16(x)
}

// Checksum is the 32-bit content checksum used for the header, page bodies,
// and block content.
func Checksum(b []byte) uint32 {
	return uint32(farm.Hash64(b))
}

// Ref locates a tree page on disk: the page's block id plus its absolute
// byte offset.  A zero Ref means "no page" (an empty tree).
type Ref struct {
	BID uint64
	Off uint64
}

func (r Ref) IsZero() bool {
	return r.BID == 0 && r.Off == 0
}
