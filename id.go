// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ndb

import (
	"github.com/pstkit/ndb/internal/disk"
)

// Format versions a header may declare; the version fixes the width of
// every id and offset in the file.
const (
	FormatSmall = disk.FormatSmall // 32-bit ids
	FormatLarge = disk.FormatLarge // 64-bit ids
)

// BID identifies one allocated block.  The two low bits are tag bits: bit 1
// marks an indirection block.  Zero is "no block".
type BID uint64

// IsInternal reports whether the id names an indirection block.
func (b BID) IsInternal() bool {
	return disk.IsInternal(uint64(b))
}

// NID identifies one node.  The low five bits encode the node's type.
// Zero is "no node".
type NID uint64

// NodeType is the tag carried in the low bits of every node id.
type NodeType uint8

const (
	TypeInternal     NodeType = 0x01
	TypeFolder       NodeType = 0x02
	TypeSearchFolder NodeType = 0x03
	TypeMessage      NodeType = 0x04
	TypeAttachment   NodeType = 0x05
	TypeAssocMessage NodeType = 0x06
)

// Type returns the node-type tag encoded in the id.
func (n NID) Type() NodeType {
	return NodeType(n & disk.NIDTypeMask)
}

// MakeNID builds a node id from a type tag and a sequence number.
func MakeNID(t NodeType, seq uint64) NID {
	return NID(seq<<5 | uint64(t)&disk.NIDTypeMask)
}
