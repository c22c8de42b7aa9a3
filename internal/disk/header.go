// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package disk

import (
	"encoding/binary"
	"fmt"
)

// Header byte layout (all little-endian):
//
//	[0:4]   magic
//	[4:6]   format version
//	[6:8]   reserved, zero
//	[8:16]  file size in bytes
//	[16:24] NBT root bid
//	[24:32] NBT root offset
//	[32:40] BBT root bid
//	[40:48] BBT root offset
//	[48:52] checksum over [0:48]
//	[52:128] reserved, zero
const (
	headerVersionOff  = 4
	headerFileSizeOff = 8
	headerNBTOff      = 16
	headerBBTOff      = 32
	headerChecksumOff = 48
)

type Header struct {
	Version  uint16
	FileSize uint64
	NBT      Ref
	BBT      Ref
}

func (h *Header) MarshalTo(dst []byte) error {
	if len(dst) < HeaderSize {
		return fmt.Errorf("header buffer too short: %d < %d", len(dst), HeaderSize)
	}
	if Width(h.Version) == 0 {
		return fmt.Errorf("unknown format version %d", h.Version)
	}
	dst = dst[:HeaderSize]
	for i := range dst {
		dst[i] = 0
	}

	binary.LittleEndian.PutUint32(dst[:4], Magic)
	binary.LittleEndian.PutUint16(dst[headerVersionOff:], h.Version)
	binary.LittleEndian.PutUint64(dst[headerFileSizeOff:], h.FileSize)
	binary.LittleEndian.PutUint64(dst[headerNBTOff:], h.NBT.BID)
	binary.LittleEndian.PutUint64(dst[headerNBTOff+8:], h.NBT.Off)
	binary.LittleEndian.PutUint64(dst[headerBBTOff:], h.BBT.BID)
	binary.LittleEndian.PutUint64(dst[headerBBTOff+8:], h.BBT.Off)
	binary.LittleEndian.PutUint32(dst[headerChecksumOff:], Checksum(dst[:headerChecksumOff]))
	return nil
}

func (h *Header) UnmarshalBytes(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header too short: %d < %d", len(b), HeaderSize)
	}
	b = b[:HeaderSize]

	magic := binary.LittleEndian.Uint32(b[:4])
	if magic != Magic {
		return fmt.Errorf("bad magic number (%x) -- not a container file or corrupted", magic)
	}

	stored := binary.LittleEndian.Uint32(b[headerChecksumOff:])
	if computed := Checksum(b[:headerChecksumOff]); stored != computed {
		return fmt.Errorf("header checksum mismatch (%x != %x)", stored, computed)
	}

	h.Version = binary.LittleEndian.Uint16(b[headerVersionOff:])
	if Width(h.Version) == 0 {
		return fmt.Errorf("unsupported format version %d", h.Version)
	}
	h.FileSize = binary.LittleEndian.Uint64(b[headerFileSizeOff:])
	h.NBT.BID = binary.LittleEndian.Uint64(b[headerNBTOff:])
	h.NBT.Off = binary.LittleEndian.Uint64(b[headerNBTOff+8:])
	h.BBT.BID = binary.LittleEndian.Uint64(b[headerBBTOff:])
	h.BBT.Off = binary.LittleEndian.Uint64(b[headerBBTOff+8:])
	return nil
}
