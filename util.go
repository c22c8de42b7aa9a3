// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ndb

// windowsEpochDelta is the number of 100-nanosecond ticks between the
// Windows epoch (1601-01-01) and the Unix epoch (1970-01-01).
const windowsEpochDelta = 116444736000000000

const ticksPerSecond = 10000000

// FileTimeToUnix converts a Windows-epoch 100-nanosecond tick count to Unix
// seconds.  Sub-second precision is truncated.
func FileTimeToUnix(filetime uint64) int64 {
	return (int64(filetime) - windowsEpochDelta) / ticksPerSecond
}

// UnixToFileTime converts Unix seconds to a Windows-epoch 100-nanosecond
// tick count.
func UnixToFileTime(sec int64) uint64 {
	return uint64(sec*ticksPerSecond + windowsEpochDelta)
}

// TestBit reports whether the given bit of the buffer is set.  Bits number
// from the most significant bit of byte zero, matching the container's
// on-disk bitmaps.
func TestBit(b []byte, bit uint) bool {
	return b[bit>>3]&(0x80>>(bit&7)) != 0
}
