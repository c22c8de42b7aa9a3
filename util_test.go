// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ndb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileTime_RoundTrip(t *testing.T) {
	for _, sec := range []int64{
		0,
		1,
		1234567890,
		time.Date(2020, 6, 1, 12, 30, 0, 0, time.UTC).Unix(),
	} {
		assert.Equal(t, sec, FileTimeToUnix(UnixToFileTime(sec)))
	}

	// the Unix epoch in ticks is the documented delta
	assert.Equal(t, uint64(116444736000000000), UnixToFileTime(0))

	// sub-second ticks truncate toward the epoch
	assert.Equal(t, int64(1), FileTimeToUnix(UnixToFileTime(1)+9_999_999))
}

func TestTestBit(t *testing.T) {
	// bit 7 is the LSB of byte 0, bit 8 the MSB of byte 1
	buf := []byte{0b0000_0001, 0b1000_0000}

	assert.True(t, TestBit(buf, 7))
	assert.True(t, TestBit(buf, 8))
	for _, bit := range []uint{0, 1, 6, 9, 15} {
		assert.False(t, TestBit(buf, bit), "bit %d", bit)
	}

	buf = []byte{0b1010_0000}
	assert.True(t, TestBit(buf, 0))
	assert.False(t, TestBit(buf, 1))
	assert.True(t, TestBit(buf, 2))
}
