// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_RoundTrip(t *testing.T) {
	origH := &Header{
		Version:  FormatLarge,
		FileSize: 8192,
		NBT:      Ref{BID: 0x44, Off: 1024},
		BBT:      Ref{BID: 0x48, Off: 2048},
	}

	// this should be an error
	err := origH.MarshalTo(nil)
	assert.Error(t, err)

	headerBytes := make([]byte, HeaderSize)
	// this should be an error -- missing magic number
	var newH Header
	err = newH.UnmarshalBytes(headerBytes)
	assert.Error(t, err)

	err = origH.MarshalTo(headerBytes)
	require.NoError(t, err)

	err = newH.UnmarshalBytes(nil)
	assert.Error(t, err)

	err = newH.UnmarshalBytes(headerBytes)
	require.NoError(t, err)
	assert.Equal(t, *origH, newH)

	// corrupting any covered byte must break the checksum
	headerBytes[9] ^= 0x10
	err = newH.UnmarshalBytes(headerBytes)
	assert.Error(t, err)
	headerBytes[9] ^= 0x10

	// an unknown version must not round-trip
	origH.Version = 666
	err = origH.MarshalTo(headerBytes)
	assert.Error(t, err)
}

func TestWidth(t *testing.T) {
	assert.Equal(t, 4, Width(FormatSmall))
	assert.Equal(t, 8, Width(FormatLarge))
	assert.Equal(t, 0, Width(3))
}

func TestBIDTags(t *testing.T) {
	ext := MakeBID(7, false)
	intl := MakeBID(7, true)
	assert.False(t, IsInternal(ext))
	assert.True(t, IsInternal(intl))
	assert.NotEqual(t, ext, intl)
	// tag bits never collide with the counter
	assert.Equal(t, uint64(7), ext>>2)
	assert.Equal(t, uint64(7), intl>>2)
}

// parseTestPage strips and verifies the trailer of a full page image, the
// way a reader would before parsing the content.
func parseTestPage(t *testing.T, img []byte, width int, off, bid uint64) (*Page, error) {
	t.Helper()
	content, tr, err := SplitBlock(img)
	require.NoError(t, err)
	require.Equal(t, bid, tr.BID)
	require.Equal(t, Signature(off, bid), tr.Sig)
	require.Equal(t, Checksum(content), tr.Checksum)
	return ParsePageContent(content, width, tr.BID)
}

func TestPage_RoundTrip(t *testing.T) {
	for _, width := range []int{4, 8} {
		codec := BlockCodec(width)
		entries := [][]byte{
			EncodeBlockEntry(width, BlockEntry{BID: 4, Off: 128, Len: 512, RefCount: 1}),
			EncodeBlockEntry(width, BlockEntry{BID: 8, Off: 640, Len: 100, RefCount: 2}),
		}
		img, err := EncodePage(width, 0, codec.Size, entries, 1024, 0x10)
		require.NoError(t, err)
		require.Len(t, img, PageSize)

		page, err := parseTestPage(t, img, width, 1024, 0x10)
		require.NoError(t, err)
		assert.True(t, page.IsLeaf())
		assert.Equal(t, 2, page.Count)
		assert.Equal(t, uint64(0x10), page.BID)

		got := codec.Decode(page.Entry(1))
		assert.Equal(t, BlockEntry{BID: 8, Off: 640, Len: 100, RefCount: 2}, got)
		assert.Equal(t, uint64(4), codec.Key(page.Entry(0)))
	}
}

func TestPage_Branch(t *testing.T) {
	width := 8
	entries := [][]byte{
		AppendBranchEntry(nil, width, 16, Ref{BID: 0x20, Off: 4096}),
		AppendBranchEntry(nil, width, 64, Ref{BID: 0x24, Off: 4608}),
	}
	img, err := EncodePage(width, 1, BranchEntrySize(width), entries, 2048, 0x28)
	require.NoError(t, err)

	page, err := parseTestPage(t, img, width, 2048, 0x28)
	require.NoError(t, err)
	require.False(t, page.IsLeaf())

	key, child := page.Branch(1)
	assert.Equal(t, uint64(64), key)
	assert.Equal(t, Ref{BID: 0x24, Off: 4608}, child)
}

func TestParsePageContent_Malformed(t *testing.T) {
	_, err := ParsePageContent(make([]byte, pageContentSize-1), 8, 1)
	assert.Error(t, err)

	// zero entry size
	_, err = ParsePageContent(make([]byte, pageContentSize), 8, 1)
	assert.Error(t, err)

	// count overflows the content
	content := make([]byte, pageContentSize)
	content[0] = 0xFF
	content[1] = 0xFF
	content[2] = 16
	_, err = ParsePageContent(content, 8, 1)
	assert.Error(t, err)

	// branch page with a non-branch entry size
	content[0] = 0
	content[1] = 0
	content[3] = 2
	_, err = ParsePageContent(content, 8, 1)
	assert.Error(t, err)
}

func TestBlock_RoundTrip(t *testing.T) {
	content := []byte("0123456789abcdef0123456789")
	raw := EncodeBlock(content, 8192, 0x14)

	got, tr, err := SplitBlock(raw)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, len(content), tr.CB)
	assert.Equal(t, uint64(0x14), tr.BID)
	assert.Equal(t, Signature(8192, 0x14), tr.Sig)
	assert.Equal(t, Checksum(content), tr.Checksum)

	_, _, err = SplitBlock(raw[:BlockTrailerSize-1])
	assert.Error(t, err)

	// trailer length disagreeing with the extent is structural corruption
	_, _, err = SplitBlock(raw[1:])
	assert.Error(t, err)
}

func TestSignature_TiesBlockToOffset(t *testing.T) {
	sig := Signature(64, 0x14)
	assert.NotEqual(t, sig, Signature(128, 0x14))
	assert.NotEqual(t, sig, Signature(64, 0x18))
}

func TestInternalBlock_RoundTrip(t *testing.T) {
	for _, width := range []int{4, 8} {
		children := []uint64{0x4, 0x8, 0xC}
		content, err := EncodeInternalBlock(width, 1, 20000, children)
		require.NoError(t, err)

		level, total, got, err := ParseInternalBlock(content, width)
		require.NoError(t, err)
		assert.Equal(t, uint8(1), level)
		assert.Equal(t, uint32(20000), total)
		assert.Equal(t, children, got)
	}
}

func TestInternalBlock_Malformed(t *testing.T) {
	_, _, _, err := ParseInternalBlock([]byte{1, 1}, 8)
	assert.Error(t, err)

	content, err := EncodeInternalBlock(8, 1, 100, []uint64{0x4})
	require.NoError(t, err)

	// wrong marker
	content[0] = 0x02
	_, _, _, err = ParseInternalBlock(content, 8)
	assert.Error(t, err)
	content[0] = 0x01

	// zero level
	content[1] = 0
	_, _, _, err = ParseInternalBlock(content, 8)
	assert.Error(t, err)
	content[1] = 1

	// declared child count larger than the content
	content[2] = 0xFF
	_, _, _, err = ParseInternalBlock(content, 8)
	assert.Error(t, err)
}
