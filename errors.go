// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ndb

import (
	"errors"
	"fmt"

	"github.com/pstkit/ndb/internal/btree"
	"github.com/pstkit/ndb/internal/pagefile"
)

var (
	// ErrNotFound reports an absent block or node id.  On a node lookup it
	// is the expected signal for deleted or tombstoned objects.
	ErrNotFound = btree.ErrNotFound

	// ErrInvalidHeader reports a file whose header fails the magic,
	// version, or checksum checks.
	ErrInvalidHeader = errors.New("invalid container header")

	// ErrCorruptBlock is the sentinel all *CorruptBlockError values unwrap
	// to.
	ErrCorruptBlock = errors.New("corrupt block")

	// ErrOutOfRange reports a byte range past the end of the file.
	ErrOutOfRange = pagefile.ErrOutOfRange
)

// CorruptBlockError reports a structural integrity violation in one block
// or page: a checksum or signature mismatch, a malformed layout, or a bad
// indirection chain.  The reader never repairs or skips; the caller decides
// whether to abandon the container or just the affected node.
type CorruptBlockError struct {
	BID    uint64
	Reason string

	// Expected and Actual carry the stored vs computed value for checksum
	// and signature failures; both are zero otherwise.
	Expected uint32
	Actual   uint32
}

func (e *CorruptBlockError) Error() string {
	if e.Expected != e.Actual {
		return fmt.Sprintf("block %x: %s (expected %#x, actual %#x)", e.BID, e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("block %x: %s", e.BID, e.Reason)
}

func (e *CorruptBlockError) Unwrap() error {
	return ErrCorruptBlock
}

func corrupt(bid uint64, reason string) error {
	return &CorruptBlockError{BID: bid, Reason: reason}
}

func corruptValues(bid uint64, reason string, expected, actual uint32) error {
	return &CorruptBlockError{BID: bid, Reason: reason, Expected: expected, Actual: actual}
}

// pageCorruption rewraps a structurally invalid tree page as block
// corruption, so every malformed-page failure unwraps to ErrCorruptBlock.
// ErrNotFound and I/O errors pass through untouched.
func pageCorruption(err error) error {
	var pe *btree.CorruptPageError
	if errors.As(err, &pe) {
		return corrupt(pe.BID, pe.Reason)
	}
	return err
}
