// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pagefile is the random-access byte-range primitive under the
// container reader.  Every read and write is a single positional operation
// against an already-complete file, so concurrent callers never observe
// interleaved seeks.
package pagefile

import (
	"errors"
	"fmt"
	"os"
)

// ErrOutOfRange reports a byte range extending past the end of the file.
// The file is a fixed artifact; an out-of-range request is never retried.
var ErrOutOfRange = errors.New("byte range out of file bounds")

type File struct {
	f    *os.File
	size int64
}

// Open opens path for random-access reads and advises the kernel that
// access will be random.
func Open(path string) (*File, error) {
	return open(path, os.O_RDONLY)
}

// OpenRW opens path for random-access reads and in-place writes.  It never
// extends the file; writes past the current size fail ErrOutOfRange.
func OpenRW(path string) (*File, error) {
	return open(path, os.O_RDWR)
}

func open(path string, flag int) (*File, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	adviseRandom(f)
	return &File{f: f, size: st.Size()}, nil
}

// Size returns the file's byte length as of open.
func (p *File) Size() int64 {
	return p.size
}

// ReadAt fills buf from the given offset, failing ErrOutOfRange if any part
// of the range lies past the end of the file.  Short reads are errors.
func (p *File) ReadAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > p.size {
		return fmt.Errorf("read [%d, %d) of %d-byte file: %w", off, off+int64(len(buf)), p.size, ErrOutOfRange)
	}
	if _, err := p.f.ReadAt(buf, off); err != nil {
		return fmt.Errorf("f.ReadAt(%d): %w", off, err)
	}
	return nil
}

// WriteAt writes buf at the given offset with the same bound as ReadAt.
func (p *File) WriteAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > p.size {
		return fmt.Errorf("write [%d, %d) of %d-byte file: %w", off, off+int64(len(buf)), p.size, ErrOutOfRange)
	}
	if _, err := p.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("f.WriteAt(%d): %w", off, err)
	}
	return nil
}

// Sync flushes written data to disk.
func (p *File) Sync() error {
	return p.f.Sync()
}

func (p *File) Close() error {
	return p.f.Close()
}
