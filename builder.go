// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ndb

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/pstkit/ndb/internal/disk"
	"github.com/pstkit/ndb/internal/pagefile"
)

var (
	errDuplicateNode = errors.New("duplicate node id")
	errZeroNode      = errors.New("node id must be non-zero")
	errDataTooBig    = errors.New("node data larger than 4 GiB")
)

// BuilderOption configures the Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger *zap.Logger
	fanout int
}

// WithBuilderLogger sets an optional logger for the builder to use for
// progress updates.  If not provided, no logging output will be produced.
func WithBuilderLogger(logger *zap.Logger) BuilderOption {
	return func(opts *builderOptions) {
		opts.logger = logger
	}
}

// WithPageFanout caps tree-page fan-out below the page's natural capacity,
// forcing deeper trees from few entries.
func WithPageFanout(n int) BuilderOption {
	return func(opts *builderOptions) {
		opts.fanout = n
	}
}

// SubnodeSpec describes one subnode to build, with optional nested
// children forming a deeper subnode tree.
type SubnodeSpec struct {
	NID      NID
	Data     []byte
	Children []SubnodeSpec
}

type nodeSpec struct {
	nid    NID
	parent NID
	data   []byte
	subs   []SubnodeSpec
}

// Builder constructs a new immutable container file from scratch.  It is
// construction-only tooling: there is no page splitting or free-block
// allocation, and the result is finalized once and never mutated.
type Builder struct {
	resultPath string
	version    uint16
	width      int
	fanout     int
	sugar      *zap.SugaredLogger

	nodes []nodeSpec
	seen  map[NID]struct{}
}

// NewBuilder creates a Builder targeting resultPath.  Building should
// happen once; Finalize writes to a temp file and atomically renames it
// into place.
func NewBuilder(resultPath string, version uint16, opts ...BuilderOption) (*Builder, error) {
	width := disk.Width(version)
	if width == 0 {
		return nil, fmt.Errorf("unknown format version %d", version)
	}
	options := builderOptions{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	resultPath, err := filepath.Abs(resultPath)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	return &Builder{
		resultPath: resultPath,
		version:    version,
		width:      width,
		fanout:     options.fanout,
		sugar:      options.logger.Sugar(),
		seen:       make(map[NID]struct{}),
	}, nil
}

// AddNode queues a node with its data and optional subnode tree.  parent
// may be zero for roots.
func (b *Builder) AddNode(nid, parent NID, data []byte, subnodes ...SubnodeSpec) error {
	if nid == 0 {
		return errZeroNode
	}
	if _, dup := b.seen[nid]; dup {
		return errDuplicateNode
	}
	if len(data) > 1<<32-1 {
		return errDataTooBig
	}
	b.seen[nid] = struct{}{}
	b.nodes = append(b.nodes, nodeSpec{nid: nid, parent: parent, data: data, subs: subnodes})
	return nil
}

// Finalize lays the container out on disk and opens the result.
func (b *Builder) Finalize() (*File, error) {
	dir := filepath.Dir(b.resultPath)
	tmp, err := os.CreateTemp(dir, "ndb-builder.*.data")
	if err != nil {
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for dir containing result): %w", err)
	}

	l := &layout{
		w:      bufio.NewWriterSize(tmp, 1<<20),
		width:  b.width,
		fanout: b.fanout,
		refs:   make(map[uint64]int),
	}
	header, err := b.writeBody(l)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	if err := l.w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("bufio.Flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("f.Sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("f.Close: %w", err)
	}

	// the body is on disk; patch the real header in over the placeholder
	var headerBuf [disk.HeaderSize]byte
	if err := header.MarshalTo(headerBuf[:]); err != nil {
		return nil, err
	}
	pf, err := pagefile.OpenRW(tmp.Name())
	if err != nil {
		return nil, err
	}
	if err := pf.WriteAt(headerBuf[:], 0); err != nil {
		_ = pf.Close()
		return nil, err
	}
	if err := pf.Sync(); err != nil {
		_ = pf.Close()
		return nil, err
	}
	if err := pf.Close(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmp.Name(), b.resultPath); err != nil {
		return nil, fmt.Errorf("os.Rename: %w", err)
	}
	if err := os.Chmod(b.resultPath, 0444); err != nil {
		return nil, fmt.Errorf("os.Chmod(0444): %w", err)
	}
	b.sugar.Debugw("finalized container",
		"path", b.resultPath,
		"nodes", len(b.nodes),
		"size", header.FileSize,
	)
	return Open(b.resultPath)
}

// writeBody writes everything after the header placeholder and returns the
// finished header.  Order on disk: data blocks, subnode pages, Node-Tree
// pages, Block-Tree pages.
func (b *Builder) writeBody(l *layout) (*disk.Header, error) {
	if err := l.writeZeros(disk.HeaderSize); err != nil {
		return nil, err
	}

	sort.Slice(b.nodes, func(i, j int) bool { return b.nodes[i].nid < b.nodes[j].nid })

	nodeEntries := make([]rawEntry, 0, len(b.nodes))
	for _, n := range b.nodes {
		dataBID, err := l.writeData(n.data)
		if err != nil {
			return nil, err
		}
		subBID, err := b.writeSubnodeTree(l, n.subs)
		if err != nil {
			return nil, err
		}
		l.ref(dataBID)
		l.ref(subBID)
		ent := disk.NodeEntry{
			NID:       uint64(n.nid),
			DataBID:   dataBID,
			SubBID:    subBID,
			ParentNID: uint64(n.parent),
		}
		nodeEntries = append(nodeEntries, rawEntry{
			key: uint64(n.nid),
			raw: disk.EncodeNodeEntry(b.width, ent),
		})
	}

	nbtRoot, err := l.writeTree(nodeEntries, disk.NodeEntrySize(b.width), false)
	if err != nil {
		return nil, err
	}

	// every block and subnode page written so far gets a Block-Tree entry
	bbtRoot, err := l.writeTree(l.blockLeafEntries(), disk.BlockEntrySize(b.width), false)
	if err != nil {
		return nil, err
	}

	return &disk.Header{
		Version:  b.version,
		FileSize: l.off,
		NBT:      nbtRoot,
		BBT:      bbtRoot,
	}, nil
}

// writeSubnodeTree writes the blocks and pages of one subnode tree,
// children first, and returns the root page's block id (zero when there are
// no subnodes).
func (b *Builder) writeSubnodeTree(l *layout, specs []SubnodeSpec) (uint64, error) {
	if len(specs) == 0 {
		return 0, nil
	}
	sorted := make([]SubnodeSpec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NID < sorted[j].NID })

	entries := make([]rawEntry, 0, len(sorted))
	for _, s := range sorted {
		dataBID, err := l.writeData(s.Data)
		if err != nil {
			return 0, err
		}
		subBID, err := b.writeSubnodeTree(l, s.Children)
		if err != nil {
			return 0, err
		}
		l.ref(dataBID)
		l.ref(subBID)
		ent := disk.SubnodeEntry{
			NID:     uint64(s.NID),
			DataBID: dataBID,
			SubBID:  subBID,
		}
		entries = append(entries, rawEntry{
			key: uint64(s.NID),
			raw: disk.EncodeSubnodeEntry(b.width, ent),
		})
	}
	root, err := l.writeTree(entries, disk.SubnodeEntrySize(b.width), true)
	if err != nil {
		return 0, err
	}
	return root.BID, nil
}
