// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package ndb reads the node/block database layer of a versioned, paged
// container file: two B-trees over fixed-size pages, CRC-protected blocks,
// and indirection chains for data spanning multiple blocks.
package ndb

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pstkit/ndb/internal/btree"
	"github.com/pstkit/ndb/internal/disk"
	"github.com/pstkit/ndb/internal/pagefile"
)

const defaultCacheBytes = 32 << 20

// Option configures an open container handle.
type Option func(*openOptions)

type openOptions struct {
	logger     *zap.Logger
	cacheBytes int64
}

// WithLogger sets an optional logger for the handle.  If not provided, no
// logging output is produced.
func WithLogger(logger *zap.Logger) Option {
	return func(opts *openOptions) {
		opts.logger = logger
	}
}

// WithCacheSize bounds the assembled-data cache to n bytes.
func WithCacheSize(n int64) Option {
	return func(opts *openOptions) {
		opts.cacheBytes = n
	}
}

// File is an open, read-only container.  All state is scoped to the handle;
// concurrent lookups are safe.
type File struct {
	pf     *pagefile.File
	pages  *pageReader
	header disk.Header
	width  int

	cache  *ristretto.Cache[uint64, []byte]
	flight singleflight.Group
	sugar  *zap.SugaredLogger

	blockCodec disk.LeafCodec[disk.BlockEntry]
	nodeCodec  disk.LeafCodec[disk.NodeEntry]
	subCodec   disk.LeafCodec[disk.SubnodeEntry]
}

// Open bootstraps a handle from the file header: magic, format version
// (which fixes the id width for the whole file), tree roots, file size, and
// header checksum.  It fails ErrInvalidHeader if any of those are wrong.
func Open(path string, opts ...Option) (*File, error) {
	var options openOptions
	options.logger = zap.NewNop()
	options.cacheBytes = defaultCacheBytes
	for _, opt := range opts {
		opt(&options)
	}

	pf, err := pagefile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pagefile.Open(%s): %w", path, err)
	}

	var headerBuf [disk.HeaderSize]byte
	if err := pf.ReadAt(headerBuf[:], 0); err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	var header disk.Header
	if err := header.UnmarshalBytes(headerBuf[:]); err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if header.FileSize != uint64(pf.Size()) {
		_ = pf.Close()
		return nil, fmt.Errorf("%w: header declares %d bytes, file has %d", ErrInvalidHeader, header.FileSize, pf.Size())
	}

	width := disk.Width(header.Version)
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: 1 << 14,
		MaxCost:     options.cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("ristretto.NewCache: %w", err)
	}

	f := &File{
		pf:         pf,
		pages:      &pageReader{pf: pf, width: width},
		header:     header,
		width:      width,
		cache:      cache,
		sugar:      options.logger.Sugar(),
		blockCodec: disk.BlockCodec(width),
		nodeCodec:  disk.NodeCodec(width),
		subCodec:   disk.SubnodeCodec(width),
	}
	f.sugar.Debugw("opened container",
		"path", path,
		"version", header.Version,
		"size", header.FileSize,
	)
	return f, nil
}

// Close releases the handle.  Cached projections are discarded.
func (f *File) Close() error {
	f.cache.Close()
	f.sugar.Debugw("closed container")
	return f.pf.Close()
}

// pageReader fetches tree pages and enforces their integrity.  Pages share
// the common block trailer, so the same signature and checksum discipline
// applies before the page structure is parsed.
type pageReader struct {
	pf    *pagefile.File
	width int
}

func (r *pageReader) ReadPage(ref disk.Ref) (*disk.Page, error) {
	buf := make([]byte, disk.PageSize)
	if err := r.pf.ReadAt(buf, int64(ref.Off)); err != nil {
		return nil, err
	}
	content, err := verifyBlock(buf, ref.Off, ref.BID)
	if err != nil {
		return nil, err
	}
	page, err := disk.ParsePageContent(content, r.width, ref.BID)
	if err != nil {
		return nil, corrupt(ref.BID, err.Error())
	}
	return page, nil
}

// lookupBlock resolves a block id to its location through the Block Tree.
// An absent id is a dangling reference and always surfaces as ErrNotFound.
func (f *File) lookupBlock(bid uint64) (disk.BlockEntry, error) {
	e, err := btree.Lookup(f.pages, f.header.BBT, bid, f.blockCodec)
	return e, pageCorruption(err)
}

// lookupNode resolves a node id through the Node Tree.  ErrNotFound here is
// the expected deleted-object signal.
func (f *File) lookupNode(nid uint64) (disk.NodeEntry, error) {
	e, err := btree.Lookup(f.pages, f.header.NBT, nid, f.nodeCodec)
	return e, pageCorruption(err)
}

// subnodeRoot resolves the root page of a subnode tree.  Unlike the two
// header trees, a subnode root is named by bare block id and located
// through the Block Tree.
func (f *File) subnodeRoot(subBID uint64) (disk.Ref, error) {
	be, err := f.lookupBlock(subBID)
	if err != nil {
		return disk.Ref{}, err
	}
	if be.Len != disk.PageSize {
		return disk.Ref{}, corrupt(subBID, fmt.Sprintf("subnode root is %d bytes, want a %d-byte page", be.Len, disk.PageSize))
	}
	return disk.Ref{BID: subBID, Off: be.Off}, nil
}

func (f *File) lookupSubnode(subBID uint64, sub uint64) (disk.SubnodeEntry, error) {
	root, err := f.subnodeRoot(subBID)
	if err != nil {
		return disk.SubnodeEntry{}, err
	}
	e, err := btree.Lookup(f.pages, root, sub, f.subCodec)
	return e, pageCorruption(err)
}

// Node returns a handle to a node's tree metadata.
func (f *File) Node(nid NID) (*Node, error) {
	ent, err := f.lookupNode(uint64(nid))
	if err != nil {
		return nil, err
	}
	return &Node{f: f, nid: nid, ent: ent}, nil
}

// ResolveNode returns the full logical data bytes of a node, reassembled
// across blocks if the data is chained.
func (f *File) ResolveNode(nid NID) ([]byte, error) {
	n, err := f.Node(nid)
	if err != nil {
		return nil, err
	}
	return n.Data()
}

// ResolveSubnode returns the data bytes of one subnode of a node.
func (f *File) ResolveSubnode(nid, sub NID) ([]byte, error) {
	n, err := f.Node(nid)
	if err != nil {
		return nil, err
	}
	s, err := n.Subnode(sub)
	if err != nil {
		return nil, err
	}
	return s.Data()
}

// Node is a read-only projection of one Node-Tree entry.
type Node struct {
	f   *File
	nid NID
	ent disk.NodeEntry
}

func (n *Node) NID() NID {
	return n.nid
}

func (n *Node) Type() NodeType {
	return n.nid.Type()
}

// Parent returns the owning node's id, if the node has one.
func (n *Node) Parent() (NID, bool) {
	return NID(n.ent.ParentNID), n.ent.ParentNID != 0
}

// HasSubnodes reports whether the node owns a subnode tree.
func (n *Node) HasSubnodes() bool {
	return n.ent.SubBID != 0
}

// Data assembles and returns the node's data bytes.
func (n *Node) Data() ([]byte, error) {
	if n.ent.DataBID == 0 {
		return nil, nil
	}
	return n.f.assemble(n.ent.DataBID)
}

// Subnode looks sub up in the node's subnode tree.
func (n *Node) Subnode(sub NID) (*Subnode, error) {
	if n.ent.SubBID == 0 {
		return nil, fmt.Errorf("node %x has no subnodes: %w", uint64(n.nid), ErrNotFound)
	}
	ent, err := n.f.lookupSubnode(n.ent.SubBID, uint64(sub))
	if err != nil {
		return nil, err
	}
	return &Subnode{f: n.f, nid: sub, ent: ent}, nil
}

// Subnode is a read-only projection of one subnode-tree entry.  A subnode
// may itself own a subnode tree, to arbitrary depth.
type Subnode struct {
	f   *File
	nid NID
	ent disk.SubnodeEntry
}

func (s *Subnode) NID() NID {
	return s.nid
}

func (s *Subnode) HasSubnodes() bool {
	return s.ent.SubBID != 0
}

// Data assembles and returns the subnode's data bytes.
func (s *Subnode) Data() ([]byte, error) {
	if s.ent.DataBID == 0 {
		return nil, nil
	}
	return s.f.assemble(s.ent.DataBID)
}

// Subnode descends one level further into the nested subnode tree.
func (s *Subnode) Subnode(sub NID) (*Subnode, error) {
	if s.ent.SubBID == 0 {
		return nil, fmt.Errorf("subnode %x has no subnodes: %w", uint64(s.nid), ErrNotFound)
	}
	ent, err := s.f.lookupSubnode(s.ent.SubBID, uint64(sub))
	if err != nil {
		return nil, err
	}
	return &Subnode{f: s.f, nid: sub, ent: ent}, nil
}
