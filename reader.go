// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package arcfs is a read-only reader for Smash Ultimate's proprietary ARC
// archive container: a single large file holding a zstd-compressed binary
// index plus thousands to millions of embedded resources, some raw and some
// individually compressed. Open parses the archive and builds an in-memory
// filesystem model; the resulting Reader answers hash-40-addressed queries
// for use by an external driver (a FUSE filesystem, a CLI, anything that
// wants random-access, decompressed reads into the archive).
//
// This package has no compile-time dependency on any particular filesystem
// binding: its whole contract with the outside world is Open, the five query
// methods below, and the NewHash40 path-to-identifier utility.
package arcfs

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ultimate-research/arcfs/internal/fetch"
	"github.com/ultimate-research/arcfs/internal/hash40"
	"github.com/ultimate-research/arcfs/internal/index"
	"github.com/ultimate-research/arcfs/internal/mmapview"
	"github.com/ultimate-research/arcfs/internal/model"
	"github.com/ultimate-research/arcfs/internal/openstate"
)

// Hash40 is the 40-bit content identifier that crosses the query-API
// boundary. It is a type alias for hash40.Hash40 so driver code never needs
// to import the internal package directly.
type Hash40 = hash40.Hash40

// NewHash40 computes the hash-40 of a path string (spec.md §3).
func NewHash40(path string) Hash40 { return hash40.New(path) }

// RootHash40 is the reserved hash-40 of the empty path, the archive's root
// directory. A driver-supplied inode 1 should be rewritten to RootHash40 on
// entry to every query (spec.md §3, §6).
const RootHash40 = hash40.Root

// Kind classifies a resolved archive entry.
type Kind = model.Kind

const (
	KindDirectory  = model.KindDirectory
	KindRaw        = model.KindRaw
	KindCompressed = model.KindCompressed
)

// DirEntry is one child of a directory listing (spec.md §4.1).
type DirEntry struct {
	Hash Hash40
	Kind Kind
	Stem string
}

// Metadata is the result of GetFileMetadata: the decompressed size and kind
// of any file or directory (spec.md §4.1).
type Metadata struct {
	DecompSize uint64
	Kind       Kind
}

// Reader is a fully opened archive: an immutable filesystem model plus a
// bounded decompression cache. All methods are safe for concurrent use by
// any number of goroutines (spec.md §5); the only mutable state touched by
// a query is the LRU cache inside the fetcher.
type Reader struct {
	archive *mmapview.View
	model   *model.Model
	fetcher *fetch.Fetcher
	closeFn func() error
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	labelReaders []io.Reader
	excludeGlobs []string
	cacheSize    int
}

// WithLabels supplies an already-open label file (TSV or plain-line, per
// spec.md §4.4/§6) to ingest during Build. May be called more than once;
// later calls add further labels on top of earlier ones.
func WithLabels(r io.Reader) Option {
	return func(o *openOptions) { o.labelReaders = append(o.labelReaders, r) }
}

// WithLabelFile opens path and adds it as a label source.
func WithLabelFile(path string) Option {
	return func(o *openOptions) {
		f, err := os.Open(path)
		if err != nil {
			// Recorded as a labelReaders entry that fails to Load; surfaced
			// uniformly through Open's error return rather than a second
			// error channel.
			o.labelReaders = append(o.labelReaders, errReader{err})
			return
		}
		o.labelReaders = append(o.labelReaders, f)
	}
}

// WithExcludeGlobs skips labels matching any of the given doublestar
// patterns during ingestion (domain-stack addition, not in spec.md).
func WithExcludeGlobs(globs ...string) Option {
	return func(o *openOptions) { o.excludeGlobs = append(o.excludeGlobs, globs...) }
}

// WithCacheSize overrides the decompression cache's capacity (spec.md §4.5
// default: 50 entries).
func WithCacheSize(n int) Option {
	return func(o *openOptions) { o.cacheSize = n }
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// Open maps archivePath and drives the open pipeline from spec.md §4.6,
// logging the states Mapped -> TablesProjected -> ModelBuilt -> Ready.
// index.Parse both decodes the index and projects the tables, so no separate
// IndexDecoded state is logged. Any failure returns a non-nil error and no
// Reader (construction is all-or-nothing, per spec.md §7 class 1) without
// recording a Failed state; no partial Ready state is ever exposed.
func Open(archivePath string, opts ...Option) (*Reader, error) {
	state := openstate.Unopened
	options := &openOptions{cacheSize: 0} // 0 -> fetch.New applies spec.md's default (50)
	for _, opt := range opts {
		opt(options)
	}

	view, closeFn, err := mmapview.OpenFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("arcfs: open %s: %w", archivePath, err)
	}
	state = openstate.Mapped
	slog.Debug("archiveOpened", "path", archivePath, "state", state.String())

	tables, err := index.Parse(view)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("arcfs: parse %s: %w", archivePath, err)
	}
	state = openstate.TablesProjected
	slog.Debug("indexParsed", "path", archivePath, "state", state.String())

	labels := hash40.NewLabelStore()
	for _, r := range options.labelReaders {
		if err := labels.Load(r, options.excludeGlobs); err != nil {
			closeFn()
			return nil, fmt.Errorf("arcfs: load labels: %w", err)
		}
	}

	m, err := model.Build(tables, view, labels)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("arcfs: build model: %w", err)
	}
	state = openstate.ModelBuilt
	slog.Debug("modelBuilt", "path", archivePath, "state", state.String())

	r := &Reader{
		archive: view,
		model:   m,
		fetcher: fetch.New(view, options.cacheSize),
		closeFn: closeFn,
	}
	state = openstate.Ready
	slog.Debug("readerReady", "path", archivePath, "state", state.String())
	return r, nil
}

// Close unmaps the archive file. A Reader must not be used after Close.
func (r *Reader) Close() error {
	if r.closeFn == nil {
		return nil
	}
	return r.closeFn()
}

// normalizeRoot rewrites the driver's traditional POSIX root inode (1) to
// the archive's own root hash-40, per spec.md §3/§6.
func normalizeRoot(h Hash40) Hash40 {
	if h == 1 {
		return RootHash40
	}
	return h
}

// GetName resolves a hash-40 to the human path if known (spec.md §4.1).
func (r *Reader) GetName(h Hash40) (string, bool) {
	return r.model.GetName(normalizeRoot(h))
}

// GetDirListing returns the immediate children of a directory; ok is false
// if h is not a directory in the model (spec.md §4.1).
func (r *Reader) GetDirListing(h Hash40) ([]DirEntry, bool) {
	listing, ok := r.model.GetDirListing(normalizeRoot(h))
	if !ok {
		return nil, false
	}
	out := make([]DirEntry, len(listing))
	for i, e := range listing {
		out[i] = DirEntry{Hash: e.Hash, Kind: e.Kind, Stem: e.Stem}
	}
	return out, true
}

// GetFileMetadata succeeds for any file or directory; it fails ErrMissing
// if h is absent from the model (spec.md §4.1).
func (r *Reader) GetFileMetadata(h Hash40) (Metadata, error) {
	h = normalizeRoot(h)
	entry, ok := r.model.Lookup(h)
	if !ok {
		return Metadata{}, ErrMissing
	}
	size := uint64(entry.DataLen)
	if entry.Kind == model.KindCompressed {
		size = uint64(entry.DecompSize)
	}
	return Metadata{DecompSize: size, Kind: entry.Kind}, nil
}

// GetFileContents returns the decompressed bytes of a file: a zero-copy
// mmap slice for Raw entries, a cached-or-decompressed buffer for
// Compressed entries. Fails ErrNotAFile for directories, ErrMissing
// otherwise (spec.md §4.1).
func (r *Reader) GetFileContents(h Hash40) ([]byte, error) {
	h = normalizeRoot(h)
	entry, ok := r.model.Lookup(h)
	if !ok {
		return nil, ErrMissing
	}
	if entry.Kind == model.KindDirectory {
		return nil, ErrNotAFile
	}
	data, err := r.fetcher.Get(h, entry)
	if err != nil {
		return nil, wrapFetchErr(err)
	}
	return data, nil
}

// ReadRange serves a clamped byte range of a file's decompressed contents,
// the operation an external FUSE `read` call ultimately needs (spec.md
// §4.5 "Range reads", §8 property 7). offset >= len(data) returns an empty
// slice, not an error; size is clamped to what remains.
func (r *Reader) ReadRange(h Hash40, offset, size int64) ([]byte, error) {
	h = normalizeRoot(h)
	entry, ok := r.model.Lookup(h)
	if !ok {
		return nil, ErrMissing
	}
	if entry.Kind == model.KindDirectory {
		return nil, ErrNotAFile
	}
	data, err := r.fetcher.Read(h, entry, offset, size)
	if err != nil {
		return nil, wrapFetchErr(err)
	}
	return data, nil
}

func wrapFetchErr(err error) error {
	if ce, ok := err.(*fetch.CorruptError); ok {
		return &CorruptError{Detail: ce.Detail}
	}
	if ce, ok := err.(*mmapview.CorruptError); ok {
		return &CorruptError{Detail: ce.Detail, Offset: ce.Offset}
	}
	return &CorruptError{Detail: err.Error()}
}
