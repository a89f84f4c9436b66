// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package model builds and holds the in-memory filesystem model from
// spec.md §3 ("In-memory filesystem model"): the resolved (hash -> metadata)
// and (hash -> directory listing) maps the query API is served from. Build
// runs exactly once per open; the resulting Model is immutable thereafter.
package model

import (
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ultimate-research/arcfs/internal/binfmt"
	"github.com/ultimate-research/arcfs/internal/hash40"
	"github.com/ultimate-research/arcfs/internal/index"
	"github.com/ultimate-research/arcfs/internal/mmapview"
)

// Kind distinguishes the three FileEntry shapes from spec.md §3.
type Kind int

const (
	KindDirectory Kind = iota
	KindRaw
	KindCompressed
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRaw:
		return "raw"
	case KindCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// FileEntry is one node of the model: a directory, a raw (uncompressed)
// stream file, or a zstd-compressed file.
type FileEntry struct {
	Kind Kind

	// Raw and Compressed: the archive-absolute byte range backing the entry.
	DataOffset int
	DataLen    int

	// Raw: flags carried on the StreamEntry record.
	RawFlags uint32

	// Compressed: the decompressed size, and whether CompSize==DecompSize
	// (meaning the slice can be served as-is, no decode needed).
	DecompSize int64
	Stored     bool // true when comp_size == decomp_size (spec §4.5 step 7)
}

// Model is the frozen, built-once filesystem: names, directory adjacency,
// entries, and last-path-component stems, keyed throughout by Hash40.
type Model struct {
	mu          sync.RWMutex // held during Build; read-only (RLock) once Ready
	names       map[hash40.Hash40]string
	dirChildren map[hash40.Hash40]map[hash40.Hash40]struct{}
	files       map[hash40.Hash40]FileEntry
	stems       map[hash40.Hash40]string
}

// DirEntry is one child in a directory listing (spec.md §4.1 get_dir_listing).
type DirEntry struct {
	Hash hash40.Hash40
	Kind Kind
	Stem string
}

func newModel() *Model {
	return &Model{
		names:       make(map[hash40.Hash40]string),
		dirChildren: make(map[hash40.Hash40]map[hash40.Hash40]struct{}),
		files:       make(map[hash40.Hash40]FileEntry),
		stems:       make(map[hash40.Hash40]string),
	}
}

// Build resolves the streamed and compressed tables into a Model, cross
// referencing the external label store for every path. Implements spec.md
// §4.4 in full: label ingestion (delegated to the already-loaded labels),
// stream-file resolution, compressed-file resolution (including REDIRECT),
// and the duplicate/conflict tie-break rules.
func Build(t *index.Tables, archive *mmapview.View, labels *hash40.LabelStore) (*Model, error) {
	m := newModel()
	m.ensureRoot()

	var eg errgroup.Group
	eg.Go(func() error { m.resolveStreamEntries(t, labels); return nil })
	eg.Go(func() error { m.resolveCompressedEntries(t, archive, labels); return nil })
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) ensureRoot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[hash40.Root] = FileEntry{Kind: KindDirectory}
	m.stems[hash40.Root] = ""
	m.names[hash40.Root] = ""
	if _, ok := m.dirChildren[hash40.Root]; !ok {
		m.dirChildren[hash40.Root] = make(map[hash40.Hash40]struct{})
	}
}

// ensureDir materializes a directory and every proper ancestor named by
// splitting fullPath on "/", linking each into its parent's dirChildren.
// An existing directory under the same hash is kept (first writer wins); an
// existing non-directory entry under that hash is replaced by the directory
// (spec §4.4 "Tie-breaks").
func (m *Model) ensureDir(fullPath string) hash40.Hash40 {
	if fullPath == "" {
		return hash40.Root
	}
	h := hash40.New(fullPath)

	m.mu.Lock()
	if _, ok := m.dirChildren[h]; ok {
		m.mu.Unlock()
		return h
	}
	if existing, ok := m.files[h]; ok && existing.Kind != KindDirectory {
		slog.Warn("directoryFileConflict", "path", fullPath, "hash", h)
	}
	m.files[h] = FileEntry{Kind: KindDirectory}
	m.dirChildren[h] = make(map[hash40.Hash40]struct{})
	stem := fullPath
	if i := lastSlash(fullPath); i >= 0 {
		stem = fullPath[i+1:]
	}
	m.stems[h] = stem
	m.names[h] = fullPath
	m.mu.Unlock()

	parent := parentOf(fullPath)
	parentHash := m.ensureDir(parent)
	m.link(parentHash, h)
	return h
}

// link adds child as an entry of directory parent, one lock per edge (§5
// "keep critical sections tiny, one entry per lock").
func (m *Model) link(parent, child hash40.Hash40) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.dirChildren[parent]
	if !ok {
		set = make(map[hash40.Hash40]struct{})
		m.dirChildren[parent] = set
	}
	set[child] = struct{}{}
}

// addFile inserts a leaf FileEntry for fullPath, first-writer-wins on hash
// collision, and links it into its parent directory.
func (m *Model) addFile(fullPath string, entry FileEntry) {
	h := hash40.New(fullPath)

	m.mu.Lock()
	if existing, ok := m.files[h]; ok {
		if existing.Kind == KindDirectory {
			slog.Warn("directoryFileConflict", "path", fullPath, "hash", h)
			m.mu.Unlock()
			return
		}
		slog.Warn("hash40Duplicate", "path", fullPath, "hash", h)
		m.mu.Unlock()
		return
	}
	m.files[h] = entry
	stem := fullPath
	if i := lastSlash(fullPath); i >= 0 {
		stem = fullPath[i+1:]
	}
	m.stems[h] = stem
	m.names[h] = fullPath
	m.mu.Unlock()

	parentHash := m.ensureDir(parentOf(fullPath))
	m.link(parentHash, h)
}

func parentOf(path string) string {
	if i := lastSlash(path); i >= 0 {
		return path[:i]
	}
	return ""
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}

// resolveStreamEntries implements spec.md §4.4 "Stream-file resolution".
func (m *Model) resolveStreamEntries(t *index.Tables, labels *hash40.LabelStore) {
	for i := 0; i < t.StreamEntries.Len(); i++ {
		crc, nameLen, idx, flags := t.StreamEntries.At(i)
		h := hash40.FromParts(crc, nameLen)

		path, ok := labels.Get(h)
		if !ok {
			slog.Warn("missingLabel", "hash", h, "kind", "stream")
			continue
		}

		if int(idx) >= len(t.StreamFileIndices) {
			slog.Warn("streamIndexOutOfRange", "hash", h, "index", idx)
			continue
		}
		fileIdx := t.StreamFileIndices[idx]
		if int(fileIdx) >= len(t.StreamOffsetEntries) {
			slog.Warn("streamOffsetOutOfRange", "hash", h, "index", fileIdx)
			continue
		}
		off := t.StreamOffsetEntries[fileIdx]

		m.addFile(path, FileEntry{
			Kind:       KindRaw,
			DataOffset: int(off.Offset),
			DataLen:    int(off.Size),
			RawFlags:   flags,
		})
	}
}

// resolveCompressedEntries implements spec.md §4.4 "Compressed-file
// resolution", steps 1-8, including REDIRECT follow-through.
func (m *Model) resolveCompressedEntries(t *index.Tables, archive *mmapview.View, labels *hash40.LabelStore) {
	for i := range t.FileInfos {
		fi := t.FileInfos[i]

		if int(fi.PathIndex) >= len(t.FileInfoPaths) {
			slog.Warn("fileInfoPathOutOfRange", "index", fi.PathIndex)
			continue
		}
		pathGroup := t.FileInfoPaths[fi.PathIndex].Path
		crc, nameLen := pathGroup.Hash40()
		h := hash40.FromParts(crc, nameLen)

		path, ok := labels.Get(h)
		if !ok {
			slog.Warn("missingLabel", "hash", h, "kind", "compressed")
			continue
		}

		if fi.Flags&binfmt.Redirect != 0 {
			if int(fi.IndexIndex) >= len(t.FileInfoIndices) {
				slog.Warn("redirectIndexOutOfRange", "hash", h)
				continue
			}
			target := t.FileInfoIndices[fi.IndexIndex].FileInfoIndex
			if int(target) >= len(t.FileInfos) {
				slog.Warn("redirectTargetOutOfRange", "hash", h)
				continue
			}
			fi = t.FileInfos[target]
		}

		if int(fi.SubIndexIndex) >= len(t.FileInfoSubIndex) {
			slog.Warn("subIndexOutOfRange", "hash", h)
			continue
		}
		subIdx := t.FileInfoSubIndex[fi.SubIndexIndex]

		if int(subIdx.SubFileIndex) >= len(t.SubFileInfo) {
			slog.Warn("subFileOutOfRange", "hash", h)
			continue
		}
		sub := t.SubFileInfo[subIdx.SubFileIndex]

		if int(subIdx.FolderOffsetIndex) >= t.DirOffsets.Len() {
			slog.Warn("folderOffsetOutOfRange", "hash", h)
			continue
		}
		dirOff := t.DirOffsets.At(int(subIdx.FolderOffsetIndex))

		start := int(t.Header.FileSectionOffset) + int(dirOff.Offset) + int(sub.Offset)<<2
		length := int(sub.CompSize)

		m.addFile(path, FileEntry{
			Kind:       KindCompressed,
			DataOffset: start,
			DataLen:    length,
			DecompSize: int64(sub.DecompSize),
			Stored:     sub.CompSize == sub.DecompSize,
		})
	}
}

// GetName resolves a hash-40 to its label, if known (spec.md §4.1).
func (m *Model) GetName(h hash40.Hash40) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.names[h]
	return n, ok
}

// GetDirListing returns the immediate children of a directory, sorted by
// stem for deterministic readdir output. Returns ok=false if h is not a
// directory in the model (spec.md §4.1).
func (m *Model) GetDirListing(h hash40.Hash40) ([]DirEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.files[h]
	if !ok || entry.Kind != KindDirectory {
		return nil, false
	}
	children := m.dirChildren[h]
	out := make([]DirEntry, 0, len(children))
	for c := range children {
		out = append(out, DirEntry{Hash: c, Kind: m.files[c].Kind, Stem: m.stems[c]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stem < out[j].Stem })
	return out, true
}

// Lookup returns the FileEntry for h, spec.md §4.1's common precursor to
// get_file_metadata/get_file_contents.
func (m *Model) Lookup(h hash40.Hash40) (FileEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.files[h]
	return e, ok
}

// Stem returns the last path component of h, used for readdir entries whose
// full path may not be known (stream-only paths included).
func (m *Model) Stem(h hash40.Hash40) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stems[h]
	return s, ok
}
