// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package index parses the archive's binary index: the fixed-offset
// header, the zstd-compressed file-system description, and every
// sub-table carved out of the decompressed buffer by count × record size.
// It never copies record data, only records (base offset, count) windows
// into the buffers owned by an *mmapview.View.
package index

import (
	"bytes"
	"fmt"
	"io"
	"unsafe"

	"github.com/klauspost/compress/zstd"

	"github.com/ultimate-research/arcfs/internal/binfmt"
	"github.com/ultimate-research/arcfs/internal/mmapview"
)

// Tables holds every table carved from the archive, as typed windows into
// the mmapview.View's two buffers. No field here owns its own memory.
type Tables struct {
	Header binfmt.ArcHeader

	QuickDir            binfmt.QuickDirTable
	StreamHashes        []uint64
	StreamEntries       binfmt.StreamEntryTable
	StreamFileIndices   []uint32
	StreamOffsetEntries []binfmt.StreamOffsetEntry

	FSHeader binfmt.FileSystemHeader

	FileInfoUnknown []binfmt.FileInformationUnknownTable
	UnkHashGroup    []binfmt.HashIndexGroup // HashIndexGroup[n0]

	FileInfoPaths   []binfmt.FileInformationPath
	FileInfoIndices []binfmt.FileInformationIndex

	DirHashGroup  []binfmt.HashIndexGroup // folder hash -> index
	DirectoryInfo []binfmt.DirectoryInfo
	DirOffsets    binfmt.DirectoryOffsetsTable
	HashFolder    []binfmt.HashIndexGroup

	FileInfos        []binfmt.FileInfo
	FileInfoSubIndex []binfmt.FileInfoSubIndex
	SubFileInfo      []binfmt.SubFileInfo

	// fsStart is the index-relative offset of FileSystemHeader, computed at
	// the end of parseStreamTables and consumed by parseFileSystemTables.
	fsStart int
}

// Parse walks the archive header, decompresses the file-system description,
// and carves every table listed in spec.md §3, in strict order.
func Parse(v *mmapview.View) (*Tables, error) {
	header, err := mmapview.ArchiveRecord[binfmt.ArcHeader](v, 0)
	if err != nil {
		return nil, fmt.Errorf("reading archive header: %w", err)
	}
	if header.Magic != binfmt.Magic {
		return nil, &mmapview.CorruptError{Detail: "bad magic", Offset: 0}
	}

	indexBuf, err := decompressIndex(v, header)
	if err != nil {
		return nil, err
	}
	v.SetIndex(indexBuf)

	t := &Tables{Header: header}
	if err := t.parseStreamTables(v); err != nil {
		return nil, err
	}
	if err := t.parseFileSystemTables(v); err != nil {
		return nil, err
	}
	return t, nil
}

func decompressIndex(v *mmapview.View, header binfmt.ArcHeader) ([]byte, error) {
	blobHeader, err := mmapview.ArchiveRecord[binfmt.IndexBlobHeader](v, int(header.FileSystemOffset))
	if err != nil {
		return nil, fmt.Errorf("reading index blob header: %w", err)
	}

	compStart := int(header.FileSystemOffset) + int(blobHeader.HeaderSize)
	compressed, err := v.ArchiveBytes(compStart, int(blobHeader.CompSize))
	if err != nil {
		return nil, fmt.Errorf("reading compressed index: %w", err)
	}

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &mmapview.CorruptError{Detail: "index decode", Offset: compStart}
	}
	defer dec.Close()

	out := make([]byte, 0, blobHeader.DecompSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, dec); err != nil {
		return nil, &mmapview.CorruptError{Detail: "index decode", Offset: compStart}
	}
	return buf.Bytes(), nil
}

// runningOffset tracks "base[i+1] = base[i] + count[i]*sizeof(record[i])"
// through a sequence of table carves against a single buffer.
type runningOffset struct {
	v      *mmapview.View
	offset int
}

func (t *Tables) parseStreamTables(v *mmapview.View) error {
	ro := runningOffset{v: v, offset: binfmt.StreamTableOffset}

	sh, err := carveRecord[binfmt.StreamHeader](&ro)
	if err != nil {
		return fmt.Errorf("reading stream header: %w", err)
	}

	quickDirRaw, err := carveRaw(&ro, int(sh.QuickDirCount)*binfmt.QuickDirSize)
	if err != nil {
		return fmt.Errorf("carving quick-dir table: %w", err)
	}
	t.QuickDir = binfmt.QuickDirTable(quickDirRaw)

	t.StreamHashes, err = carveSlice[uint64](&ro, int(sh.StreamHashCount))
	if err != nil {
		return fmt.Errorf("carving stream hashes: %w", err)
	}

	streamEntryRaw, err := carveRaw(&ro, int(sh.StreamHashCount)*binfmt.StreamEntrySize)
	if err != nil {
		return fmt.Errorf("carving stream entries: %w", err)
	}
	t.StreamEntries = binfmt.StreamEntryTable(streamEntryRaw)

	t.StreamFileIndices, err = carveSlice[uint32](&ro, int(sh.StreamFileIndexCount))
	if err != nil {
		return fmt.Errorf("carving stream file indices: %w", err)
	}

	t.StreamOffsetEntries, err = carveSlice[binfmt.StreamOffsetEntry](&ro, int(sh.StreamOffsetEntryCount))
	if err != nil {
		return fmt.Errorf("carving stream offset entries: %w", err)
	}

	t.fsStart = ro.offset
	return nil
}

func (t *Tables) parseFileSystemTables(v *mmapview.View) error {
	ro := runningOffset{v: v, offset: t.fsStart}

	fsh, err := carveRecord[binfmt.FileSystemHeader](&ro)
	if err != nil {
		return fmt.Errorf("reading file-system header: %w", err)
	}
	t.FSHeader = fsh

	unkCounts, err := carveSlice[uint32](&ro, 2)
	if err != nil {
		return fmt.Errorf("reading unk_counts: %w", err)
	}
	n0, n1 := unkCounts[0], unkCounts[1]

	if t.FileInfoUnknown, err = carveSlice[binfmt.FileInformationUnknownTable](&ro, int(n1)); err != nil {
		return fmt.Errorf("carving file-information-unknown table: %w", err)
	}
	if t.UnkHashGroup, err = carveSlice[binfmt.HashIndexGroup](&ro, int(n0)); err != nil {
		return fmt.Errorf("carving unk hash-index group: %w", err)
	}
	if t.FileInfoPaths, err = carveSlice[binfmt.FileInformationPath](&ro, int(fsh.FileInfoPathCount)); err != nil {
		return fmt.Errorf("carving file-information paths: %w", err)
	}
	if t.FileInfoIndices, err = carveSlice[binfmt.FileInformationIndex](&ro, int(fsh.FileInfoIndexCount)); err != nil {
		return fmt.Errorf("carving file-information indices: %w", err)
	}
	if t.DirHashGroup, err = carveSlice[binfmt.HashIndexGroup](&ro, int(fsh.FolderCount)); err != nil {
		return fmt.Errorf("carving directory hash-index group: %w", err)
	}
	if t.DirectoryInfo, err = carveSlice[binfmt.DirectoryInfo](&ro, int(fsh.FolderCount)); err != nil {
		return fmt.Errorf("carving directory info: %w", err)
	}

	dirOffsetCount := int(fsh.FolderOffsetCount1) + int(fsh.FolderOffsetCount2) + int(fsh.ExtraFolder)
	dirOffsetsRaw, err := carveRaw(&ro, dirOffsetCount*binfmt.DirectoryOffsetsSize)
	if err != nil {
		return fmt.Errorf("carving directory offsets: %w", err)
	}
	t.DirOffsets = binfmt.DirectoryOffsetsTable(dirOffsetsRaw)

	if t.HashFolder, err = carveSlice[binfmt.HashIndexGroup](&ro, int(fsh.HashFolderCount)); err != nil {
		return fmt.Errorf("carving hash-folder group: %w", err)
	}

	fileInfoCount := int(fsh.FileInfoCount) + int(fsh.SubFileCount2) + int(fsh.ExtraCount)
	if t.FileInfos, err = carveSlice[binfmt.FileInfo](&ro, fileInfoCount); err != nil {
		return fmt.Errorf("carving file infos: %w", err)
	}

	subIndexCount := int(fsh.FileInfoSubIndexCount) + int(fsh.SubFileCount2) + int(fsh.ExtraCount2)
	if t.FileInfoSubIndex, err = carveSlice[binfmt.FileInfoSubIndex](&ro, subIndexCount); err != nil {
		return fmt.Errorf("carving file-info sub-indices: %w", err)
	}

	subFileCount := int(fsh.SubFileCount) + int(fsh.SubFileCount2) + int(fsh.ExtraCount)
	if t.SubFileInfo, err = carveSlice[binfmt.SubFileInfo](&ro, subFileCount); err != nil {
		return fmt.Errorf("carving sub-file infos: %w", err)
	}

	return nil
}

func recordSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func carveRecord[T any](ro *runningOffset) (T, error) {
	rec, err := mmapview.IndexRecord[T](ro.v, ro.offset)
	if err != nil {
		var zero T
		return zero, err
	}
	ro.offset += recordSize[T]()
	return rec, nil
}

func carveSlice[T any](ro *runningOffset, n int) ([]T, error) {
	s, err := mmapview.IndexSlice[T](ro.v, ro.offset, n)
	if err != nil {
		return nil, err
	}
	ro.offset += n * recordSize[T]()
	return s, nil
}

func carveRaw(ro *runningOffset, n int) ([]byte, error) {
	b, err := ro.v.IndexBytes(ro.offset, n)
	if err != nil {
		return nil, err
	}
	ro.offset += n
	return b, nil
}
