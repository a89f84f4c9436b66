// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package arctest builds minimal, bit-exact synthetic ARC archives in
// memory for use by tests in other packages (internal/index, internal/model,
// and the root arcfs package's end-to-end tests). It exists so none of those
// test suites needs a checked-in binary fixture file, matching the teacher's
// preference for Go-constructed fixtures over binary blobs.
package arctest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"

	"github.com/ultimate-research/arcfs/internal/binfmt"
)

// StreamFile describes one raw (uncompressed) entry to embed.
type StreamFile struct {
	Path  string
	Data  []byte
	Flags uint32
}

// CompressedFile describes one zstd-compressed entry to embed. Data is the
// decompressed content; Builder compresses it when laying out the archive.
type CompressedFile struct {
	Path string
	Data []byte
}

// Builder accumulates entries and produces a complete archive byte buffer.
type Builder struct {
	Streams     []StreamFile
	Compressed  []CompressedFile
	Labels      []string // extra label-only paths (directories with no direct entry)
}

// Build lays out a full archive: header, stream payloads, compressed
// payloads, and the zstd-compressed index blob, bit-exact with spec.md §3.
// It returns the archive bytes and a label-file (plain-line) rendering of
// every path referenced, ready to feed to hash40.LabelStore.Load.
func (b *Builder) Build() (archive []byte, labelFile string, err error) {
	var buf bytes.Buffer

	// Reserve space for the ArcHeader; filled in once every offset is known.
	headerOff := buf.Len()
	buf.Write(make([]byte, 48))

	// Stream payloads, recorded at their absolute archive offset.
	streamOffsets := make([]binfmt.StreamOffsetEntry, len(b.Streams))
	for i, sf := range b.Streams {
		off := buf.Len()
		buf.Write(sf.Data)
		streamOffsets[i] = binfmt.StreamOffsetEntry{Offset: uint64(off), Size: uint64(len(sf.Data))}
	}

	// Compressed payloads, 4-byte aligned, recorded relative to fileSectionOffset.
	fileSectionOffset := buf.Len()
	subFiles := make([]binfmt.SubFileInfo, len(b.Compressed))
	for i, cf := range b.Compressed {
		for (buf.Len()-fileSectionOffset)%4 != 0 {
			buf.WriteByte(0)
		}
		rel := buf.Len() - fileSectionOffset

		comp, cerr := zstdCompress(cf.Data)
		if cerr != nil {
			return nil, "", cerr
		}
		buf.Write(comp)

		subFiles[i] = binfmt.SubFileInfo{
			Offset:     uint32(rel / 4),
			CompSize:   uint32(len(comp)),
			DecompSize: uint32(len(cf.Data)),
		}
	}

	fileSystemOffset := buf.Len()

	indexBlob, ierr := b.buildIndexBlob(streamOffsets, subFiles)
	if ierr != nil {
		return nil, "", ierr
	}
	compBlob, cerr := zstdCompress(indexBlob)
	if cerr != nil {
		return nil, "", cerr
	}

	blobHeader := binfmt.IndexBlobHeader{
		HeaderSize:  16,
		DecompSize:  uint32(len(indexBlob)),
		CompSize:    uint32(len(compBlob)),
		SectionSize: uint32(16 + len(compBlob)),
	}
	mustWrite(&buf, blobHeader)
	buf.Write(compBlob)

	archive = buf.Bytes()

	header := binfmt.ArcHeader{
		Magic:                binfmt.Magic,
		MusicSectionOffset:   0,
		FileSectionOffset:    uint64(fileSectionOffset),
		SharedSectionOffset:  0,
		FileSystemOffset:     uint64(fileSystemOffset),
		UnknownSectionOffset: 0,
	}
	headerBuf := &bytes.Buffer{}
	mustWrite(headerBuf, header)
	copy(archive[headerOff:], headerBuf.Bytes())

	return archive, b.renderLabels(), nil
}

func (b *Builder) renderLabels() string {
	var sb bytes.Buffer
	for _, sf := range b.Streams {
		sb.WriteString(sf.Path)
		sb.WriteByte('\n')
	}
	for _, cf := range b.Compressed {
		sb.WriteString(cf.Path)
		sb.WriteByte('\n')
	}
	for _, p := range b.Labels {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// buildIndexBlob produces the full decompressed index buffer: 256 bytes of
// padding, the streamed-entry tables, then the compressed file-system
// description tables, in the strict order from spec.md §3.
func (b *Builder) buildIndexBlob(streamOffsets []binfmt.StreamOffsetEntry, subFiles []binfmt.SubFileInfo) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, binfmt.StreamTableOffset))

	n := len(b.Streams)
	sh := binfmt.StreamHeader{
		QuickDirCount:          0,
		StreamHashCount:        uint32(n),
		StreamFileIndexCount:   uint32(n),
		StreamOffsetEntryCount: uint32(n),
	}
	mustWrite(&buf, sh)

	// QuickDir: none.
	// stream_hashes: unused downstream; zero-filled.
	for i := 0; i < n; i++ {
		mustWrite(&buf, uint64(0))
	}
	// StreamEntry[stream_hash_count]
	for i, sf := range b.Streams {
		crc := crc32.ChecksumIEEE([]byte(sf.Path))
		writePackedStreamEntry(&buf, crc, uint8(len(sf.Path)), uint32(i), sf.Flags)
	}
	// stream_file_indices: identity mapping.
	for i := 0; i < n; i++ {
		mustWrite(&buf, uint32(i))
	}
	// StreamOffsetEntry[stream_offset_entry_count]
	for _, so := range streamOffsets {
		mustWrite(&buf, so)
	}

	m := len(b.Compressed)
	fsh := binfmt.FileSystemHeader{
		FileInfoPathCount:     uint32(m),
		FileInfoIndexCount:    0,
		FolderCount:           0,
		FolderOffsetCount1:    1,
		HashFolderCount:       0,
		FileInfoCount:         uint32(m),
		FileInfoSubIndexCount: uint32(m),
		SubFileCount:          uint32(m),
		FolderOffsetCount2:    0,
		SubFileCount2:         0,
		Version:               2,
	}
	mustWrite(&buf, fsh)

	// unk_counts = {n0, n1}; both zero in every fixture this builder makes.
	mustWrite(&buf, uint32(0))
	mustWrite(&buf, uint32(0))
	// FileInformationUnknownTable[0], HashIndexGroup[0]: nothing to write.

	for _, cf := range b.Compressed {
		crc := crc32.ChecksumIEEE([]byte(cf.Path))
		group := binfmt.HashIndexGroup{Hash: crc, Index: uint32(len(cf.Path)) << 24}
		mustWrite(&buf, binfmt.FileInformationPath{Path: group})
	}
	// FileInformationIndex[0]: no redirects in the base fixture.
	// HashIndexGroup[folder_count=0], DirectoryInfo[folder_count=0]: nothing.

	// DirectoryOffsets[1]: a single shared base at offset 0 (fileSectionOffset
	// in the archive header already anchors every SubFileInfo.Offset).
	writePackedDirectoryOffsets(&buf, binfmt.DirectoryOffsets{})

	// HashIndexGroup[hash_folder_count=0]: nothing.

	for i := range b.Compressed {
		mustWrite(&buf, binfmt.FileInfo{PathIndex: uint32(i), IndexIndex: 0, SubIndexIndex: uint32(i), Flags: 0})
	}
	for i := range b.Compressed {
		mustWrite(&buf, binfmt.FileInfoSubIndex{FolderOffsetIndex: 0, SubFileIndex: uint32(i), FileInfoIndexAndFlag: 0})
	}
	for _, sf := range subFiles {
		mustWrite(&buf, sf)
	}

	return buf.Bytes(), nil
}

func writePackedStreamEntry(buf *bytes.Buffer, hash uint32, nameLen uint8, index, flags uint32) {
	var r [binfmt.StreamEntrySize]byte
	binary.LittleEndian.PutUint32(r[0:4], hash)
	r[4] = nameLen
	r[5] = byte(index)
	r[6] = byte(index >> 8)
	r[7] = byte(index >> 16)
	binary.LittleEndian.PutUint32(r[8:12], flags)
	buf.Write(r[:])
}

func writePackedDirectoryOffsets(buf *bytes.Buffer, d binfmt.DirectoryOffsets) {
	var r [binfmt.DirectoryOffsetsSize]byte
	binary.LittleEndian.PutUint64(r[0:8], d.Offset)
	binary.LittleEndian.PutUint32(r[8:12], d.DecompSize)
	binary.LittleEndian.PutUint32(r[12:16], d.Size)
	binary.LittleEndian.PutUint32(r[16:20], d.SubDataStartIndex)
	binary.LittleEndian.PutUint32(r[20:24], d.SubDataCount)
	binary.LittleEndian.PutUint32(r[24:28], d.ResourceIndex)
	buf.Write(r[:])
}

func mustWrite(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err) // fixed-size records only; only possible error is a bad type
	}
}

func zstdCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
