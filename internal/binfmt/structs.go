// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package binfmt declares the ARC archive's on-disk record layouts,
// bit-exact with the file, little-endian throughout. Records whose Go
// struct layout naturally matches the packed on-disk layout (no compiler
// padding) are projected directly via internal/mmapview; records that don't
// (bitfield-packed or smaller than their natural alignment) are decoded
// lazily by hand in packed.go.
package binfmt

// Magic is the required value of ArcHeader.Magic.
const Magic uint64 = 0xABCDEF9876543210

// ArcHeader is the fixed-offset-0 archive header: six 64-bit fields.
type ArcHeader struct {
	Magic                uint64
	MusicSectionOffset   uint64 // stream/music section
	FileSectionOffset    uint64 // compressed-file section base for DirectoryOffsets
	SharedSectionOffset  uint64
	FileSystemOffset     uint64 // pointer to IndexBlobHeader
	UnknownSectionOffset uint64
}

// IndexBlobHeader precedes the zstd-compressed index blob.
type IndexBlobHeader struct {
	HeaderSize  uint32
	DecompSize  uint32
	CompSize    uint32
	SectionSize uint32
}

// StreamTableOffset is the fixed offset of StreamHeader within the
// decompressed index buffer.
const StreamTableOffset = 256

// StreamHeader precedes the streamed-file sub-tables.
type StreamHeader struct {
	QuickDirCount          uint32
	StreamHashCount        uint32
	StreamFileIndexCount   uint32
	StreamOffsetEntryCount uint32
}

// StreamOffsetEntry gives the archive-relative byte range of a streamed file.
type StreamOffsetEntry struct {
	Size   uint64
	Offset uint64
}

// FileSystemHeader is the flat run of table counts that precedes the
// compressed file-system description's tables.
type FileSystemHeader struct {
	TableFileSize         uint32
	FileInfoPathCount     uint32
	FileInfoIndexCount    uint32
	FolderCount           uint32
	FolderOffsetCount1    uint32
	HashFolderCount       uint32
	FileInfoCount         uint32
	FileInfoSubIndexCount uint32
	SubFileCount          uint32
	FolderOffsetCount2    uint32
	SubFileCount2         uint32
	Padding               uint32
	Unk1_10               uint32
	Unk2_10               uint32
	RegionalCount1        uint8
	RegionalCount2        uint8
	Padding2              uint16
	Version               uint32
	ExtraFolder           uint32
	ExtraCount            uint32
	Unk                   [2]uint32
	ExtraCount2           uint32
	ExtraSubCount         uint32
}

// HashIndexGroup appears both as a standalone (hash -> index) table entry
// and embedded inside FileInformationPath. The upper 8 bits of Index extend
// Hash to a full hash-40 (see Hash40 below).
type HashIndexGroup struct {
	Hash  uint32
	Index uint32
}

// Hash40 reconstructs the full 40-bit identifier: the low 32 bits of Hash
// plus the top 8 bits of Index as the length byte.
func (g HashIndexGroup) Hash40() (crc uint32, length uint8) {
	return g.Hash, uint8(g.Index >> 24)
}

// IndexLow24 returns the lower 24 bits of Index, the actual table index
// once the length byte has been peeled off.
func (g HashIndexGroup) IndexLow24() uint32 {
	return g.Index & 0x00FFFFFF
}

// FileInformationPath carries the canonical path/extension/parent/filename
// hash groups for one file-info entry.
type FileInformationPath struct {
	Path     HashIndexGroup
	Ext      HashIndexGroup
	Parent   HashIndexGroup
	FileName HashIndexGroup
}

// FileInformationIndex resolves a REDIRECT'd FileInfo to its real target.
type FileInformationIndex struct {
	DirOffsetIndex uint32
	FileInfoIndex  uint32
}

// FileInformationUnknownTable is one of the sentinel-counted unknown tables
// preceding the rest of the compressed description; never interpreted.
type FileInformationUnknownTable struct {
	SomeIndex  uint32
	SomeIndex2 uint32
}

// directoryHash40 mirrors the Rust Hash40 record embedded in DirectoryInfo:
// a 32-bit CRC, an 8-bit length, and 3 bytes of padding (8 bytes total, a
// layout that happens to match Go's natural alignment for this field mix).
type directoryHash40 struct {
	Hash    uint32
	Length  uint8
	_       [3]byte
}

func (h directoryHash40) hash40() (crc uint32, length uint8) { return h.Hash, h.Length }

// DirectoryInfo describes one directory: its name/parent (as hash-40s), and
// the ranges of file-info and child-directory entries that belong to it.
type DirectoryInfo struct {
	PathHash         uint32
	DirOffsetIndex   uint32
	Name             directoryHash40
	Parent           directoryHash40
	ExtraDisRe       uint32
	ExtraDisReLength uint32
	FileNameStartIdx uint32
	FileInfoCount    uint32
	ChildDirStartIdx uint32
	ChildDirCount    uint32
	Flags            uint32
}

// NameHash40 returns the directory's own name as a packed (crc, length) pair.
func (d DirectoryInfo) NameHash40() (uint32, uint8) { return d.Name.hash40() }

// ParentHash40 returns the parent directory's (crc, length) pair.
func (d DirectoryInfo) ParentHash40() (uint32, uint8) { return d.Parent.hash40() }

// FileInfo is an entry in the compressed-file description; Flags&ReDirect
// indicates the real target lives elsewhere (see FileInformationIndex).
type FileInfo struct {
	PathIndex     uint32
	IndexIndex    uint32
	SubIndexIndex uint32
	Flags         uint32
}

// Redirect is the FileInfo.Flags bit indicating the entry's real target
// must be followed through FileInformationIndex.
const Redirect = 0x10

// FileInfoSubIndex links a FileInfo to its SubFileInfo and DirectoryOffsets.
type FileInfoSubIndex struct {
	FolderOffsetIndex     uint32
	SubFileIndex          uint32
	FileInfoIndexAndFlag  uint32
}

// SubFileInfo gives a compressed file's offset (in 4-byte units relative to
// its directory's base), compressed size, and decompressed size.
type SubFileInfo struct {
	Offset     uint32
	CompSize   uint32
	DecompSize uint32
	Flags      uint32
}
