package binfmt

import "encoding/binary"

// QuickDirSize, StreamEntrySize, and DirectoryOffsetsSize are the packed,
// non-natively-aligned record sizes from spec.md §3. Because these records
// mix bit widths (24-bit fields) or straddle Go's natural alignment
// (DirectoryOffsets is 28 bytes, one word short of the 32 Go would assign a
// straight struct), they are decoded lazily from a raw byte run rather than
// projected as Go structs — see internal/mmapview for the struct-projection
// path used by every other table.
const (
	QuickDirSize         = 12
	StreamEntrySize       = 12
	DirectoryOffsetsSize = 28
)

// QuickDirTable is a lazily-decoded window over QuickDir records: little-
// endian, MSB-0 bit numbering, {hash:u32, name_length:u8, count:u24, index:u24}.
type QuickDirTable []byte

func (t QuickDirTable) Len() int { return len(t) / QuickDirSize }

func (t QuickDirTable) At(i int) (hash uint32, nameLength uint8, count, index uint32) {
	r := t[i*QuickDirSize:]
	hash = binary.LittleEndian.Uint32(r[0:4])
	nameLength = r[4]
	count = uint32(r[5]) | uint32(r[6])<<8 | uint32(r[7])<<16
	index = uint32(r[8]) | uint32(r[9])<<8 | uint32(r[10])<<16
	return
}

// StreamEntryTable is a lazily-decoded window over StreamEntry records:
// {hash:u32, name_length:u8, index:u24, flags:u32}.
type StreamEntryTable []byte

func (t StreamEntryTable) Len() int { return len(t) / StreamEntrySize }

func (t StreamEntryTable) At(i int) (hash uint32, nameLength uint8, index, flags uint32) {
	r := t[i*StreamEntrySize:]
	hash = binary.LittleEndian.Uint32(r[0:4])
	nameLength = r[4]
	index = uint32(r[5]) | uint32(r[6])<<8 | uint32(r[7])<<16
	flags = binary.LittleEndian.Uint32(r[8:12])
	return
}

// DirectoryOffsetsTable is a lazily-decoded window over 28-byte
// DirectoryOffsets records: {offset:u64, decomp_size:u32, size:u32,
// sub_data_start_index:u32, sub_data_count:u32, resource_index:u32}.
type DirectoryOffsetsTable []byte

func (t DirectoryOffsetsTable) Len() int { return len(t) / DirectoryOffsetsSize }

type DirectoryOffsets struct {
	Offset            uint64
	DecompSize        uint32
	Size              uint32
	SubDataStartIndex uint32
	SubDataCount      uint32
	ResourceIndex     uint32
}

func (t DirectoryOffsetsTable) At(i int) DirectoryOffsets {
	r := t[i*DirectoryOffsetsSize:]
	return DirectoryOffsets{
		Offset:            binary.LittleEndian.Uint64(r[0:8]),
		DecompSize:        binary.LittleEndian.Uint32(r[8:12]),
		Size:              binary.LittleEndian.Uint32(r[12:16]),
		SubDataStartIndex: binary.LittleEndian.Uint32(r[16:20]),
		SubDataCount:      binary.LittleEndian.Uint32(r[20:24]),
		ResourceIndex:     binary.LittleEndian.Uint32(r[24:28]),
	}
}
