// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package hash40 implements the ARC archive's 40-bit content identifier
// and the label store that resolves such identifiers back to human paths.
package hash40

import (
	"fmt"
	"hash/crc32"
)

// Hash40 is a 40-bit content identifier: the low 32 bits are a CRC-32
// (IEEE polynomial) of the path string, and the next 8 bits are the
// byte length of that string. The top 24 bits are always zero.
type Hash40 uint64

// Root is the reserved hash-40 of the empty path, the archive's root directory.
const Root Hash40 = 0

// New computes the hash-40 of a path string.
func New(path string) Hash40 {
	crc := crc32.ChecksumIEEE([]byte(path))
	return Hash40(crc) | Hash40(byte(len(path)))<<32
}

// FromParts reconstructs a Hash40 from a separately stored 32-bit CRC and
// an 8-bit length, as found packed across several on-disk record layouts
// (e.g. HashIndexGroup, where the length lives in the upper byte of a
// second 32-bit field).
func FromParts(crc uint32, length uint8) Hash40 {
	return Hash40(crc) | Hash40(length)<<32
}

// CRC32 returns the lower 32 bits (the CRC-32 of the original path).
func (h Hash40) CRC32() uint32 { return uint32(h) }

// Length returns the encoded path length (the original string's byte count,
// truncated to 8 bits).
func (h Hash40) Length() uint8 { return uint8(h >> 32) }

// Uint64 returns the raw 40-bit value widened to 64 bits, the representation
// that crosses the query-API boundary to the driver.
func (h Hash40) Uint64() uint64 { return uint64(h) }

func (h Hash40) String() string { return fmt.Sprintf("%#010x", uint64(h)) }
