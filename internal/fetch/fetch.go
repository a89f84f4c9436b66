// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package fetch serves file bytes for the model built by internal/model:
// a zero-copy slice for Raw entries, and a cached-or-freshly-decompressed
// buffer for Compressed entries (spec.md §4.5).
package fetch

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/ultimate-research/arcfs/internal/cache"
	"github.com/ultimate-research/arcfs/internal/hash40"
	"github.com/ultimate-research/arcfs/internal/mmapview"
	"github.com/ultimate-research/arcfs/internal/model"
)

// CorruptError reports a decode failure discovered at query time (spec.md §7
// class 3). It does not poison the reader: other queries continue to work.
type CorruptError struct {
	Detail string
}

func (e *CorruptError) Error() string { return fmt.Sprintf("corrupt: %s", e.Detail) }

// Fetcher serves decompressed file contents, backed by a bounded LRU cache
// of decompressed Compressed-entry buffers (the only mutable runtime
// structure in the reader, per spec.md §5).
type Fetcher struct {
	archive *mmapview.View
	cache   *cache.Cache
}

// New returns a Fetcher with the given cache capacity (0 means spec.md's
// default of 50 entries).
func New(archive *mmapview.View, capacity int) *Fetcher {
	return &Fetcher{archive: archive, cache: cache.New(capacity)}
}

// Get returns the full decompressed contents of entry, identified by h for
// cache-keying purposes.
func (f *Fetcher) Get(h hash40.Hash40, entry model.FileEntry) ([]byte, error) {
	switch entry.Kind {
	case model.KindRaw:
		return f.archive.ArchiveBytes(entry.DataOffset, entry.DataLen)

	case model.KindCompressed:
		raw, err := f.archive.ArchiveBytes(entry.DataOffset, entry.DataLen)
		if err != nil {
			return nil, err
		}
		if entry.Stored {
			// comp_size == decomp_size: no decode needed (spec §4.5 step 7).
			return raw, nil
		}
		if buf, ok := f.cache.Get(h); ok {
			return buf, nil
		}
		buf, err := decompress(raw, entry.DecompSize)
		if err != nil {
			return nil, err
		}
		f.cache.Add(h, buf)
		return buf, nil

	default:
		return nil, fmt.Errorf("fetch: entry kind %v has no contents", entry.Kind)
	}
}

// Read applies the range-read clamp from spec.md §4.5 and §8 property 7:
// end = min(offset+size, len(data)); an offset at or past EOF returns an
// empty slice, never an error.
func (f *Fetcher) Read(h hash40.Hash40, entry model.FileEntry, offset, size int64) ([]byte, error) {
	data, err := f.Get(h, entry)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(data)) {
		return nil, nil
	}
	end := offset + size
	if end > int64(len(data)) || end < offset {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

func decompress(compressed []byte, decompSize int64) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &CorruptError{Detail: "zstd"}
	}
	defer dec.Close()

	out := make([]byte, 0, decompSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, dec); err != nil {
		return nil, &CorruptError{Detail: "zstd"}
	}
	return buf.Bytes(), nil
}
