// Copyright (c) the arcfs authors
// Licensed under the MIT license

// Package cache is the bounded decompression cache from spec.md §4.5: a
// bounded (50 entries unless another capacity is given) LRU keyed by content
// hash, holding freshly
// decompressed file buffers. The LRU admission/eviction policy is the same
// TinyLFU scheme the teacher project's internal/spinner uses for its block
// cache; the only mutable state a Reader carries once Ready is this cache.
package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"

	"github.com/ultimate-research/arcfs/internal/hash40"
)

// DefaultCapacity is the LRU capacity mandated by spec.md §4.5.
const DefaultCapacity = 50

// samplesPerSlot mirrors the teacher's own sizing (tinylfu.New(n, n*10, ...)):
// the sketch needs a larger sample window than the slot count to be useful.
const samplesPerSlot = 10

// Cache is a bounded, thread-safe hash40 -> []byte cache. A single mutex
// guards the underlying TinyLFU structure; critical sections cover only the
// map get/insert, never the zstd decode that fills a miss (§5 "no locks held
// across zstd decoding").
type Cache struct {
	mu    sync.Mutex
	inner *tinylfu.T[hash40.Hash40, []byte]
}

// New returns an empty cache with the given capacity (spec.md default: 50).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		inner: tinylfu.New[hash40.Hash40, []byte](capacity, capacity*samplesPerSlot, hashKey),
	}
}

// Get returns a previously cached decompressed buffer, if present.
func (c *Cache) Get(h hash40.Hash40) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(h)
}

// Add inserts (or refreshes) a decompressed buffer under h.
func (c *Cache) Add(h hash40.Hash40, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(h, data)
}

func hashKey(h hash40.Hash40) uint64 {
	var buf [8]byte
	v := h.Uint64()
	for i := range buf {
		buf[i] = byte(v)
		v >>= 8
	}
	return xxhash.Sum64(buf[:])
}
