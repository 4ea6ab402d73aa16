/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package vm

import (
	"hash/fnv"
	"sync"

	"github.com/google/btree"
)

// jitCacheEntry pairs a translated program's content hash with its compiled
// native code, so the same program submitted twice to the playground's
// jit backend reuses the earlier compilation instead of re-encoding.
type jitCacheEntry struct {
	hash    uint64
	program *CompiledProgram
}

func jitCacheLess(a, b jitCacheEntry) bool {
	return a.hash < b.hash
}

// JITCache memoizes CompileProgram results keyed by a hash of the source
// program, ordered in a btree the way the storage layer orders its delta
// index, so lookups and evictions are both O(log n) without a full map scan
// to find the oldest entry.
type JITCache struct {
	mu      sync.Mutex
	entries *btree.BTreeG[jitCacheEntry]
	order   []uint64 // insertion order, for FIFO eviction
	limit   int
}

// NewJITCache creates a cache that holds at most limit compiled programs.
// Once full, the oldest entry is released and evicted to make room, since a
// CompiledProgram holds an mmap'd RX code page that must be explicitly freed.
func NewJITCache(limit int) *JITCache {
	if limit <= 0 {
		limit = 1
	}
	return &JITCache{
		entries: btree.NewG[jitCacheEntry](8, jitCacheLess),
		limit:   limit,
	}
}

// HashProgram computes a stable cache key for a translated program. Two
// equal opcode sequences always hash equal. The cache is keyed by this hash
// alone: Get does not compare opcode sequences, so two different programs
// whose hashes collide share one cache entry.
func HashProgram(program []Op) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	for _, op := range program {
		buf[0] = byte(op.Kind)
		for i := 0; i < 8; i++ {
			buf[8+i] = byte(op.Argument >> (8 * i))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Get returns the compiled program stored under hash, if any.
func (c *JITCache) Get(hash uint64) (*CompiledProgram, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries.Get(jitCacheEntry{hash: hash})
	if !ok {
		return nil, false
	}
	return entry.program, true
}

// Put stores a compiled program under hash, evicting the oldest entry first
// if the cache is already at its limit.
func (c *JITCache) Put(hash uint64, program *CompiledProgram) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries.Get(jitCacheEntry{hash: hash}); exists {
		return
	}
	for len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		if old, ok := c.entries.Delete(jitCacheEntry{hash: oldest}); ok {
			old.program.Release()
		}
	}
	c.entries.ReplaceOrInsert(jitCacheEntry{hash: hash, program: program})
	c.order = append(c.order, hash)
}

// Len reports how many compiled programs are currently cached.
func (c *JITCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// CompileCached compiles program, reusing a previous compilation from cache
// when the opcode sequence is identical.
func CompileCached(cache *JITCache, program []Op) (*CompiledProgram, *Error) {
	hash := HashProgram(program)
	if cp, ok := cache.Get(hash); ok {
		return cp, nil
	}
	cp, err := CompileProgram(program)
	if err != nil {
		return nil, err
	}
	cache.Put(hash, cp)
	return cp, nil
}
