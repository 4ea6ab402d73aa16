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

import "testing"

func TestHashProgram_SameOpsSameHash(t *testing.T) {
	a, _ := Translate([]byte("+++>>--"))
	b, _ := Translate([]byte("+++>>--"))
	if HashProgram(a) != HashProgram(b) {
		t.Fatalf("identical programs hashed differently")
	}
}

func TestHashProgram_DifferentOpsDifferentHash(t *testing.T) {
	a, _ := Translate([]byte("+++"))
	b, _ := Translate([]byte("++"))
	if HashProgram(a) == HashProgram(b) {
		t.Fatalf("different programs collided (argument must affect the hash)")
	}
}

func TestJITCache_GetMissOnEmptyCache(t *testing.T) {
	cache := NewJITCache(4)
	if _, ok := cache.Get(12345); ok {
		t.Fatalf("expected a miss on an empty cache")
	}
}

func TestJITCache_PutThenGet(t *testing.T) {
	cache := NewJITCache(4)
	program, _ := Translate([]byte("+++"))
	cp, err := CompileProgram(program)
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	hash := HashProgram(program)
	cache.Put(hash, cp)

	got, ok := cache.Get(hash)
	if !ok || got != cp {
		t.Fatalf("expected to retrieve the stored entry, got %v, %v", got, ok)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected Len() == 1, got %d", cache.Len())
	}
}

func TestJITCache_EvictsOldestWhenFull(t *testing.T) {
	cache := NewJITCache(2)

	progs := make([]*CompiledProgram, 3)
	hashes := make([]uint64, 3)
	for i, src := range []string{"+", "++", "+++"} {
		program, _ := Translate([]byte(src))
		cp, err := CompileProgram(program)
		if err != nil {
			t.Fatalf("CompileProgram(%q): %v", src, err)
		}
		progs[i] = cp
		hashes[i] = HashProgram(program)
		cache.Put(hashes[i], cp)
	}

	if cache.Len() != 2 {
		t.Fatalf("expected the cache to stay at its limit of 2, got %d", cache.Len())
	}
	if _, ok := cache.Get(hashes[0]); ok {
		t.Fatalf("expected the first entry to have been evicted")
	}
	if _, ok := cache.Get(hashes[1]); !ok {
		t.Fatalf("expected the second entry to still be cached")
	}
	if _, ok := cache.Get(hashes[2]); !ok {
		t.Fatalf("expected the third entry to still be cached")
	}
}

func TestJITCache_PutIgnoresDuplicateHash(t *testing.T) {
	cache := NewJITCache(4)
	program, _ := Translate([]byte("+++"))
	hash := HashProgram(program)

	cp1, _ := CompileProgram(program)
	cache.Put(hash, cp1)
	cp2, _ := CompileProgram(program)
	cache.Put(hash, cp2)

	got, ok := cache.Get(hash)
	if !ok {
		t.Fatalf("expected entry to remain cached")
	}
	if got != cp1 {
		t.Fatalf("expected the first stored program to win on duplicate Put")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected Len() == 1 after a duplicate Put, got %d", cache.Len())
	}
}

func TestCompileCached_ReusesCompilation(t *testing.T) {
	cache := NewJITCache(4)
	program, _ := Translate([]byte("+++>>--"))

	first, err := CompileCached(cache, program)
	if err != nil {
		t.Fatalf("CompileCached: %v", err)
	}
	second, err := CompileCached(cache, program)
	if err != nil {
		t.Fatalf("CompileCached: %v", err)
	}
	if first != second {
		t.Fatalf("expected the second call to reuse the first compilation")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected exactly one cache entry, got %d", cache.Len())
	}
}
