/*
Copyright (C) 2024  Carl-Philip Hänsch

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

import "sync"

/* threadsafe named tape snapshots, used by the REPL's :save/:load commands */

// Registry holds named tape snapshots so a REPL session can save a tape
// under a name and recall it later.
type Registry struct {
	mu      sync.RWMutex
	tapes   map[string][]byte
	pointer map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tapes:   make(map[string][]byte),
		pointer: make(map[string]int),
	}
}

// Save copies tape and stores it (with the current data pointer) under name.
func (r *Registry) Save(name string, tape []byte, dataptr int) {
	cp := make([]byte, len(tape))
	copy(cp, tape)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tapes[name] = cp
	r.pointer[name] = dataptr
}

// Load returns a copy of the tape and data pointer stored under name.
func (r *Registry) Load(name string) (tape []byte, dataptr int, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tapes[name]
	if !ok {
		return nil, 0, false
	}
	cp := make([]byte, len(t))
	copy(cp, t)
	return cp, r.pointer[name], true
}

// Names lists the snapshot names currently stored.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tapes))
	for k := range r.tapes {
		names = append(names, k)
	}
	return names
}
