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
	"syscall"
	"unsafe"
)

// execBuf is a small wrapper around one mmap'd region of memory that starts
// out writable and is later frozen executable-and-read-only.
type execBuf struct {
	ptr unsafe.Pointer
	n   int // size
}

func allocExec(size int) (*execBuf, error) {
	page := syscall.Getpagesize()
	n := (size + page - 1) & ^(page - 1)
	b, err := syscall.Mmap(-1, 0, n, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &execBuf{ptr: unsafe.Pointer(&b[0]), n: n}, nil
}

// makeRX flips the mapping from RW to RX. Once this succeeds the buffer
// must not be written to again; W^X is enforced by the OS, not just by
// convention.
func (e *execBuf) makeRX() error {
	data := (*[1 << 30]byte)(e.ptr)[:e.n:e.n]
	return syscall.Mprotect(data, syscall.PROT_READ|syscall.PROT_EXEC)
}

func (e *execBuf) free() error {
	data := (*[1 << 30]byte)(e.ptr)[:e.n:e.n]
	return syscall.Munmap(data)
}
