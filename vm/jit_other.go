//go:build !amd64

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

// CompiledProgram is the non-amd64 stand-in; this architecture has no
// native back end, so CompileProgram always fails and callers fall back to
// the interpreter.
type CompiledProgram struct{}

// CompileProgram reports that JIT compilation is unavailable on this
// architecture.
func CompileProgram(program []Op) (*CompiledProgram, *Error) {
	return nil, newError(JitEncodeError, -1, "jit: unsupported on this architecture")
}

func (cp *CompiledProgram) Run(tape []byte) {}

func (cp *CompiledProgram) Release() error { return nil }

func (cp *CompiledProgram) Code() []byte { return nil }
