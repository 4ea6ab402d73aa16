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

import (
	"bufio"
	"io"
)

// threadedState carries everything a handler needs, mirroring the registers
// the x86-64 back end keeps live across the whole run: the tape, the data
// pointer, and the host I/O streams.
type threadedState struct {
	tape    []byte
	dataptr int
	r       *bufio.Reader
	w       *bufio.Writer
}

// opHandler executes one Op and returns the next program counter. Go has no
// computed goto, so this table of function values stands in for the
// label-address array the reference interpreter builds; dispatch is an
// indirect call through the table rather than a jump through it, but the
// shape — resolve kind to an address once, then jump/call through it on
// every step — is the same.
type opHandler func(ts *threadedState, op Op, pc int) (int, *Error)

var threadedHandlers = [...]opHandler{
	Invalid: func(ts *threadedState, op Op, pc int) (int, *Error) {
		return pc, newError(InvalidOp, pc, "invalid opcode encountered during interpretation")
	},
	IncPtr: func(ts *threadedState, op Op, pc int) (int, *Error) {
		ts.dataptr += int(op.Argument)
		return pc + 1, nil
	},
	DecPtr: func(ts *threadedState, op Op, pc int) (int, *Error) {
		ts.dataptr -= int(op.Argument)
		return pc + 1, nil
	},
	IncData: func(ts *threadedState, op Op, pc int) (int, *Error) {
		ts.tape[ts.dataptr] += byte(op.Argument)
		return pc + 1, nil
	},
	DecData: func(ts *threadedState, op Op, pc int) (int, *Error) {
		ts.tape[ts.dataptr] -= byte(op.Argument)
		return pc + 1, nil
	},
	ReadStdin: func(ts *threadedState, op Op, pc int) (int, *Error) {
		for i := int64(0); i < op.Argument; i++ {
			b, err := ts.r.ReadByte()
			if err == io.EOF {
				ts.tape[ts.dataptr] = 0
			} else if err != nil {
				return pc, newError(HostIoError, pc, "read stdin: "+err.Error())
			} else {
				ts.tape[ts.dataptr] = b
			}
		}
		return pc + 1, nil
	},
	WriteStdout: func(ts *threadedState, op Op, pc int) (int, *Error) {
		for i := int64(0); i < op.Argument; i++ {
			if err := ts.w.WriteByte(ts.tape[ts.dataptr]); err != nil {
				return pc, newError(HostIoError, pc, "write stdout: "+err.Error())
			}
		}
		return pc + 1, nil
	},
	LoopSetZero: func(ts *threadedState, op Op, pc int) (int, *Error) {
		ts.tape[ts.dataptr] = 0
		return pc + 1, nil
	},
	LoopMovePtr: func(ts *threadedState, op Op, pc int) (int, *Error) {
		for ts.tape[ts.dataptr] != 0 {
			ts.dataptr += int(op.Argument)
		}
		return pc + 1, nil
	},
	LoopMoveData: func(ts *threadedState, op Op, pc int) (int, *Error) {
		if ts.tape[ts.dataptr] != 0 {
			moveTo := ts.dataptr + int(op.Argument)
			ts.tape[moveTo] += ts.tape[ts.dataptr]
			ts.tape[ts.dataptr] = 0
		}
		return pc + 1, nil
	},
	JumpIfDataZero: func(ts *threadedState, op Op, pc int) (int, *Error) {
		if ts.tape[ts.dataptr] == 0 {
			return int(op.Argument), nil
		}
		return pc + 1, nil
	},
	JumpIfDataNotZero: func(ts *threadedState, op Op, pc int) (int, *Error) {
		if ts.tape[ts.dataptr] != 0 {
			return int(op.Argument), nil
		}
		return pc + 1, nil
	},
}

// RunThreaded executes program through the handler-table dispatch above.
// It is observably identical to Run; it exists to exercise the
// direct-threaded-style dispatch shape without resorting to computed goto,
// which Go does not expose.
func RunThreaded(program []Op, stdin io.Reader, stdout io.Writer) *Error {
	ts := &threadedState{
		tape: make([]byte, TapeSize),
		r:    bufio.NewReader(stdin),
		w:    bufio.NewWriter(stdout),
	}
	defer ts.w.Flush()

	pc := 0
	for pc < len(program) {
		next, err := threadedHandlers[program[pc].Kind](ts, program[pc], pc)
		if err != nil {
			return err
		}
		pc = next
	}
	return nil
}
