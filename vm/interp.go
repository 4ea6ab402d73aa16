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

// TapeSize is the number of zero-initialized cells a freshly started
// program executes against.
const TapeSize = 30000

// Run interprets program with a plain switch dispatch over the program
// counter, against a fresh zero-initialized tape. It is the reference
// execution path: every other back end must agree with it byte for byte on
// stdout given the same stdin.
func Run(program []Op, stdin io.Reader, stdout io.Writer) *Error {
	tape := make([]byte, TapeSize)
	r := bufio.NewReader(stdin)
	w := bufio.NewWriter(stdout)
	defer w.Flush()
	_, err := RunTape(program, tape, 0, r, w)
	return err
}

// RunTape interprets program against a caller-owned tape and starting data
// pointer, returning the data pointer left after the run. This is what the
// REPL uses to keep a tape alive across successive snippets: each line
// compiles to its own program, but all lines share one tape and cursor.
func RunTape(program []Op, tape []byte, dataptr int, r *bufio.Reader, w *bufio.Writer) (int, *Error) {
	for pc := 0; pc < len(program); pc++ {
		op := program[pc]
		switch op.Kind {
		case IncPtr:
			dataptr += int(op.Argument)
		case DecPtr:
			dataptr -= int(op.Argument)
		case IncData:
			tape[dataptr] += byte(op.Argument)
		case DecData:
			tape[dataptr] -= byte(op.Argument)
		case ReadStdin:
			for i := int64(0); i < op.Argument; i++ {
				b, err := r.ReadByte()
				if err == io.EOF {
					tape[dataptr] = 0
				} else if err != nil {
					return dataptr, newError(HostIoError, pc, "read stdin: "+err.Error())
				} else {
					tape[dataptr] = b
				}
			}
		case WriteStdout:
			for i := int64(0); i < op.Argument; i++ {
				if err := w.WriteByte(tape[dataptr]); err != nil {
					return dataptr, newError(HostIoError, pc, "write stdout: "+err.Error())
				}
			}
		case LoopSetZero:
			tape[dataptr] = 0
		case LoopMovePtr:
			for tape[dataptr] != 0 {
				dataptr += int(op.Argument)
			}
		case LoopMoveData:
			if tape[dataptr] != 0 {
				moveTo := dataptr + int(op.Argument)
				tape[moveTo] += tape[dataptr]
				tape[dataptr] = 0
			}
		case JumpIfDataZero:
			if tape[dataptr] == 0 {
				pc = int(op.Argument) - 1
			}
		case JumpIfDataNotZero:
			if tape[dataptr] != 0 {
				pc = int(op.Argument) - 1
			}
		default:
			return dataptr, newError(InvalidOp, pc, "invalid opcode encountered during interpretation")
		}
	}
	return dataptr, nil
}

// RunStreamed interprets program like RunTape, but instead of buffering
// output through a bufio.Writer it invokes emit once per WriteStdout opcode
// with exactly the bytes that opcode produced. This lets a caller (the
// playground's WebSocket handler) forward guest output to its client as it
// is produced rather than waiting for the whole run to finish.
func RunStreamed(program []Op, tape []byte, dataptr int, r *bufio.Reader, emit func([]byte)) (int, *Error) {
	for pc := 0; pc < len(program); pc++ {
		op := program[pc]
		switch op.Kind {
		case IncPtr:
			dataptr += int(op.Argument)
		case DecPtr:
			dataptr -= int(op.Argument)
		case IncData:
			tape[dataptr] += byte(op.Argument)
		case DecData:
			tape[dataptr] -= byte(op.Argument)
		case ReadStdin:
			for i := int64(0); i < op.Argument; i++ {
				b, err := r.ReadByte()
				if err == io.EOF {
					tape[dataptr] = 0
				} else if err != nil {
					return dataptr, newError(HostIoError, pc, "read stdin: "+err.Error())
				} else {
					tape[dataptr] = b
				}
			}
		case WriteStdout:
			chunk := make([]byte, op.Argument)
			for i := range chunk {
				chunk[i] = tape[dataptr]
			}
			emit(chunk)
		case LoopSetZero:
			tape[dataptr] = 0
		case LoopMovePtr:
			for tape[dataptr] != 0 {
				dataptr += int(op.Argument)
			}
		case LoopMoveData:
			if tape[dataptr] != 0 {
				moveTo := dataptr + int(op.Argument)
				tape[moveTo] += tape[dataptr]
				tape[dataptr] = 0
			}
		case JumpIfDataZero:
			if tape[dataptr] == 0 {
				pc = int(op.Argument) - 1
			}
		case JumpIfDataNotZero:
			if tape[dataptr] != 0 {
				pc = int(op.Argument) - 1
			}
		default:
			return dataptr, newError(InvalidOp, pc, "invalid opcode encountered during interpretation")
		}
	}
	return dataptr, nil
}
