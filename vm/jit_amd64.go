//go:build amd64

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
	"unsafe"
)

// CompiledProgram is a translated program bound to native code. Entry is
// a callable Go function value whose underlying code pointer is the JIT
// buffer itself; calling it runs the program to completion against the
// tape passed in.
type CompiledProgram struct {
	entry func(tape *byte)
	buf   *execBuf
	code  []byte // RX view of the emitted bytes, for dumping/caching
}

// codeBudget is a generous per-Op upper bound on emitted bytes, used to size
// the mmap region before we know the exact count. The repeated CALLs of
// ReadStdin/WriteStdout are budgeted separately, per repetition.
const codeBudget = 64

// callSize is the length of one CALL rel32 instruction.
const callSize = 5

// CompileProgram lowers program to x86-64 machine code and binds it to a
// callable entry point. The returned CompiledProgram must be released with
// Release once the caller is done running it.
func CompileProgram(program []Op) (*CompiledProgram, *Error) {
	size := (len(program)+8)*codeBudget + 256
	for _, op := range program {
		if op.Kind == ReadStdin || op.Kind == WriteStdout {
			size += int(op.Argument) * callSize
		}
	}
	buf, err := allocExec(size)
	if err != nil {
		return nil, newError(JitEncodeError, -1, "mmap: "+err.Error())
	}

	w := &JITWriter{
		Ptr:   buf.ptr,
		Start: buf.ptr,
		End:   unsafe.Add(buf.ptr, buf.n-64),
	}

	cp := &CompiledProgram{buf: buf}

	opLabels := make([]int, len(program)+1)
	for i := range opLabels {
		opLabels[i] = w.ReserveLabel()
	}
	getcharLabel := w.ReserveLabel()
	putcharLabel := w.ReserveLabel()

	// prologue: tape base arrives in RAX per Go's ABIInternal calling
	// convention for the single-pointer-argument func value we bind below.
	w.emitMovRegReg(tapeBaseReg, RegRAX)
	w.emitXorReg(dataPtrReg)

	for pc, op := range program {
		w.MarkLabel(opLabels[pc])
		switch op.Kind {
		case IncPtr:
			w.EmitAddRegImm32(dataPtrReg, int32(op.Argument))
		case DecPtr:
			w.EmitSubRegImm32(dataPtrReg, int32(op.Argument))
		case IncData:
			w.emitMem8ImmOp(opGroup1, aluAdd, byte(op.Argument))
		case DecData:
			w.emitMem8ImmOp(opGroup1, aluSub, byte(op.Argument))
		case ReadStdin:
			for i := int64(0); i < op.Argument; i++ {
				w.emitCallRel(getcharLabel)
			}
		case WriteStdout:
			for i := int64(0); i < op.Argument; i++ {
				w.emitCallRel(putcharLabel)
			}
		case LoopSetZero:
			w.emitMem8ImmOp(opMovImm8, 0, 0)
		case LoopMovePtr:
			top := w.DefineLabel()
			w.emitMovzxReg64Mem8(scratchReg)
			w.emitTestRegReg(scratchReg)
			w.EmitJcc(CcE, opLabels[pc+1])
			w.EmitAddRegImm32(dataPtrReg, int32(op.Argument))
			w.EmitJmp(top)
		case LoopMoveData:
			w.emitMovzxReg64Mem8(scratchReg)
			w.emitTestRegReg(scratchReg)
			w.EmitJcc(CcE, opLabels[pc+1])
			w.EmitAddRegImm32(dataPtrReg, int32(op.Argument))
			w.emitAddMem8FromReg8(scratchReg)
			w.EmitSubRegImm32(dataPtrReg, int32(op.Argument))
			w.emitMem8ImmOp(opMovImm8, 0, 0)
		case JumpIfDataZero:
			w.emitMovzxReg64Mem8(scratchReg)
			w.emitTestRegReg(scratchReg)
			w.EmitJcc(CcE, opLabels[op.Argument])
		case JumpIfDataNotZero:
			w.emitMovzxReg64Mem8(scratchReg)
			w.emitTestRegReg(scratchReg)
			w.EmitJcc(CcNE, opLabels[op.Argument])
		default:
			buf.free()
			return nil, newError(JitEncodeError, pc, "cannot encode invalid opcode")
		}
	}
	w.MarkLabel(opLabels[len(program)])
	w.emitRet()

	emitGetcharShim(w, getcharLabel)
	emitPutcharShim(w, putcharLabel)

	w.ResolveFixups()

	codeLen := int(uintptr(w.Ptr) - uintptr(w.Start))
	if err := buf.makeRX(); err != nil {
		buf.free()
		return nil, newError(JitBindError, -1, "mprotect: "+err.Error())
	}

	dst := (*[1 << 30]byte)(buf.ptr)[:codeLen:codeLen]
	cp.code = dst
	codePtr := &dst[0]
	fv := &struct{ *byte }{codePtr}
	cp.entry = *(*func(*byte))(unsafe.Pointer(&fv))
	return cp, nil
}

// emitGetcharShim emits a leaf routine that performs a raw read(2) syscall
// for one byte directly into the current tape cell, and zeroes the cell on
// EOF or error. It is reached only via CALL from within the same buffer, so
// it can rely on R15/R13 already holding the tape base and data pointer.
func emitGetcharShim(w *JITWriter, label int) {
	w.MarkLabel(label)
	w.emitPushReg(RegRDI)
	w.emitPushReg(RegRSI)
	w.emitPushReg(RegRDX)

	w.emitXorReg(RegRAX) // syscall number 0 = read
	w.emitXorReg(RegRDI) // fd 0 = stdin
	w.emitLeaTapeAddr(RegRSI)
	w.EmitMovRegImm64(RegRDX, 1)
	w.emitSyscall()

	// rax now holds the byte count read, or a negative errno. Either way,
	// zero the cell when it isn't exactly 1 — matches the EOF-reads-as-zero
	// convention used by the reference interpreters.
	w.EmitCmpRegImm32(RegRAX, 1)
	done := w.ReserveLabel()
	w.EmitJcc(CcE, done)
	w.emitMem8ImmOp(opMovImm8, 0, 0)
	w.MarkLabel(done)

	w.emitPopReg(RegRDX)
	w.emitPopReg(RegRSI)
	w.emitPopReg(RegRDI)
	w.emitRet()
}

// emitPutcharShim emits a leaf routine that performs a raw write(2) syscall
// for one byte taken directly from the current tape cell.
func emitPutcharShim(w *JITWriter, label int) {
	w.MarkLabel(label)
	w.emitPushReg(RegRDI)
	w.emitPushReg(RegRSI)
	w.emitPushReg(RegRDX)

	w.EmitMovRegImm64(RegRAX, 1) // syscall number 1 = write
	w.EmitMovRegImm64(RegRDI, 1) // fd 1 = stdout
	w.emitLeaTapeAddr(RegRSI)
	w.EmitMovRegImm64(RegRDX, 1)
	w.emitSyscall()

	w.emitPopReg(RegRDX)
	w.emitPopReg(RegRSI)
	w.emitPopReg(RegRDI)
	w.emitRet()
}

// Run executes the compiled program against tape, starting with the data
// pointer at cell 0. stdin/stdout are
// wired directly to file descriptors 0/1 by the shims above — a
// CompiledProgram cannot redirect I/O to an arbitrary io.Reader/io.Writer
// the way the interpreters can, since the shims speak raw syscalls rather
// than Go's I/O interfaces. Callers that need captured I/O (the REPL, the
// playground server, tests) should run the same program through Run/
// RunThreaded instead and reserve the JIT for throughput benchmarking
// against the process's real stdin/stdout.
func (cp *CompiledProgram) Run(tape []byte) {
	cp.entry(&tape[0])
}

// Release frees the underlying executable mapping. A CompiledProgram must
// not be used after Release.
func (cp *CompiledProgram) Release() error {
	return cp.buf.free()
}

// Code returns the raw machine code bytes, for verbose dumps.
func (cp *CompiledProgram) Code() []byte {
	return cp.code
}
