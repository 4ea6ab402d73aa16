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

import "unsafe"

// AMD64 GPR constants. The tape-walking back end only ever touches the
// integer registers; there is no floating point in this instruction set,
// so the XMM half of the register file the teacher's expression JIT used
// has no counterpart here.
const (
	RegRAX Reg = 0
	RegRCX Reg = 1
	RegRDX Reg = 2
	RegRBX Reg = 3
	RegRSP Reg = 4
	RegRBP Reg = 5
	RegRSI Reg = 6
	RegRDI Reg = 7
	RegR8  Reg = 8
	RegR9  Reg = 9
	RegR10 Reg = 10
	RegR11 Reg = 11
	RegR12 Reg = 12
	RegR13 Reg = 13
	RegR14 Reg = 14
	RegR15 Reg = 15
)

// Fixed register assignment for the whole compiled program: R15 holds the
// tape base address for the life of the call, R13 holds the data pointer
// (already scaled to bytes, never multiplied). R11 is scratch. R14 is left
// untouched — Go's ABIInternal reserves it for the goroutine pointer and
// nothing here may clobber it.
const (
	tapeBaseReg = RegR15
	dataPtrReg  = RegR13
	scratchReg  = RegR11
)

// emitByte appends a single byte to the writer.
func (w *JITWriter) emitByte(b byte) {
	*(*byte)(w.Ptr) = b
	w.Ptr = unsafe.Add(w.Ptr, 1)
}

// emitBytes appends raw bytes to the writer.
func (w *JITWriter) emitBytes(bs ...byte) {
	for _, b := range bs {
		*(*byte)(w.Ptr) = b
		w.Ptr = unsafe.Add(w.Ptr, 1)
	}
}

// emitU32 appends a little-endian uint32.
func (w *JITWriter) emitU32(v uint32) {
	*(*uint32)(w.Ptr) = v
	w.Ptr = unsafe.Add(w.Ptr, 4)
}

// emitU64 appends a little-endian uint64.
func (w *JITWriter) emitU64(v uint64) {
	*(*uint64)(w.Ptr) = v
	w.Ptr = unsafe.Add(w.Ptr, 8)
}

// emitMovRegReg emits MOV dst, src (64-bit GPR to GPR).
func (w *JITWriter) emitMovRegReg(dst, src Reg) {
	rex := byte(0x48)
	if src >= 8 {
		rex |= 0x04 // REX.R
	}
	if dst >= 8 {
		rex |= 0x01 // REX.B
	}
	modrm := byte(0xC0) | (byte(src&7) << 3) | byte(dst&7)
	w.emitBytes(rex, 0x89, modrm) // MOV r/m64, r64
}

// EmitMovRegImm64 emits MOV reg, imm64.
func (w *JITWriter) EmitMovRegImm64(dst Reg, imm uint64) {
	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x01 // REX.B
	}
	w.emitBytes(rex, 0xB8|byte(dst&7))
	w.emitU64(imm)
}

// emitXorReg emits XOR r32, r32 (zeros the 64-bit register via a 32-bit op).
func (w *JITWriter) emitXorReg(r Reg) {
	if r >= 8 {
		w.emitBytes(0x45, 0x31, byte(0xC0|(byte(r&7)<<3)|byte(r&7)))
	} else {
		w.emitBytes(0x31, byte(0xC0|(byte(r)<<3)|byte(r)))
	}
}

// emitAluRegImm32 emits a REX.W group-1 ALU op against a sign-extended imm32:
// <ext> r64, imm32. ext picks the operation: 0=ADD, 5=SUB, 7=CMP.
func (w *JITWriter) emitAluRegImm32(ext byte, dst Reg, imm int32) {
	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x01 // REX.B
	}
	modrm := byte(0xC0) | (ext << 3) | byte(dst&7)
	w.emitBytes(rex, 0x81, modrm)
	w.emitU32(uint32(imm))
}

// EmitAddRegImm32 emits ADD r64, imm32.
func (w *JITWriter) EmitAddRegImm32(dst Reg, imm int32) {
	w.emitAluRegImm32(0, dst, imm)
}

// EmitSubRegImm32 emits SUB r64, imm32.
func (w *JITWriter) EmitSubRegImm32(dst Reg, imm int32) {
	w.emitAluRegImm32(5, dst, imm)
}

// EmitCmpRegImm32 emits CMP r64, sign-extended imm32.
func (w *JITWriter) EmitCmpRegImm32(dst Reg, imm int32) {
	w.emitAluRegImm32(7, dst, imm)
}

// EmitJcc emits a conditional jump with a rel32 fixup.
func (w *JITWriter) EmitJcc(cc byte, labelID int) {
	w.emitBytes(0x0F, 0x80|cc) // Jcc rel32
	w.AddFixup(labelID, 4, true)
	w.emitU32(0) // placeholder
}

// EmitJmp emits an unconditional JMP rel32.
func (w *JITWriter) EmitJmp(labelID int) {
	w.emitByte(0xE9) // JMP rel32
	w.AddFixup(labelID, 4, true)
	w.emitU32(0) // placeholder
}

// Condition code constants for EmitJcc.
const (
	CcE  byte = 0x04 // JE  / JZ  (ZF=1)
	CcNE byte = 0x05 // JNE / JNZ (ZF=0)
)

// --- tape-cell addressing: [tapeBaseReg + dataPtrReg*1] via SIB ---

// tapeSIB returns the REX/ModRM/SIB triple for a tape-cell memory operand
// with reg field set to ext (either an opcode extension or a register
// encoding, depending on the instruction).
func tapeSIB(ext byte) (rex, modrm, sib byte) {
	rex = 0x48 | 0x02 | 0x01 // REX.W, REX.X (index>=8), REX.B (base>=8)
	modrm = (ext&7)<<3 | 0x04
	sib = (byte(dataPtrReg&7) << 3) | byte(tapeBaseReg&7)
	return
}

// emitMovzxReg64Mem8 emits MOVZX dst, byte [tapeBaseReg + dataPtrReg].
func (w *JITWriter) emitMovzxReg64Mem8(dst Reg) {
	rex, modrm, sib := tapeSIB(byte(dst))
	if dst >= 8 {
		rex |= 0x04 // REX.R
	}
	w.emitBytes(rex, 0x0F, 0xB6, modrm, sib)
}

// emitMem8ImmOp emits <ext> byte [tapeBaseReg + dataPtrReg], imm8.
// ext selects the opcode group-1 operation (0=ADD, 5=SUB) against opcode
// 0x80, or pass opMovImm8 to select the single-operand MOV form (0xC6 /0).
func (w *JITWriter) emitMem8ImmOp(opcode, ext byte, imm uint8) {
	rex, modrm, sib := tapeSIB(ext)
	w.emitBytes(rex, opcode, modrm, sib, imm)
}

const (
	aluAdd    byte = 0 // group-1 /0
	aluSub    byte = 5 // group-1 /5
	opGroup1  byte = 0x80
	opMovImm8 byte = 0xC6
)

// emitLeaTapeAddr emits LEA dst, [tapeBaseReg + dataPtrReg] — the address of
// the current tape cell.
func (w *JITWriter) emitLeaTapeAddr(dst Reg) {
	rex, modrm, sib := tapeSIB(byte(dst))
	if dst >= 8 {
		rex |= 0x04 // REX.R
	}
	w.emitBytes(rex, 0x8D, modrm, sib)
}

// emitAddMem8FromReg8 emits ADD byte [tapeBaseReg + dataPtrReg], src.
func (w *JITWriter) emitAddMem8FromReg8(src Reg) {
	rex, modrm, sib := tapeSIB(byte(src))
	if src >= 8 {
		rex |= 0x04 // REX.R
	}
	w.emitBytes(rex, 0x00, modrm, sib)
}

// emitTestRegReg emits TEST r64, r64 (same register twice: a cheap
// zero/nonzero probe that sets ZF without disturbing the value).
func (w *JITWriter) emitTestRegReg(r Reg) {
	rex := byte(0x48)
	if r >= 8 {
		rex |= 0x05 // REX.R and REX.B both select r
	}
	modrm := byte(0xC0) | (byte(r&7) << 3) | byte(r&7)
	w.emitBytes(rex, 0x85, modrm)
}

// emitCallRel emits a near relative CALL to a label defined in this writer.
func (w *JITWriter) emitCallRel(labelID int) {
	w.emitByte(0xE8)
	w.AddFixup(labelID, 4, true)
	w.emitU32(0)
}

// emitSyscall emits the SYSCALL instruction.
func (w *JITWriter) emitSyscall() {
	w.emitBytes(0x0F, 0x05)
}

// emitRet emits RET.
func (w *JITWriter) emitRet() {
	w.emitByte(0xC3)
}

// emitPushReg/emitPopReg save and restore a GPR on the (borrowed) Go stack
// around the raw SYSCALL sequences in the I/O shims, so the shims don't
// disturb registers the surrounding lowering code still has live.
func (w *JITWriter) emitPushReg(r Reg) {
	if r >= 8 {
		w.emitBytes(0x41, 0x50|byte(r&7))
	} else {
		w.emitByte(0x50 | byte(r))
	}
}

func (w *JITWriter) emitPopReg(r Reg) {
	if r >= 8 {
		w.emitBytes(0x41, 0x58|byte(r&7))
	} else {
		w.emitByte(0x58 | byte(r))
	}
}
