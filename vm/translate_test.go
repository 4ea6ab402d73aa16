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

import "testing"

func TestTranslate_RunLengthFolding(t *testing.T) {
	program, err := Translate([]byte("+++>>--"))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := []Op{
		{IncData, 3},
		{IncPtr, 2},
		{DecData, 2},
	}
	if len(program) != len(want) {
		t.Fatalf("expected %d ops, got %d: %v", len(want), len(program), program)
	}
	for i, op := range program {
		if op != want[i] {
			t.Fatalf("op %d: expected %v, got %v", i, want[i], op)
		}
	}
}

func TestTranslate_BadChar(t *testing.T) {
	_, err := Translate([]byte("++x+"))
	if err == nil || err.Kind != BadChar {
		t.Fatalf("expected BadChar, got %v", err)
	}
	if err.Pos != 2 {
		t.Fatalf("expected BadChar at pos 2, got %d", err.Pos)
	}
}

func TestTranslate_LoopSetZero(t *testing.T) {
	program, err := Translate([]byte("[-]"))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(program) != 1 || program[0].Kind != LoopSetZero {
		t.Fatalf("expected a single LoopSetZero, got %v", program)
	}
}

func TestTranslate_LoopMovePtr(t *testing.T) {
	program, err := Translate([]byte("[>>]"))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(program) != 1 || program[0].Kind != LoopMovePtr || program[0].Argument != 2 {
		t.Fatalf("expected LoopMovePtr(2), got %v", program)
	}
}

func TestTranslate_LoopMoveData(t *testing.T) {
	program, err := Translate([]byte("[->+<]"))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(program) != 1 || program[0].Kind != LoopMoveData || program[0].Argument != 1 {
		t.Fatalf("expected LoopMoveData(1), got %v", program)
	}
}

func TestTranslate_GenericLoopResolvesJumpTargets(t *testing.T) {
	// a loop body that doesn't match any peephole pattern must fall back to
	// plain jumps with correctly resolved targets.
	program, err := Translate([]byte("[.,]"))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(program) != 4 {
		t.Fatalf("expected 4 ops, got %d: %v", len(program), program)
	}
	if program[0].Kind != JumpIfDataZero {
		t.Fatalf("expected JumpIfDataZero at 0, got %v", program[0])
	}
	if int(program[0].Argument) != len(program)-1 {
		t.Fatalf("expected forward jump to resolve to the closing jump, got %d want %d", program[0].Argument, len(program)-1)
	}
	if program[3].Kind != JumpIfDataNotZero || int(program[3].Argument) != 0 {
		t.Fatalf("expected backward jump to the opening jump, got %v", program[3])
	}
}

func TestTranslate_UnmatchedOpen(t *testing.T) {
	_, err := Translate([]byte("[+"))
	if err == nil || err.Kind != UnmatchedOpen {
		t.Fatalf("expected UnmatchedOpen, got %v", err)
	}
}

func TestTranslate_UnmatchedClose(t *testing.T) {
	_, err := Translate([]byte("+]"))
	if err == nil || err.Kind != UnmatchedClose {
		t.Fatalf("expected UnmatchedClose, got %v", err)
	}
}

// TestTranslate_JumpTargetsWellFormed checks that every conditional jump left
// after peephole rewriting points at its matching counterpart: a forward
// JumpIfDataZero at i targeting t is answered by a backward JumpIfDataNotZero
// at t targeting i, with no jump landing anywhere else.
func TestTranslate_JumpTargetsWellFormed(t *testing.T) {
	program, err := Translate([]byte("++[>+[-].<-]>[.]"))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	for i, op := range program {
		if op.Kind != JumpIfDataZero {
			continue
		}
		target := int(op.Argument)
		if target <= i || target >= len(program) {
			t.Fatalf("JumpIfDataZero at %d has out-of-range target %d", i, target)
		}
		back := program[target]
		if back.Kind != JumpIfDataNotZero || int(back.Argument) != i {
			t.Fatalf("JumpIfDataZero at %d (target %d) has no matching back-jump, found %v", i, target, back)
		}
	}
}
