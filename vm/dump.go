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
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
)

// DumpIR writes one line per opcode to w, in the order Translate produced
// them. Intended for -v's IR dump, not for machine consumption.
func DumpIR(w io.Writer, program []Op) {
	for pc, op := range program {
		fmt.Fprintf(w, "%5d  %-20s %d\n", pc, op.Kind.String(), op.Argument)
	}
}

// DumpNonzeroCells writes one line per tape cell that is not zero after a
// run, for -v's post-execution tape dump. A freshly started 30,000-cell tape
// is almost always mostly zero, so this is far more readable than a full
// tape hexdump.
func DumpNonzeroCells(w io.Writer, tape []byte) {
	count := 0
	for i, b := range tape {
		if b != 0 {
			fmt.Fprintf(w, "tape[%d] = %d\n", i, b)
			count++
		}
	}
	fmt.Fprintf(w, "%d nonzero cell(s) of %d\n", count, len(tape))
}

// CodeSizeReport formats the size of an emitted JIT code buffer using
// go-units to three significant digits, e.g. "1.23kB", for -v's
// emitted-code-size line.
func CodeSizeReport(code []byte) string {
	return units.HumanSizeWithPrecision(float64(len(code)), 3)
}

// PersistRunArtifacts is the verbose-mode side effect described for a single
// run: the raw JIT code buffer (if any) goes to /tmp/bjout-<runid>.bin, and
// an lz4-compressed copy of the IR's opcode encoding goes to
// /tmp/bjout-<runid>.ir.lz4, so a -watch loop can diff successive
// translations of the same file offline. Returns the paths written, or an
// error from the first failed write.
func PersistRunArtifacts(program []Op, code []byte) (binPath, irPath string, err error) {
	runid := uuid.NewString()
	binPath = filepath.Join(os.TempDir(), fmt.Sprintf("bjout-%s.bin", runid))
	irPath = filepath.Join(os.TempDir(), fmt.Sprintf("bjout-%s.ir.lz4", runid))

	if len(code) > 0 {
		if err = os.WriteFile(binPath, code, 0644); err != nil {
			return "", "", err
		}
	} else {
		binPath = ""
	}

	f, err := os.Create(irPath)
	if err != nil {
		return binPath, "", err
	}
	defer f.Close()
	zw := lz4.NewWriter(f)
	for _, op := range program {
		var rec [9]byte
		rec[0] = byte(op.Kind)
		binary.LittleEndian.PutUint64(rec[1:], uint64(op.Argument))
		if _, err = zw.Write(rec[:]); err != nil {
			return binPath, irPath, err
		}
	}
	if err = zw.Close(); err != nil {
		return binPath, irPath, err
	}
	return binPath, irPath, nil
}
