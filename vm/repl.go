/*
Copyright (C) 2023-2026  Carl-Philip Hänsch
Copyright (C) 2013  Pieter Kelchtermans (originally licensed unter WTFPL 2.0)

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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
)

const newprompt = "\033[32m>\033[0m "
const resultprompt = "\033[31m=\033[0m "

// Repl reads Brainfuck snippets line by line and executes each against a
// tape and data pointer that persist for the lifetime of the session, so
// cell values and the ">"/"<" cursor carry across snippets. Each line is
// translated on its own, so every loop must be closed on the line that
// opens it. Each session gets its own history file,
// named with a random id so concurrent REPLs never clobber one another.
func Repl(reg *Registry) {
	historyFile := ".octovm-history-" + uuid.NewString()[:8] + ".tmp"
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	defer os.Remove(historyFile)
	l.CaptureExitSignal()

	tape := make([]byte, TapeSize)
	dataptr := 0
	r := bufio.NewReader(os.Stdin)
	w := bufio.NewWriter(os.Stdout)

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		if line == "" {
			continue
		}

		if line == ":reset" {
			tape = make([]byte, TapeSize)
			dataptr = 0
			continue
		}
		if name, ok := strings.CutPrefix(line, ":save "); ok {
			reg.Save(name, tape, dataptr)
			fmt.Println("saved as", name)
			continue
		}
		if name, ok := strings.CutPrefix(line, ":load "); ok {
			loaded, ptr, ok := reg.Load(name)
			if !ok {
				fmt.Println("no such snapshot:", name)
				continue
			}
			tape, dataptr = loaded, ptr
			fmt.Println("loaded", name)
			continue
		}
		if line == ":list" {
			names := reg.Names()
			if len(names) == 0 {
				fmt.Println("no saved snapshots")
			} else {
				fmt.Println(strings.Join(names, ", "))
			}
			continue
		}

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					fmt.Println("panic:", rec)
				}
			}()
			program, perr := Translate([]byte(line))
			if perr != nil {
				fmt.Println("error:", perr.Error())
				return
			}
			next, rerr := RunTape(program, tape, dataptr, r, w)
			w.Flush()
			if rerr != nil {
				fmt.Println("error:", rerr.Error())
				return
			}
			dataptr = next
			fmt.Printf("\n%sptr=%d cell=%d\n", resultprompt, dataptr, tape[dataptr])
		}()
	}
}
