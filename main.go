/*
Copyright (C) 2023-2026  Carl-Philip Hänsch

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
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/fsnotify/fsnotify"
	"github.com/launix-de/octovm/vm"
)

func main() {
	fmt.Print(`octovm Copyright (C) 2023-2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	verbose := flag.Bool("v", false, "verbose: IR dump; on the JIT path also emitted-code-size report, /tmp artifacts and nonzero-tape-cell dump (no timing is reported)")
	forceInterp := flag.Bool("interp", false, "force the switch-dispatched interpreter even on amd64")
	threaded := flag.Bool("threaded", false, "use the function-table interpreter instead of the switch interpreter")
	watch := flag.Bool("watch", false, "watch the source file and re-translate/re-run on every save")
	serveAddr := flag.String("serve", "", "launch the HTTP/WebSocket playground server on this address instead of running a file")
	flag.Parse()

	if *serveAddr != "" {
		fmt.Println("serving playground on", *serveAddr)
		if err := vm.Serve(*serveAddr); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	path := flag.Arg(0)
	if path == "" {
		reg := vm.NewRegistry()
		vm.Repl(reg)
		return
	}

	if *watch {
		runWatched(path, *verbose, *forceInterp, *threaded)
		return
	}

	if err := runFile(path, *verbose, *forceInterp, *threaded); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runFile(path string, verbose, forceInterp, threaded bool) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	src, rerr := vm.ReadSource(path)
	if rerr != nil {
		return rerr
	}
	program, perr := vm.Translate(src)
	if perr != nil {
		return perr
	}
	if verbose {
		vm.DumpIR(os.Stderr, program)
	}

	useJIT := !forceInterp && runtime.GOARCH == "amd64"

	if useJIT {
		cp, jerr := vm.CompileProgram(program)
		if jerr != nil {
			fmt.Fprintln(os.Stderr, "jit unavailable, falling back to interpreter:", jerr)
			useJIT = false
		} else {
			defer cp.Release()
			if verbose {
				fmt.Fprintln(os.Stderr, "emitted code size:", vm.CodeSizeReport(cp.Code()))
				if _, irPath, derr := vm.PersistRunArtifacts(program, cp.Code()); derr == nil {
					fmt.Fprintln(os.Stderr, "ir dump:", irPath)
				}
			}
			tape := make([]byte, vm.TapeSize)
			cp.Run(tape)
			if verbose {
				vm.DumpNonzeroCells(os.Stderr, tape)
			}
			return nil
		}
	}

	var rerr2 *vm.Error
	if threaded {
		rerr2 = vm.RunThreaded(program, os.Stdin, os.Stdout)
	} else {
		rerr2 = vm.Run(program, os.Stdin, os.Stdout)
	}
	if rerr2 != nil {
		return rerr2
	}
	return nil
}

func runWatched(path string, verbose, forceInterp, threaded bool) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	run := func() {
		if err := runFile(path, verbose, forceInterp, threaded); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	run()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				fmt.Fprintln(os.Stderr, "--- re-running", path, "---")
				run()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintln(os.Stderr, "watch error:", watchErr)
		}
	}
}
