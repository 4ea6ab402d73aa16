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
package vm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jtolds/gls"
	"golang.org/x/sync/singleflight"
)

// ActiveConnections tracks the current number of open WebSocket playground
// connections.
var ActiveConnections int64

// TotalRuns is incremented once per /run request, when the request arrives.
var TotalRuns int64

var runGroup singleflight.Group

// serverCache memoizes JIT compilations across POST /run?backend=jit
// requests that submit the same program more than once, so a repeated
// request doesn't pay for a fresh mmap+encode. WebSocket sessions always
// interpret and do not use it.
var serverCache = NewJITCache(64)

// Serve starts the playground HTTP/WebSocket server on addr. Each /run
// request and each WebSocket connection executes against its own isolated
// tape; two identical POST /run bodies arriving concurrently are
// deduplicated via singleflight so a pathological client can't make the
// server translate and run the same source twice at once.
func Serve(addr string) error {
	StartMetricsSampler()

	mux := http.NewServeMux()
	mux.HandleFunc("/run", handleRun)
	mux.HandleFunc("/stream", handleStream)
	mux.HandleFunc("/stats", handleStats)

	server := &http.Server{
		Addr:           addr,
		Handler:        mux,
		ReadTimeout:    300 * time.Second,
		WriteTimeout:   300 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return server.ListenAndServe()
}

// handleRun executes one guest program submitted as the request body and
// returns its stdout as the response body. Input for the program's own read
// instructions is taken from the "?stdin=" query parameter, and the back end
// from "?backend=jit|interp|threaded" (any other value, including none,
// selects the switch interpreter).
func handleRun(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&TotalRuns, 1)
	src, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}
	stdinParam := r.URL.Query().Get("stdin")
	backend := r.URL.Query().Get("backend")

	key := backend + "\x00" + string(src) + "\x00" + stdinParam
	out, err, _ := runGroup.Do(key, func() (any, error) {
		return runOnce(src, stdinParam, backend)
	})
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintln(w, "error:", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write(out.([]byte))
}

func runOnce(src []byte, stdin string, backend string) (result []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	program, perr := Translate(src)
	if perr != nil {
		return nil, perr
	}
	var out bytes.Buffer
	// The JIT back end's I/O shims talk directly to file descriptors 0/1
	// (see jit_amd64.go) rather than an io.Reader/io.Writer, so it cannot
	// capture stdout into the HTTP response; it still runs (useful to
	// benchmark emission/execution through the cache) but the guest's
	// output lands on the server process's own stdout, not the response
	// body.
	if backend == "jit" {
		cp, jerr := CompileCached(serverCache, program)
		if jerr != nil {
			return nil, jerr
		}
		tape := make([]byte, TapeSize)
		cp.Run(tape)
		return []byte("ok (jit backend writes to the server's own stdout, not this response)\n"), nil
	}

	var rerr *Error
	if backend == "threaded" {
		rerr = RunThreaded(program, bytes.NewBufferString(stdin), &out)
	} else {
		rerr = Run(program, bytes.NewBufferString(stdin), &out)
	}
	if rerr != nil {
		return nil, rerr
	}
	return out.Bytes(), nil
}

// handleStream upgrades to a WebSocket, accepts one source program per text
// frame, and streams its stdout back as binary frames — one frame per
// WriteStdout opcode executed, so long-running guest programs produce
// output incrementally instead of buffering to completion. Each connection
// runs on its own gls-tagged goroutine so a panic during translation or
// execution is recovered and reported on that connection alone, without
// tearing down the server.
func handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	atomic.AddInt64(&ActiveConnections, 1)
	gls.Go(func() {
		defer atomic.AddInt64(&ActiveConnections, -1)
		defer ws.Close()
		runStreamConnection(ws)
	})
}

func runStreamConnection(ws *websocket.Conn) {
	tape := make([]byte, TapeSize)
	dataptr := 0
	var stdinBuf bytes.Buffer
	stdinR := bufio.NewReader(&stdinBuf)

	for {
		messageType, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					PrintError("error in playground connection: " + fmt.Sprint(rec))
					ws.WriteMessage(websocket.BinaryMessage, []byte("panic: "+fmt.Sprint(rec)))
				}
			}()
			program, perr := Translate(msg)
			if perr != nil {
				ws.WriteMessage(websocket.BinaryMessage, []byte("error: "+perr.Error()))
				return
			}
			next, rerr := RunStreamed(program, tape, dataptr, stdinR, func(chunk []byte) {
				ws.WriteMessage(websocket.BinaryMessage, chunk)
			})
			if rerr != nil {
				ws.WriteMessage(websocket.BinaryMessage, []byte("error: "+rerr.Error()))
				return
			}
			dataptr = next
		}()
	}
}

// handleStats returns the current CPU/memory/connection/throughput summary
// as a single plain-text line, for uptime monitors.
func handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, StatsLine())
}

// PrintError reports a server-side error as one line on the process's
// stdout. Kept as a named hook (rather than a bare fmt.Println at call
// sites) so it is the one place that would grow structured logging.
func PrintError(msg string) {
	fmt.Println("error:", msg)
}
