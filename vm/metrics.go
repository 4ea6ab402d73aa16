/*
Copyright (C) 2026  Carl-Philip Hänsch

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
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	units "github.com/docker/go-units"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// metricsSnapshot holds all sampled values, atomically swapped by the background goroutine.
// Readers load the pointer atomically — zero contention on the hot path.
type metricsSnapshot struct {
	cpuUsage     float64 // 0-100
	rps          float64 // runs per second (averaged over last 10s)
	maxConn10min int64   // max active connections over last 10 minutes
}

var currentSnapshot unsafe.Pointer // *metricsSnapshot

func loadSnapshot() *metricsSnapshot {
	p := atomic.LoadPointer(&currentSnapshot)
	if p == nil {
		return &metricsSnapshot{maxConn10min: 1}
	}
	return (*metricsSnapshot)(p)
}

// StartMetricsSampler starts a single background goroutine that samples all
// metrics. CPU is read from /proc/stat, RPS from the TotalRuns atomic
// counter delta, max-connections from ActiveConnections. Call once, from
// Serve; the REPL and one-shot CLI runs have no use for it.
func StartMetricsSampler() {
	snap := &metricsSnapshot{maxConn10min: 1}
	atomic.StorePointer(&currentSnapshot, unsafe.Pointer(snap))

	go func() {
		var prevIdle, prevTotal uint64
		var prevRuns int64

		// circular buffer: 10 one-second RPS samples
		const rpsBuckets = 10
		rpsBuf := [rpsBuckets]float64{}
		rpsIdx := 0

		// circular buffer: 600 one-second max-connection samples (10 min)
		const connBuckets = 600
		connBuf := [connBuckets]int64{}
		connIdx := 0

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			cpuVal := float64(0)
			idle, total := readCPUStat()
			if prevTotal > 0 && total > prevTotal {
				deltaIdle := idle - prevIdle
				deltaTotal := total - prevTotal
				cpuVal = (1.0 - float64(deltaIdle)/float64(deltaTotal)) * 100.0
			}
			prevIdle = idle
			prevTotal = total

			curRuns := atomic.LoadInt64(&TotalRuns)
			delta := curRuns - prevRuns
			prevRuns = curRuns
			rpsBuf[rpsIdx%rpsBuckets] = float64(delta)
			rpsIdx++
			rpsSum := float64(0)
			rpsCount := rpsBuckets
			if rpsIdx < rpsBuckets {
				rpsCount = rpsIdx
			}
			for i := 0; i < rpsCount; i++ {
				rpsSum += rpsBuf[i]
			}
			rpsVal := rpsSum / float64(rpsCount)

			curConn := atomic.LoadInt64(&ActiveConnections)
			connBuf[connIdx%connBuckets] = curConn
			connIdx++
			maxConn := curConn
			maxCount := connBuckets
			if connIdx < connBuckets {
				maxCount = connIdx
			}
			for i := 0; i < maxCount; i++ {
				if connBuf[i] > maxConn {
					maxConn = connBuf[i]
				}
			}
			if maxConn < 1 {
				maxConn = 1
			}

			newSnap := &metricsSnapshot{
				cpuUsage:     cpuVal,
				rps:          math.Round(rpsVal*10) / 10,
				maxConn10min: maxConn,
			}
			atomic.StorePointer(&currentSnapshot, unsafe.Pointer(newSnap))
		}
	}()
}

// readCPUStat reads the first cpu line from /proc/stat and returns (idle, total).
func readCPUStat() (uint64, uint64) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "cpu ") {
			fields := strings.Fields(line)
			if len(fields) < 5 {
				return 0, 0
			}
			var total uint64
			var idle uint64
			for i := 1; i < len(fields); i++ {
				val, _ := strconv.ParseUint(fields[i], 10, 64)
				total += val
				if i == 4 {
					idle = val
				}
			}
			return idle, total
		}
	}
	return 0, 0
}

// readProcessRSS reads the RSS (resident set size) of this process from /proc/self/statm.
func readProcessRSS() int64 {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return pages * int64(os.Getpagesize())
}

var statsPrinter = message.NewPrinter(language.English)

// StatsLine renders a one-line human-readable status summary: CPU load,
// resident memory (formatted with go-units, e.g. "42MiB"), thousands-grouped
// connection and run counters (via x/text/message), and the rolling
// requests-per-second average. Used by the /stats HTTP handler.
func StatsLine() string {
	snap := loadSnapshot()
	return statsPrinter.Sprintf(
		"cpu=%.1f%% mem=%s conns=%d max_conns_10m=%d runs=%d rps=%.1f",
		snap.cpuUsage,
		units.BytesSize(float64(readProcessRSS())),
		atomic.LoadInt64(&ActiveConnections),
		snap.maxConn10min,
		atomic.LoadInt64(&TotalRuns),
		snap.rps,
	)
}
