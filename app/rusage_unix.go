//go:build unix

package app

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

var lastCPUWall time.Time
var lastCPUProc time.Duration
var haveCPUSample bool

func sampleMemoryAndCPU() (mem struct{ heap, rss uint64 }, cpu float64) {
	var rusage unix.Rusage
	_ = unix.Getrusage(unix.RUSAGE_SELF, &rusage)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	mem.heap = ms.HeapAlloc
	mem.rss = uint64(rusage.Maxrss) * maxrssUnit

	// Process user+sys time from rusage
	nowWall := time.Now()
	user := time.Duration(rusage.Utime.Sec)*time.Second + time.Duration(rusage.Utime.Usec)*time.Microsecond
	sys := time.Duration(rusage.Stime.Sec)*time.Second + time.Duration(rusage.Stime.Usec)*time.Microsecond
	nowProc := user + sys
	if haveCPUSample {
		wallDiff := nowWall.Sub(lastCPUWall)
		procDiff := nowProc - lastCPUProc
		if wallDiff > 0 {
			cpu = max(0, procDiff.Seconds()/wallDiff.Seconds()*100)
		}
	}
	lastCPUWall = nowWall
	lastCPUProc = nowProc
	haveCPUSample = true
	return
}
