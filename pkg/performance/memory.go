package performance

import (
	"log"
	"runtime"
	"time"
)

// MemorySnapshot is system memory state at one point in time, in MB.
type MemorySnapshot struct {
	Timestamp   time.Time
	TotalMB     uint64
	AvailableMB uint64
	UsedMB      uint64
}

// LowMemory reports whether available system memory has fallen below the
// threshold. The frame loop uses this to return heap to the OS early on
// 1-2GB boards. Never trips when the platform cannot report memory.
func LowMemory(thresholdMB uint64) bool {
	snap := SystemMemory()
	return snap.TotalMB > 0 && snap.AvailableMB < thresholdMB
}

// LogMemory writes one line of system plus Go-heap memory state.
func LogMemory() {
	sys := SystemMemory()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Printf("performance: mem total=%dMB avail=%dMB heap=%dMB gc=%d",
		sys.TotalMB, sys.AvailableMB, m.Alloc/(1024*1024), m.NumGC)
}
