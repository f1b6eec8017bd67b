//go:build linux

package performance

import (
	"log"
	"syscall"
	"time"
)

// SystemMemory reads system-wide memory state via sysinfo. Buffers count
// as available since the kernel reclaims them under pressure.
func SystemMemory() MemorySnapshot {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		log.Printf("performance: sysinfo failed: %v", err)
		return MemorySnapshot{Timestamp: time.Now()}
	}

	unit := uint64(info.Unit)
	totalMB := info.Totalram * unit / (1024 * 1024)
	availableMB := (info.Freeram + info.Bufferram) * unit / (1024 * 1024)

	return MemorySnapshot{
		Timestamp:   time.Now(),
		TotalMB:     totalMB,
		AvailableMB: availableMB,
		UsedMB:      totalMB - availableMB,
	}
}
