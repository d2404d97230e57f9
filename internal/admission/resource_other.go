//go:build !linux

package admission

import "runtime"

// systemMemInfo has no portable cross-platform source short of cgo; on
// non-Linux platforms the monitor falls back to the Go runtime's own heap
// statistics as a coarse headroom proxy.
func systemMemInfo() (free, total uint64, err error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapIdle, stats.HeapSys, nil
}
