package admission

import (
	"sync"
	"time"

	"github.com/lufia/iostat"
)

// DiskPressureMonitor refuses admission when disk I/O has been saturated
// (busy-time ratio) over the last sampling window, using
// github.com/lufia/iostat (teacher dependency) for drive statistics —
// the same role it plays as an available-but-unexercised dependency in
// the teacher's go.mod, here given an actual call site as a secondary
// admission signal alongside memory headroom.
type DiskPressureMonitor struct {
	MaxBusyRatio float64

	mu       sync.Mutex
	prev     map[string]iostatSample
	prevTime time.Time
}

type iostatSample struct {
	busy time.Duration
}

// NewDiskPressureMonitor constructs a monitor that rejects admission once
// any drive's busy-time ratio since the last sample exceeds maxBusyRatio.
func NewDiskPressureMonitor(maxBusyRatio float64) *DiskPressureMonitor {
	return &DiskPressureMonitor{MaxBusyRatio: maxBusyRatio, prev: make(map[string]iostatSample)}
}

// ShouldAcceptRequest samples drive stats and compares the delta in busy
// time against the elapsed wall-clock time since the previous sample.
func (m *DiskPressureMonitor) ShouldAcceptRequest() bool {
	stats, err := iostat.ReadDriveStats()
	if err != nil {
		return true // no usable signal, fail open
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(m.prevTime)
	accept := true
	if m.prevTime.IsZero() || elapsed <= 0 {
		elapsed = 0
	}

	next := make(map[string]iostatSample, len(stats))
	for _, d := range stats {
		cur := iostatSample{busy: d.BusyTime}
		next[d.Name] = cur
		if prior, ok := m.prev[d.Name]; ok && elapsed > 0 {
			busyDelta := cur.busy - prior.busy
			ratio := float64(busyDelta) / float64(elapsed)
			if ratio > m.MaxBusyRatio {
				accept = false
			}
		}
	}

	m.prev = next
	m.prevTime = now
	return accept
}
