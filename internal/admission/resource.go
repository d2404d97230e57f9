package admission

// ResourceMonitor answers ShouldAcceptRequest (spec §4.4 step 2): a
// platform-aware headroom check, grounded on ais/daemon.go's startup use
// of sys.Mem()/sys.NumCPU() to reason about available headroom before
// admitting work.
type ResourceMonitor interface {
	ShouldAcceptRequest() bool
}

// MemoryHeadroomMonitor refuses admission once available memory headroom
// (as reported by the platform-specific Sysinfo, see resource_linux.go /
// resource_other.go) drops below MinFreeRatio of total.
type MemoryHeadroomMonitor struct {
	MinFreeRatio float64
	sysInfo      func() (free, total uint64, err error)
}

// NewMemoryHeadroomMonitor constructs a monitor using the platform's
// memory statistics source.
func NewMemoryHeadroomMonitor(minFreeRatio float64) *MemoryHeadroomMonitor {
	return &MemoryHeadroomMonitor{MinFreeRatio: minFreeRatio, sysInfo: systemMemInfo}
}

// ShouldAcceptRequest returns false when the free memory ratio is below the
// configured minimum. It consults no other signal.
func (m *MemoryHeadroomMonitor) ShouldAcceptRequest() bool {
	free, total, err := m.sysInfo()
	if err != nil || total == 0 {
		return true // fail open: an unreadable signal should not stall traffic
	}
	ratio := float64(free) / float64(total)
	return ratio >= m.MinFreeRatio
}

// NullMonitor always accepts; used in tests and for platforms/deployments
// with no meaningful pressure signal.
type NullMonitor struct{}

func (NullMonitor) ShouldAcceptRequest() bool { return true }

// CompositeMonitor accepts only if every constituent monitor accepts.
type CompositeMonitor struct {
	Monitors []ResourceMonitor
}

func (c CompositeMonitor) ShouldAcceptRequest() bool {
	for _, m := range c.Monitors {
		if !m.ShouldAcceptRequest() {
			return false
		}
	}
	return true
}
