//go:build linux

package cache

import "go.uber.org/zap"

// NewDefaultBackend picks the io_uring backend on Linux, falling back to
// the portable backend if ring setup fails (e.g. seccomp profiles that
// block io_uring syscalls, or kernels built without CONFIG_IO_URING).
func NewDefaultBackend(queueDepth uint32, log *zap.Logger) DiskBackend {
	b, err := NewUringBackend(queueDepth)
	if err != nil {
		if log != nil {
			log.Warn("io_uring backend unavailable, falling back to portable cache backend", zap.Error(err))
		}
		return NewPortableBackend()
	}
	return b
}
