//go:build !linux

package cache

import "go.uber.org/zap"

// NewDefaultBackend returns the portable backend on non-Linux platforms;
// io_uring has no equivalent there.
func NewDefaultBackend(queueDepth uint32, log *zap.Logger) DiskBackend {
	return NewPortableBackend()
}
