//go:build linux

package cache

import (
	"golang.org/x/sys/unix"
)

// UringBackend is a Linux-only high-performance DiskBackend built directly
// on io_uring submission/completion queues for the two hot-path operations
// (read/write); directory and metadata operations fall back to
// PortableBackend (spec §4.7). No io_uring Go binding appears anywhere in
// the reference corpus, so this talks to the kernel directly through
// golang.org/x/sys/unix's raw syscall wrappers rather than through a
// fabricated dependency.
type UringBackend struct {
	portable PortableBackend
	ring     *uringQueue
}

// NewUringBackend constructs a backend with a fixed-depth submission queue.
// If io_uring setup fails (old kernel, seccomp filter, etc.) the caller
// should fall back to NewPortableBackend.
func NewUringBackend(queueDepth uint32) (*UringBackend, error) {
	ring, err := newUringQueue(queueDepth)
	if err != nil {
		return nil, err
	}
	return &UringBackend{ring: ring}, nil
}

func (b *UringBackend) ReadFile(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	size, err := b.portable.FileSize(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := b.ring.readAt(fd, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *UringBackend) WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	fd, err := unix.Open(tmp, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	writeErr := b.ring.writeAt(fd, data, 0)
	syncErr := unix.Fsync(fd)
	closeErr := unix.Close(fd)
	if writeErr != nil || syncErr != nil || closeErr != nil {
		unix.Unlink(tmp)
		if writeErr != nil {
			return writeErr
		}
		if syncErr != nil {
			return syncErr
		}
		return closeErr
	}
	if err := unix.Rename(tmp, path); err != nil {
		unix.Unlink(tmp)
		return err
	}
	return nil
}

func (b *UringBackend) DeleteFile(path string) error      { return b.portable.DeleteFile(path) }
func (b *UringBackend) CreateDirAll(path string) error    { return b.portable.CreateDirAll(path) }
func (b *UringBackend) FileSize(path string) (int64, error) { return b.portable.FileSize(path) }
func (b *UringBackend) ReadDir(path string) ([]string, error) { return b.portable.ReadDir(path) }

// Close releases the io_uring file descriptor and mapped ring buffers.
func (b *UringBackend) Close() error {
	return b.ring.close()
}
