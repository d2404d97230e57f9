package cache

import (
	"os"

	"github.com/karrick/godirwalk"
)

// DiskBackend is the filesystem abstraction the cache depends on. Two
// implementations exist per spec §4.7: a portable one over stdlib os, and a
// Linux-only io_uring-backed one; neither is referenced directly by the
// request pipeline, only through this interface.
type DiskBackend interface {
	ReadFile(path string) ([]byte, error)
	WriteFileAtomic(path string, data []byte) error
	DeleteFile(path string) error
	CreateDirAll(path string) error
	FileSize(path string) (int64, error)
	ReadDir(path string) ([]string, error) // entry names, not full paths
}

// PortableBackend implements DiskBackend over the host's standard
// filesystem primitives. Atomic write follows cmn/jsp/file.go's pattern:
// write to "<path>.tmp", fsync, rename.
type PortableBackend struct{}

// NewPortableBackend constructs the default, platform-independent backend.
func NewPortableBackend() *PortableBackend {
	return &PortableBackend{}
}

func (PortableBackend) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (PortableBackend) WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (PortableBackend) DeleteFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (PortableBackend) CreateDirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (PortableBackend) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadDir uses godirwalk's directory-entry-name reader, which avoids the
// per-entry Lstat calls os.ReadDir performs on most platforms -- useful
// here because recovery (DiskCache.ValidateAndRepair) may scan a directory
// with hundreds of thousands of cache entries on startup.
func (PortableBackend) ReadDir(path string) ([]string, error) {
	names, err := godirwalk.ReadDirnames(path, nil)
	if err != nil {
		return nil, err
	}
	return names, nil
}
