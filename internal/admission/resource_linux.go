//go:build linux

package admission

import "golang.org/x/sys/unix"

// systemMemInfo reads total/available RAM via the Sysinfo syscall.
func systemMemInfo() (free, total uint64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, err
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return info.Freeram * unit, info.Totalram * unit, nil
}
