// prealloc_linux.go
//go:build linux

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate extends the file to size bytes with real block
// reservation so later page writes cannot fail with ENOSPC.
func preallocate(file *os.File, size int64) error {
	err := unix.Fallocate(int(file.Fd()), 0, 0, size)
	if err == unix.EOPNOTSUPP || err == unix.ENOSYS {
		// Filesystem without fallocate support.
		return file.Truncate(size)
	}
	return err
}

// fsyncData flushes file data without forcing a metadata sync.
func fsyncData(file *os.File) error {
	return unix.Fdatasync(int(file.Fd()))
}
