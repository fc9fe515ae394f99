// prealloc_other.go
//go:build !linux

package storage

import "os"

func preallocate(file *os.File, size int64) error {
	return file.Truncate(size)
}

func fsyncData(file *os.File) error {
	return file.Sync()
}
