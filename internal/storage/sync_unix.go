//go:build linux

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes file data without forcing a metadata update where
// the platform distinguishes the two.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
