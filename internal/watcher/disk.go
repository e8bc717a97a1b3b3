package watcher

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// EnsureFreeSpace reports an error when the filesystem holding dir has less
// than minBytes available. minBytes of zero disables the check.
func EnsureFreeSpace(dir string, minBytes uint64) error {
	if minBytes == 0 {
		return nil
	}

	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("statfs %s: %w", dir, err)
	}

	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free < minBytes {
		return fmt.Errorf("insufficient disk space on %s: %d bytes free, need %d", dir, free, minBytes)
	}
	return nil
}
