//go:build !windows

package deletion

import "golang.org/x/sys/unix"

// freeSpace returns the bytes available to unprivileged writes at path.
func freeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
