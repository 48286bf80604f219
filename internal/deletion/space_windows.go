//go:build windows

package deletion

import "golang.org/x/sys/windows"

// freeSpace returns the bytes available to unprivileged writes at path.
func freeSpace(path string) (uint64, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
