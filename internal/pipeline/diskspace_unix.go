//go:build unix

package pipeline

import "syscall"

// availableDiskBytes reports free space on the filesystem containing path,
// or -1 if it can't be determined (never fatal — spec §4.10 only warns).
func availableDiskBytes(path string) int64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return -1
	}
	return int64(stat.Bavail) * int64(stat.Bsize)
}
