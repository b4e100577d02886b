//go:build linux || darwin

package usecase

import "syscall"

// diskFreeBytes reports the free space on the filesystem holding path. The
// upload guard compares it against the configured floor before accepting new
// audio.
func diskFreeBytes(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	// Bavail, not Bfree: count only what an unprivileged writer can use.
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
