//go:build linux

package telemetry

import "syscall"

func sampleDisk(root string) (used, total uint64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(root, &stat); err != nil {
		return 0, 0
	}
	total = stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if free > total {
		return 0, total
	}
	return total - free, total
}
