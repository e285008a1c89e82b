//go:build linux

package launcher

import "golang.org/x/sys/unix"

// totalMemoryMiB reports physical memory, or fallbackMemoryMiB when the
// kernel cannot be asked.
func totalMemoryMiB() int {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fallbackMemoryMiB
	}
	return int(uint64(info.Totalram) * uint64(info.Unit) / (1 << 20))
}
