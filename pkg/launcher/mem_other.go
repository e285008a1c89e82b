//go:build !linux

package launcher

func totalMemoryMiB() int {
	return fallbackMemoryMiB
}
