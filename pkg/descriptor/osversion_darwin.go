//go:build darwin

package descriptor

import "golang.org/x/sys/unix"

// osVersion returns the product version, e.g. "14.4.1".
func osVersion() string {
	v, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return ""
	}
	return v
}
