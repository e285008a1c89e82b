//go:build windows

package descriptor

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// osVersion returns major.minor, e.g. "10.0".
func osVersion() string {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("%d.%d", v.MajorVersion, v.MinorVersion)
}
