//go:build !linux && !darwin && !windows

package descriptor

func osVersion() string { return "" }
