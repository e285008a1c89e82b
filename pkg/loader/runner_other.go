//go:build !windows

package loader

import "os/exec"

func hideWindow(*exec.Cmd) {}
