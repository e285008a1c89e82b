//go:build !windows && !linux && !darwin && !freebsd && !netbsd && !openbsd

package launch

import (
	"os/exec"

	"github.com/provide-io/launchkit/pkg/config"
)

func hideWindow(*exec.Cmd) {}

func setPriority(int, config.ProcessPriority) error { return nil }
