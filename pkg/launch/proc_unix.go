//go:build linux || darwin || freebsd || netbsd || openbsd

package launch

import (
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/provide-io/launchkit/pkg/config"
)

func hideWindow(*exec.Cmd) {}

func setPriority(pid int, p config.ProcessPriority) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, p.Niceness())
}
