//go:build windows

package launch

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/provide-io/launchkit/pkg/config"
)

const createNoWindow = 0x08000000

func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: createNoWindow}
}

func priorityClass(p config.ProcessPriority) uint32 {
	switch p {
	case config.PriorityLow:
		return windows.IDLE_PRIORITY_CLASS
	case config.PriorityBelowNormal:
		return windows.BELOW_NORMAL_PRIORITY_CLASS
	case config.PriorityAboveNormal:
		return windows.ABOVE_NORMAL_PRIORITY_CLASS
	case config.PriorityHigh:
		return windows.HIGH_PRIORITY_CLASS
	default:
		return windows.NORMAL_PRIORITY_CLASS
	}
}

func setPriority(pid int, p config.ProcessPriority) error {
	h, err := windows.OpenProcess(windows.PROCESS_SET_INFORMATION, false, uint32(pid))
	if err != nil {
		return err
	}
	defer func() { _ = windows.CloseHandle(h) }()
	return windows.SetPriorityClass(h, priorityClass(p))
}
