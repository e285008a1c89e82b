package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/logging"
)

// IsProcessRunning checks if a process with given PID is still running
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything
	return process.Signal(syscall.Signal(0)) == nil
}

// TryAcquireInstallLock takes the PID lock at path. It returns false when
// another live process holds it. Locks left by dead processes are removed.
func TryAcquireInstallLock(path string, logger hclog.Logger) (bool, error) {
	logger = logging.OrNull(logger)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		oldPid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		switch {
		case perr != nil:
			logger.Info("🧹 Removing invalid install lock (couldn't parse PID)", "path", path)
			_ = os.Remove(path)
		case oldPid == os.Getpid():
			logger.Debug("🔒 Install lock already held by this process", "path", path)
			return false, nil
		case IsProcessRunning(oldPid):
			logger.Debug("🔒 Install lock held by active process", "pid", oldPid)
			return false, nil
		default:
			logger.Info("🧹 Removing stale install lock from dead process", "pid", oldPid)
			_ = os.Remove(path)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			logger.Debug("🔒 Install lock taken concurrently", "path", path)
			return false, nil
		}
		return false, err
	}
	defer func() { _ = file.Close() }()

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		_ = os.Remove(path)
		return false, err
	}
	logger.Debug("🔒 Acquired install lock", "path", path, "pid", os.Getpid())
	return true, nil
}

// ReleaseInstallLock removes the lock at path.
func ReleaseInstallLock(path string, logger hclog.Logger) {
	logger = logging.OrNull(logger)
	if err := os.Remove(path); err != nil {
		logger.Debug("⚠️ Failed to remove install lock", "error", err)
		return
	}
	logger.Debug("🔓 Released install lock", "path", path)
}
