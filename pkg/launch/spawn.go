package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/logging"
)

// Spec describes the game process to start.
type Spec struct {
	Path string
	Args []string
	Dir  string
	// Env is added to the launcher's own environment.
	Env []string
	// Output receives stdout and stderr.
	Output io.Writer
}

// Process is a started game.
type Process interface {
	PID() int
	// Wait blocks until exit and returns the exit code.
	Wait() (int, error)
	Kill() error
}

// Spawner starts game processes.
type Spawner interface {
	Spawn(spec Spec) (Process, error)
}

// ExecSpawner starts processes with os/exec. The game is not tied to any
// context: it outlives the step that started it.
type ExecSpawner struct {
	Logger hclog.Logger
}

var _ Spawner = (*ExecSpawner)(nil)

func (s *ExecSpawner) Spawn(spec Spec) (Process, error) {
	logger := logging.OrNull(s.Logger)
	path := resolveExecutable(spec.Path, logger)

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for _, kv := range spec.Env {
		k, v, _ := strings.Cut(kv, "=")
		cmd.Env = setEnv(cmd.Env, k, v)
	}
	cmd.Stdout = spec.Output
	cmd.Stderr = spec.Output
	hideWindow(cmd)
	logEnvironmentTrace(cmd.Env, logger)

	logger.Debug("🔄 Using spawn mode - child process will be created")
	logger.Info("🚀 Executing command", "path", cmd.Path)
	logger.Debug("🚀 Full command with args", "args", redactArgs(spec.Args), "cwd", cmd.Dir)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (int, error) {
	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("process error: %w", err)
	}
	return 0, nil
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// resolveExecutable returns executable unchanged when it is a path, and
// otherwise looks it up in PATH.
func resolveExecutable(executable string, logger hclog.Logger) string {
	if filepath.IsAbs(executable) || strings.ContainsRune(executable, filepath.Separator) {
		return executable
	}
	if resolved, err := exec.LookPath(executable); err == nil {
		logger.Debug("✅ Resolved executable via PATH", "input", executable, "resolved", resolved)
		return resolved
	}
	logger.Debug("⚠️ Could not resolve executable in PATH, using as-is", "executable", executable)
	return executable
}

// runHook runs a user command line through the platform shell and waits
// for it. Output goes to the launcher log.
func runHook(ctx context.Context, line, dir string, env []string, logger hclog.Logger) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", line)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", line)
	}
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	hideWindow(cmd)

	logger.Debug("🏃 Running hook command", "command", line, "cwd", dir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Warn("⚠️ Hook command failed", "command", line, "output", strings.TrimSpace(string(output)), "error", err)
		return err
	}
	return nil
}
