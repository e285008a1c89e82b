package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/logging"
)

// Runner invokes a Java program and waits for it. A non-zero exit is
// reported through exitCode, not err; err is for failures to run at all.
type Runner interface {
	Run(ctx context.Context, java string, classpath []string, mainClass string, args []string) (output []byte, exitCode int, err error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Dir is the working directory; empty means the current one.
	Dir    string
	Logger hclog.Logger
}

var _ Runner = (*ExecRunner)(nil)

// JoinClasspath joins entries with the platform path-list separator.
func JoinClasspath(entries []string) string {
	return strings.Join(entries, string(filepath.ListSeparator))
}

func (r *ExecRunner) Run(ctx context.Context, java string, classpath []string, mainClass string, args []string) ([]byte, int, error) {
	logger := logging.OrNull(r.Logger)
	argv := append([]string{"-cp", JoinClasspath(classpath), mainClass}, args...)

	cmd := exec.CommandContext(ctx, java, argv...)
	cmd.Dir = r.Dir
	hideWindow(cmd)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.Info("🚀 Executing processor", "main_class", mainClass)
	logger.Debug("🚀 Full command with args", "java", java, "args", argv)

	if err := cmd.Start(); err != nil {
		return nil, -1, fmt.Errorf("failed to start %s: %w", java, err)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Info("⏹️ Processor exited", "code", exitErr.ExitCode())
			return out.Bytes(), exitErr.ExitCode(), nil
		}
		return out.Bytes(), -1, fmt.Errorf("process error: %w", err)
	}
	logger.Debug("✅ Processor completed successfully", "main_class", mainClass)
	return out.Bytes(), 0, nil
}
