package launcherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessorErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("finish install: %w", &ProcessorError{Index: 1, Jar: "a.jar", MainClass: "a.Main", Err: cause})

	require.ErrorIs(t, err, ErrProcessorFailed)
	require.ErrorIs(t, err, cause)

	var perr *ProcessorError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, 1, perr.Index)
	require.Contains(t, err.Error(), "a.jar")
}

func TestProcessorErrorExitCode(t *testing.T) {
	err := &ProcessorError{Index: 2, Jar: "b.jar", MainClass: "b.Main", ExitCode: 3}
	require.ErrorIs(t, err, ErrProcessorFailed)
	require.Contains(t, err.Error(), "exited with code 3")
}

func TestRecoverable(t *testing.T) {
	require.True(t, Recoverable(fmt.Errorf("validate: %w", ErrFilesIncomplete)))
	require.False(t, Recoverable(ErrNetwork))
	require.False(t, Recoverable(nil))
}
