package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/launch"
	"github.com/provide-io/launchkit/pkg/launcherr"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"crash", fmt.Errorf("%w: exit code 1", errGameCrashed), ExitGameCrashed},
		{"setup", fmt.Errorf("%w: %w", errSetup, errors.New("bad toml")), ExitConfigError},
		{"incomplete", launcherr.ErrFilesIncomplete, ExitFilesIncomplete},
		{"processor", &launcherr.ProcessorError{Index: 2, ExitCode: 1}, ExitExecutionError},
		{"patcher", fmt.Errorf("optifine: %w", launcherr.ErrPatcherFailed), ExitExecutionError},
		{"download", fmt.Errorf("%w: timeout", launcherr.ErrDownloadFailed), ExitNetworkError},
		{"not found", fmt.Errorf("%w: default:x", launcherr.ErrInstanceNotFound), ExitInvalidArgs},
		{"other", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestLoaderFlags(t *testing.T) {
	ml, err := loaderFlags{kind: "Fabric", version: "0.15.7"}.modLoader("1.20.1")
	require.NoError(t, err)
	require.Equal(t, instance.ModLoader{Kind: instance.LoaderFabric, Version: "0.15.7"}, ml)

	ml, err = loaderFlags{kind: "none", optifine: "HD_U_I6"}.modLoader("1.20.1")
	require.NoError(t, err)
	want := instance.ModLoader{
		Kind:     instance.LoaderNone,
		OptiFine: &instance.OptiFine{Filename: "OptiFine_1.20.1_HD_U_I6.jar", Version: "HD_U_I6"},
	}
	if diff := cmp.Diff(want, ml); diff != "" {
		t.Errorf("modLoader mismatch (-want +got):\n%s", diff)
	}

	_, err = loaderFlags{kind: "forge"}.modLoader("1.20.1")
	require.ErrorIs(t, err, launcherr.ErrUnsupportedLoader)

	_, err = loaderFlags{kind: "rift", version: "1"}.modLoader("1.13")
	require.ErrorIs(t, err, launcherr.ErrUnsupportedLoader)
}

// fakeStates reports an exit once exitAfter polls are reached or after
// a cancel.
type fakeStates struct {
	mu        sync.Mutex
	polls     int
	exitAfter int
	cancels   int
}

func (f *fakeStates) LaunchState(id int64) (launch.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	st := launch.State{ID: id, Step: launch.StepLaunch, PID: 4242}
	switch {
	case f.cancels > 0:
		st.Step, st.Exited, st.ExitCode = launch.StepCancelled, true, 137
	case f.exitAfter > 0 && f.polls >= f.exitAfter:
		st.Exited, st.ExitCode = true, 1
	}
	return st, nil
}

func (f *fakeStates) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func TestWaitForExit(t *testing.T) {
	exitPollInterval = time.Millisecond

	src := &fakeStates{exitAfter: 3}
	st, err := waitForExit(context.Background(), src, 7)
	require.NoError(t, err)
	require.True(t, st.Crashed())
	require.Equal(t, int64(7), st.ID)
	require.Zero(t, src.cancels)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src = &fakeStates{}
	st, err = waitForExit(ctx, src, 8)
	require.NoError(t, err)
	require.True(t, st.Cancelled())
	require.False(t, st.Crashed())
	require.Equal(t, 1, src.cancels)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"instance", "create"},
		{"instance", "rename"},
		{"runtime", "list"},
		{"install", "finish"},
		{"install", "check-change"},
		{"install", "change"},
		{"account", "add-offline"},
		{"validate-files"},
		{"launch"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}
