package instance

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/launcherr"
)

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Level: hclog.Trace, Output: os.Stderr})
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to LoaderStatus
		ok       bool
	}{
		{StatusNotDownloaded, StatusDownloading, true},
		{StatusDownloading, StatusInstalling, true},
		{StatusInstalling, StatusInstalled, true},
		{StatusDownloading, StatusDownloadFailed, true},
		{StatusInstalling, StatusDownloadFailed, true},
		{StatusDownloadFailed, StatusDownloading, true},
		{StatusDownloading, StatusNotDownloaded, true},
		{StatusNotDownloaded, StatusDownloadFailed, false},
		{StatusInstalled, StatusInstalling, false},
		{StatusDownloadFailed, StatusInstalled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"→"+string(tt.to), func(t *testing.T) {
			m := ModLoader{Kind: LoaderForge, Status: tt.from}
			err := m.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				require.Equal(t, tt.to, m.Status)
				return
			}
			require.ErrorIs(t, err, launcherr.ErrInvalidTransition)
			require.Equal(t, tt.from, m.Status)
		})
	}

	m := ModLoader{Kind: LoaderForge, Status: StatusInstalling}
	require.ErrorIs(t, m.Transition(StatusInstalling), launcherr.ErrInstallationDuplicated)
}

func TestInitialStatus(t *testing.T) {
	require.Equal(t, StatusInstalled, ModLoader{Kind: LoaderNone}.InitialStatus())
	require.Equal(t, StatusInstalled, ModLoader{Kind: LoaderFabric}.InitialStatus())
	require.Equal(t, StatusNotDownloaded, ModLoader{Kind: LoaderNeoForge}.InitialStatus())
	require.Equal(t, StatusNotDownloaded, ModLoader{Kind: LoaderNone, OptiFine: &OptiFine{Version: "HD_U_I6"}}.InitialStatus())
}

func TestParseLoaderKind(t *testing.T) {
	k, err := ParseLoaderKind("NeoForge")
	require.NoError(t, err)
	require.Equal(t, LoaderNeoForge, k)
	k, err = ParseLoaderKind("Unknown")
	require.NoError(t, err)
	require.Equal(t, LoaderNone, k)
	_, err = ParseLoaderKind("rift")
	require.ErrorIs(t, err, launcherr.ErrUnsupportedLoader)
}

func TestLayout(t *testing.T) {
	isolated := NewLayout("/games/.minecraft", "pack", true)
	require.Equal(t, filepath.Join("/games/.minecraft", "versions", "pack"), isolated.Root())
	require.Equal(t, filepath.Join("/games/.minecraft", "versions", "pack", "pack.json"), isolated.Descriptor())
	require.Equal(t, filepath.Join("/games/.minecraft", "versions", "pack", "mods"), isolated.Mods())
	require.Equal(t, filepath.Join("/games/.minecraft", "libraries"), isolated.Libraries())

	shared := NewLayout("/games/.minecraft", "pack", false)
	require.Equal(t, "/games/.minecraft", shared.Root())
	require.Equal(t, filepath.Join("/games/.minecraft", "mods"), shared.Mods())
	require.Equal(t, isolated.Natives(), shared.Natives())
}

func newTestInstance(t *testing.T, gameDir, name string, kind LoaderKind) Instance {
	t.Helper()
	layout := NewLayout(gameDir, name, true)
	require.NoError(t, descriptor.Save(layout.Descriptor(), &descriptor.Descriptor{ID: name, Jar: name}))
	require.NoError(t, os.WriteFile(layout.ClientJar(), []byte("jar"), 0o644))
	ml := ModLoader{Kind: kind}
	ml.Status = ml.InitialStatus()
	return Instance{
		ID:          MakeID("default", name),
		Name:        name,
		Version:     "1.20.1",
		VersionPath: layout.VersionPath(),
		ModLoader:   ml,
	}
}

func TestRegistryAddUpdatePersists(t *testing.T) {
	gameDir := t.TempDir()
	r := NewRegistry(testLogger())
	inst := newTestInstance(t, gameDir, "survival", LoaderForge)
	require.NoError(t, r.Add(inst))
	require.ErrorIs(t, r.Add(inst), launcherr.ErrConflictName)

	updated, err := r.Update(inst.ID, func(i *Instance) error {
		i.Description = "weekend world"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "weekend world", updated.Description)

	onDisk, err := LoadRecord(filepath.Join(inst.VersionPath, ConfigFileName))
	require.NoError(t, err)
	require.Equal(t, "weekend world", onDisk.Description)

	_, err = r.Update(inst.ID, func(i *Instance) error {
		i.Description = "discarded"
		return errors.New("boom")
	})
	require.Error(t, err)
	got, err := r.Get(inst.ID)
	require.NoError(t, err)
	require.Equal(t, "weekend world", got.Description)

	_, err = r.Get("default:missing")
	require.ErrorIs(t, err, launcherr.ErrInstanceNotFound)
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewRegistry(testLogger())
	inst := newTestInstance(t, t.TempDir(), "copy", LoaderNone)
	cfg := config.DefaultGameConfig()
	inst.SpecGameConfig = &cfg
	require.NoError(t, r.Add(inst))

	got, err := r.Get(inst.ID)
	require.NoError(t, err)
	got.SpecGameConfig.Performance.MaxMemAllocation = 1
	again, err := r.Get(inst.ID)
	require.NoError(t, err)
	require.Equal(t, 1024, again.SpecGameConfig.Performance.MaxMemAllocation)
}

func TestBeginInstallGuards(t *testing.T) {
	r := NewRegistry(testLogger())
	inst := newTestInstance(t, t.TempDir(), "forge", LoaderForge)
	require.NoError(t, r.Add(inst))

	claimed, proceed, err := r.BeginInstall(inst.ID)
	require.NoError(t, err)
	require.True(t, proceed)
	require.Equal(t, StatusInstalling, claimed.ModLoader.Status)

	_, _, err = r.BeginInstall(inst.ID)
	require.ErrorIs(t, err, launcherr.ErrInstallationDuplicated)

	_, err = r.SetStatus(inst.ID, StatusDownloadFailed)
	require.NoError(t, err)
	_, _, err = r.BeginInstall(inst.ID)
	require.ErrorIs(t, err, launcherr.ErrLoaderNotDownloaded)

	vanilla := newTestInstance(t, t.TempDir(), "vanilla", LoaderNone)
	require.NoError(t, r.Add(vanilla))
	_, proceed, err = r.BeginInstall(vanilla.ID)
	require.NoError(t, err)
	require.False(t, proceed, "installed loaders are a no-op")
}

func TestBeginDownload(t *testing.T) {
	r := NewRegistry(testLogger())
	inst := newTestInstance(t, t.TempDir(), "pack", LoaderNone)
	require.NoError(t, r.Add(inst))

	fabric := ModLoader{Kind: LoaderFabric, Version: "0.15.7"}
	got, err := r.BeginDownload(inst.ID, fabric)
	require.NoError(t, err)
	require.Equal(t, ModLoader{Kind: LoaderFabric, Version: "0.15.7", Status: StatusDownloading}, got.ModLoader)

	_, err = r.SetStatus(inst.ID, StatusDownloadFailed)
	require.NoError(t, err)
	onDisk, err := LoadRecord(filepath.Join(inst.VersionPath, ConfigFileName))
	require.NoError(t, err)
	require.Equal(t, StatusDownloadFailed, onDisk.ModLoader.Status)

	// a failed download is retried
	got, err = r.BeginDownload(inst.ID, fabric)
	require.NoError(t, err)
	require.Equal(t, StatusDownloading, got.ModLoader.Status)
	got, err = r.SetStatus(inst.ID, fabric.InitialStatus())
	require.NoError(t, err)
	require.Equal(t, StatusInstalled, got.ModLoader.Status)

	forge := newTestInstance(t, t.TempDir(), "forge", LoaderForge)
	require.NoError(t, r.Add(forge))
	_, _, err = r.BeginInstall(forge.ID)
	require.NoError(t, err)
	_, err = r.BeginDownload(forge.ID, ModLoader{Kind: LoaderNone})
	require.ErrorIs(t, err, launcherr.ErrInstallationDuplicated)
}

func TestResetStaleInstallAfterRestart(t *testing.T) {
	gameDir := t.TempDir()
	r := NewRegistry(testLogger())
	inst := newTestInstance(t, gameDir, "forge-pack", LoaderForge)
	require.NoError(t, r.Add(inst))
	_, proceed, err := r.BeginInstall(inst.ID)
	require.NoError(t, err)
	require.True(t, proceed)

	// a new process sees the persisted Installing status
	restarted := NewRegistry(testLogger())
	_, err = restarted.Scan([]config.GameDirectory{{Name: "default", Dir: gameDir}})
	require.NoError(t, err)
	got, err := restarted.Get(inst.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInstalling, got.ModLoader.Status)

	reset, err := restarted.ResetStaleInstall(inst.ID)
	require.NoError(t, err)
	require.True(t, reset)
	_, proceed, err = restarted.BeginInstall(inst.ID)
	require.NoError(t, err)
	require.True(t, proceed)

	reset, err = restarted.ResetStaleInstall("default:missing")
	require.ErrorIs(t, err, launcherr.ErrInstanceNotFound)
	require.False(t, reset)

	vanilla := newTestInstance(t, gameDir, "vanilla", LoaderNone)
	require.NoError(t, restarted.Add(vanilla))
	reset, err = restarted.ResetStaleInstall(vanilla.ID)
	require.NoError(t, err)
	require.False(t, reset)
}

func TestRenameAndDelete(t *testing.T) {
	gameDir := t.TempDir()
	r := NewRegistry(testLogger())
	inst := newTestInstance(t, gameDir, "old", LoaderNone)
	require.NoError(t, r.Add(inst))

	_, err := r.Rename(inst.ID, "bad/name")
	require.ErrorIs(t, err, launcherr.ErrInvalidName)

	renamed, err := r.Rename(inst.ID, "new")
	require.NoError(t, err)
	require.Equal(t, "default:new", renamed.ID)
	layout := NewLayout(gameDir, "new", true)
	require.Equal(t, layout.VersionPath(), renamed.VersionPath)
	require.FileExists(t, layout.ClientJar())
	d, err := descriptor.Load(layout.Descriptor())
	require.NoError(t, err)
	require.Equal(t, "new", d.ID)
	_, err = r.Get(inst.ID)
	require.ErrorIs(t, err, launcherr.ErrInstanceNotFound)

	require.NoError(t, r.Delete(renamed.ID))
	require.NoDirExists(t, layout.VersionPath())
	require.ErrorIs(t, r.Delete(renamed.ID), launcherr.ErrInstanceNotFound)
}

func TestScanDerivesMissingRecords(t *testing.T) {
	gameDir := t.TempDir()
	layout := NewLayout(gameDir, "fabric-pack", true)
	d := &descriptor.Descriptor{
		ID: "fabric-pack",
		Patches: []descriptor.Descriptor{
			{ID: "game", Version: "1.20.1", Priority: descriptor.IntPtr(0)},
			{ID: "fabric", Priority: descriptor.IntPtr(5000), Libraries: []descriptor.Library{{Name: "net.fabricmc:fabric-loader:0.15.7"}}},
		},
	}
	require.NoError(t, descriptor.Save(layout.Descriptor(), d))
	require.NoError(t, os.MkdirAll(filepath.Join(gameDir, "versions", "not-a-version"), 0o755))

	r := NewRegistry(testLogger())
	list, err := r.Scan([]config.GameDirectory{{Name: "main", Dir: gameDir}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "main:fabric-pack", list[0].ID)
	require.Equal(t, "1.20.1", list[0].Version)
	require.Equal(t, LoaderFabric, list[0].ModLoader.Kind)
	require.Equal(t, "0.15.7", list[0].ModLoader.Version)
	require.FileExists(t, layout.ConfigFile())
}

func TestInstallLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v", InstallLockFile)

	ok, err := TryAcquireInstallLock(path, testLogger())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = TryAcquireInstallLock(path, testLogger())
	require.NoError(t, err)
	require.False(t, ok, "held by this process")

	ReleaseInstallLock(path, testLogger())
	require.NoFileExists(t, path)

	// A lock from a pid that cannot exist is stale.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)+"\n"), 0o644))
	ok, err = TryAcquireInstallLock(path, testLogger())
	require.NoError(t, err)
	require.True(t, ok)
	ReleaseInstallLock(path, testLogger())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	ok, err = TryAcquireInstallLock(path, testLogger())
	require.NoError(t, err)
	require.True(t, ok)
}
