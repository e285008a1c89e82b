package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/launchkit/pkg/account"
	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/javart"
	"github.com/provide-io/launchkit/pkg/launch"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/loader"
)

const (
	clientURL  = "https://piston-data.mojang.com/v1/objects/0c3ec587af28e5a785c0b4a7b8a30f9a8f78f838/client.jar"
	clientSHA1 = "0c3ec587af28e5a785c0b4a7b8a30f9a8f78f838"
	libRel     = "com/mojang/brigadier/1.1.8/brigadier-1.1.8.jar"
	libURL     = "https://libraries.minecraft.net/" + libRel
)

var release = loader.GameVersion{ID: "1.20.1", Type: "release", URL: "https://piston-meta.mojang.com/v1/packages/1.20.1.json"}

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Level: hclog.Trace})
}

type fakeMeta struct{}

func (fakeMeta) GameVersions(context.Context) ([]loader.GameVersion, error) {
	return []loader.GameVersion{release}, nil
}

func (fakeMeta) GameDescriptor(context.Context, string) (*descriptor.Descriptor, error) {
	return &descriptor.Descriptor{
		ID:          "1.20.1",
		Type:        "release",
		MainClass:   loader.VanillaMainClass,
		JavaVersion: &descriptor.JavaVersion{MajorVersion: 17},
		Downloads:   map[string]descriptor.Artifact{"client": {URL: clientURL, SHA1: clientSHA1}},
		Arguments: &descriptor.Arguments{
			Game: []descriptor.ArgumentItem{descriptor.Plain("--username"), descriptor.Plain("${auth_player_name}")},
			JVM:  []descriptor.ArgumentItem{descriptor.Plain("-cp"), descriptor.Plain("${classpath}")},
		},
		Libraries: []descriptor.Library{{
			Name:      "com.mojang:brigadier:1.1.8",
			Downloads: &descriptor.LibraryDownloads{Artifact: &descriptor.Artifact{Path: libRel, URL: libURL}},
		}},
	}, nil
}

func (fakeMeta) FabricProfile(_ context.Context, _, loaderVersion string) (*descriptor.Descriptor, error) {
	return &descriptor.Descriptor{
		MainClass: "net.fabricmc.loader.impl.launch.knot.KnotClient",
		Libraries: []descriptor.Library{{Name: "net.fabricmc:fabric-loader:" + loaderVersion, URL: "https://maven.fabricmc.net/"}},
	}, nil
}

func (fakeMeta) FabricAPI(context.Context, string) (loader.ModFile, error) {
	return loader.ModFile{URL: "https://cdn.modrinth.com/data/P7dR8mSH/fabric-api-0.92.2+1.20.1.jar", Filename: "fabric-api-0.92.2+1.20.1.jar"}, nil
}

func (fakeMeta) OptiFineBuilds(context.Context, string) ([]loader.OptiFineBuild, error) {
	return nil, nil
}

type fakeValidator struct{ valid bool }

func (f fakeValidator) Validate(context.Context, account.Account) (bool, error) { return f.valid, nil }

func (f fakeValidator) AuthServer(_ context.Context, url string) (account.AuthServer, error) {
	return account.AuthServer{URL: url}, nil
}

type fakeProcess struct {
	once sync.Once
	done chan struct{}
}

func (p *fakeProcess) PID() int { return 31337 }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	return 1, nil
}

func (p *fakeProcess) Kill() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

type fakeSpawner struct{ specs []launch.Spec }

func (f *fakeSpawner) Spawn(spec launch.Spec) (launch.Process, error) {
	f.specs = append(f.specs, spec)
	return &fakeProcess{done: make(chan struct{})}, nil
}

type harness struct {
	app      *App
	recorder *download.Recorder
	spawner  *fakeSpawner
	gameDir  string
}

func newHarness(t *testing.T, valid bool) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = root
	cfg.GameDirs = []config.GameDirectory{{Name: "default", Dir: filepath.Join(root, ".minecraft")}}
	cfg.GlobalGame.Advanced.Workaround.GameFileValidatePolicy = config.ValidateNormal

	recorder := &download.Recorder{}
	spawner := &fakeSpawner{}
	app, err := New(Options{
		ConfigPath:     filepath.Join(root, config.FileName),
		Config:         &cfg,
		Logger:         testLogger(),
		Scheduler:      recorder,
		Meta:           fakeMeta{},
		Spawner:        spawner,
		Validator:      fakeValidator{valid: valid},
		LogDir:         filepath.Join(root, "logs"),
		TotalMemoryMiB: 8192,
	})
	require.NoError(t, err)
	app.Sequencer.Discoverer = nil
	app.Runtimes.Replace([]javart.Runtime{{ExecPath: "/opt/java17/bin/java", MajorVersion: 17, IsLTS: true}})
	return &harness{app: app, recorder: recorder, spawner: spawner, gameDir: cfg.GameDirs[0].Dir}
}

func (h *harness) create(t *testing.T, name string, ml instance.ModLoader, fabricAPI bool) instance.Instance {
	t.Helper()
	inst, err := h.app.CreateInstance(context.Background(), CreateRequest{
		GameDir:   "default",
		Name:      name,
		Game:      release,
		Loader:    ml,
		FabricAPI: fabricAPI,
	})
	require.NoError(t, err)
	return inst
}

func TestNewPreparesGameDirectory(t *testing.T) {
	h := newHarness(t, true)
	require.DirExists(t, filepath.Join(h.gameDir, "versions"))
	require.DirExists(t, filepath.Join(h.gameDir, "libraries"))
	require.Empty(t, h.app.Instances.List())
}

func TestCreateInstanceVanilla(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "alpha", instance.ModLoader{}, false)

	require.Equal(t, "default:alpha", inst.ID)
	require.Equal(t, "1.20.1", inst.Version)
	require.Equal(t, instance.LoaderNone, inst.ModLoader.Kind)
	require.Equal(t, instance.StatusInstalled, inst.ModLoader.Status)

	layout := instance.NewLayout(h.gameDir, "alpha", true)
	groups := h.recorder.Groups()
	require.Len(t, groups, 1)
	require.Equal(t, "game-client?alpha", groups[0].Name)
	require.True(t, groups[0].Waited)
	want := []download.Request{
		{URL: clientURL, Dest: layout.ClientJar(), SHA1: clientSHA1},
		{URL: libURL, Dest: filepath.Join(layout.Libraries(), filepath.FromSlash(libRel))},
	}
	if diff := cmp.Diff(want, groups[0].Requests); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}

	d, err := descriptor.Load(layout.Descriptor())
	require.NoError(t, err)
	require.Equal(t, "alpha", d.ID)
	require.Equal(t, "alpha", d.Jar)
	require.Len(t, d.Patches, 1)
	require.Equal(t, "game", d.Patches[0].ID)
	require.Equal(t, "1.20.1", d.Patches[0].Version)
	require.Equal(t, descriptor.GamePatchPriority, d.Patches[0].PriorityValue())
	require.FileExists(t, layout.ConfigFile())

	_, err = h.app.CreateInstance(context.Background(), CreateRequest{GameDir: "default", Name: "alpha", Game: release})
	require.ErrorIs(t, err, launcherr.ErrConflictName)
	_, err = h.app.CreateInstance(context.Background(), CreateRequest{GameDir: "nowhere", Name: "beta", Game: release})
	require.Error(t, err)
	_, err = h.app.CreateInstance(context.Background(), CreateRequest{GameDir: "default", Name: "bad/name", Game: release})
	require.ErrorIs(t, err, launcherr.ErrInvalidName)
}

func TestCreateInstanceWithOptiFineNeedsInstall(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "shaders", instance.ModLoader{
		OptiFine: &instance.OptiFine{Version: "HD_U_I6", Filename: "OptiFine_1.20.1_HD_U_I6.jar"},
	}, false)
	require.Equal(t, instance.StatusNotDownloaded, inst.ModLoader.Status)

	reqs := h.recorder.Groups()[0].Requests
	last := reqs[len(reqs)-1]
	require.Equal(t, "OptiFine_1.20.1_HD_U_I6.jar", last.Filename)

	_, err := h.app.Sequencer.SelectRuntime(context.Background(), inst.ID)
	require.NoError(t, err)
	require.ErrorIs(t, h.app.Sequencer.ValidateFiles(context.Background()), launcherr.ErrLoaderNotInstalled)
}

func TestCreateInstanceRetryAfterFailedDownload(t *testing.T) {
	h := newHarness(t, true)
	layout := instance.NewLayout(h.gameDir, "alpha", true)
	h.recorder.OnWait = func(g download.Group) error {
		// the client jar lands before the group fails
		require.NoError(t, os.MkdirAll(filepath.Dir(layout.ClientJar()), 0o755))
		require.NoError(t, os.WriteFile(layout.ClientJar(), []byte("partial"), 0o644))
		return errors.New("connection reset")
	}
	req := CreateRequest{GameDir: "default", Name: "alpha", Game: release}

	_, err := h.app.CreateInstance(context.Background(), req)
	require.ErrorIs(t, err, launcherr.ErrDownloadFailed)
	require.NoDirExists(t, layout.VersionPath())
	_, err = h.app.Instances.Get("default:alpha")
	require.ErrorIs(t, err, launcherr.ErrInstanceNotFound)

	h.recorder.OnWait = nil
	inst, err := h.app.CreateInstance(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "default:alpha", inst.ID)
	require.FileExists(t, layout.Descriptor())

	list, err := h.app.RefreshInstances()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "default:alpha", list[0].ID)
}

func TestCreateInstanceKeepsForeignFilesWithoutDescriptor(t *testing.T) {
	h := newHarness(t, true)
	layout := instance.NewLayout(h.gameDir, "alpha", true)
	require.NoError(t, os.MkdirAll(layout.VersionPath(), 0o755))
	require.NoError(t, os.WriteFile(layout.ClientJar(), []byte("stale"), 0o644))

	inst := h.create(t, "alpha", instance.ModLoader{}, false)
	require.Equal(t, instance.StatusInstalled, inst.ModLoader.Status)
	require.FileExists(t, layout.Descriptor())
}

func TestChangeLoaderDownloadFailureIsRecorded(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "alpha", instance.ModLoader{}, false)
	fabric := instance.ModLoader{Kind: instance.LoaderFabric, Version: "0.15.7"}

	var seen []instance.LoaderStatus
	h.recorder.OnWait = func(g download.Group) error {
		cur, err := h.app.Instances.Get(inst.ID)
		require.NoError(t, err)
		seen = append(seen, cur.ModLoader.Status)
		return errors.New("connection reset")
	}
	_, err := h.app.ChangeLoader(context.Background(), inst.ID, fabric, false)
	require.ErrorIs(t, err, launcherr.ErrDownloadFailed)
	require.Equal(t, []instance.LoaderStatus{instance.StatusDownloading}, seen)

	failed, err := h.app.Instances.Get(inst.ID)
	require.NoError(t, err)
	require.Equal(t, instance.LoaderFabric, failed.ModLoader.Kind)
	require.Equal(t, instance.StatusDownloadFailed, failed.ModLoader.Status)

	_, err = h.app.Sequencer.SelectRuntime(context.Background(), inst.ID)
	require.NoError(t, err)
	require.ErrorIs(t, h.app.Sequencer.ValidateFiles(context.Background()), launcherr.ErrLoaderNotInstalled)

	h.recorder.OnWait = nil
	changed, err := h.app.ChangeLoader(context.Background(), inst.ID, fabric, false)
	require.NoError(t, err)
	require.Equal(t, instance.LoaderFabric, changed.ModLoader.Kind)
	require.Equal(t, instance.StatusInstalled, changed.ModLoader.Status)
}

func TestChangeLoaderFromFabric(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "fabric", instance.ModLoader{Kind: instance.LoaderFabric, Version: "0.15.7"}, true)
	require.Equal(t, instance.StatusInstalled, inst.ModLoader.Status)

	layout := instance.NewLayout(h.gameDir, "fabric", true)
	d, err := descriptor.Load(layout.Descriptor())
	require.NoError(t, err)
	require.NotNil(t, d.Patch("fabric"))
	require.Equal(t, "net.fabricmc.loader.impl.launch.knot.KnotClient", descriptor.Resolve(d).MainClass)

	require.NoError(t, os.MkdirAll(layout.Mods(), 0o755))
	for _, name := range []string{"fabric-api-0.92.2+1.20.1.jar", "sodium-0.5.3.jar"} {
		require.NoError(t, os.WriteFile(filepath.Join(layout.Mods(), name), []byte("mod"), 0o644))
	}

	ok, err := h.app.CheckChangeLoader(inst.ID)
	require.NoError(t, err)
	require.True(t, ok)

	changed, err := h.app.ChangeLoader(context.Background(), inst.ID, instance.ModLoader{Kind: instance.LoaderNone}, false)
	require.NoError(t, err)
	require.Equal(t, instance.LoaderNone, changed.ModLoader.Kind)
	require.Equal(t, instance.StatusInstalled, changed.ModLoader.Status)

	require.NoFileExists(t, filepath.Join(layout.Mods(), "fabric-api-0.92.2+1.20.1.jar"))
	require.FileExists(t, filepath.Join(layout.Mods(), "sodium-0.5.3.jar"))

	d, err = descriptor.Load(layout.Descriptor())
	require.NoError(t, err)
	require.Len(t, d.Patches, 1)
	require.Equal(t, "game", d.Patches[0].ID)
	require.Nil(t, d.Patch("fabric"))
	require.Equal(t, loader.VanillaMainClass, descriptor.Resolve(d).MainClass)
	require.Equal(t, "fabric", d.ID)

	groups := h.recorder.Groups()
	require.Equal(t, "change-mod-loader?None ", groups[len(groups)-1].Name)
}

func TestChangeLoaderRequiresPatches(t *testing.T) {
	h := newHarness(t, true)
	layout := instance.NewLayout(h.gameDir, "legacy", true)
	require.NoError(t, descriptor.Save(layout.Descriptor(), &descriptor.Descriptor{ID: "legacy", MainClass: loader.VanillaMainClass}))
	_, err := h.app.RefreshInstances()
	require.NoError(t, err)

	_, err = h.app.CheckChangeLoader("default:legacy")
	require.ErrorIs(t, err, launcherr.ErrChangeLoaderUnsupported)
	_, err = h.app.ChangeLoader(context.Background(), "default:legacy", instance.ModLoader{Kind: instance.LoaderFabric, Version: "0.15.7"}, false)
	require.ErrorIs(t, err, launcherr.ErrChangeLoaderUnsupported)

	_, err = h.app.CheckChangeLoader("default:missing")
	require.ErrorIs(t, err, launcherr.ErrInstanceNotFound)
}

func TestRenameAndDeleteInstance(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "alpha", instance.ModLoader{}, false)

	renamed, err := h.app.RenameInstance(inst.ID, "beta")
	require.NoError(t, err)
	require.Equal(t, "default:beta", renamed.ID)
	newLayout := instance.NewLayout(h.gameDir, "beta", true)
	require.FileExists(t, newLayout.Descriptor())
	require.NoDirExists(t, instance.NewLayout(h.gameDir, "alpha", true).VersionPath())

	_, err = h.app.Instances.Get(inst.ID)
	require.ErrorIs(t, err, launcherr.ErrInstanceNotFound)

	require.NoError(t, h.app.DeleteInstance(renamed.ID))
	require.NoDirExists(t, newLayout.VersionPath())
	require.ErrorIs(t, h.app.DeleteInstance(renamed.ID), launcherr.ErrInstanceNotFound)
}

func TestUpdateAndResetGameConfig(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "alpha", instance.ModLoader{}, false)

	updated, err := h.app.UpdateGameConfig(inst.ID, func(g *config.GameConfig) error {
		g.GameWindow.Resolution.Width = 1920
		return nil
	})
	require.NoError(t, err)
	require.True(t, updated.UseSpecGameConfig)
	require.Equal(t, 1920, updated.SpecGameConfig.GameWindow.Resolution.Width)

	_, err = h.app.UpdateGameConfig(inst.ID, func(g *config.GameConfig) error {
		g.Performance.ProcessPriority = "turbo"
		return nil
	})
	require.Error(t, err)
	cur, err := h.app.Instances.Get(inst.ID)
	require.NoError(t, err)
	require.Equal(t, config.PriorityNormal, cur.SpecGameConfig.Performance.ProcessPriority, "a rejected update changes nothing")

	reset, err := h.app.ResetGameConfig(inst.ID)
	require.NoError(t, err)
	require.Equal(t, 1280, reset.SpecGameConfig.GameWindow.Resolution.Width)
}

func TestFinishInstallOnInstalledLoaderIsNoop(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "alpha", instance.ModLoader{}, false)
	require.NoError(t, h.app.FinishInstall(context.Background(), inst.ID))
	require.ErrorIs(t, h.app.FinishInstall(context.Background(), "default:missing"), launcherr.ErrInstanceNotFound)
}

func TestRefreshRuntimesClearsVanishedJava(t *testing.T) {
	h := newHarness(t, true)
	t.Setenv("PATH", "")
	t.Setenv("JAVA_HOME", "")

	home := filepath.Join(t.TempDir(), "jdk-17")
	java := filepath.Join(home, "bin", "java")
	require.NoError(t, os.MkdirAll(filepath.Dir(java), 0o755))
	require.NoError(t, os.WriteFile(java, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "release"), []byte("JAVA_VERSION=\"17.0.9\"\n"), 0o644))
	h.app.Discoverer.SearchRoots = nil
	h.app.Discoverer.ExtraPaths = []string{java}

	require.NoError(t, h.app.UpdateConfig(func(c *config.LauncherConfig) error {
		c.GlobalGame.GameJava = config.GameJava{ExecPath: "/gone/bin/java"}
		return nil
	}))

	found, err := h.app.RefreshRuntimes(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, 17, found[0].MajorVersion)
	require.True(t, found[0].IsUserAdded)
	require.Equal(t, config.GameJava{Auto: true}, h.app.Config().GlobalGame.GameJava)

	saved, err := config.Load(filepath.Join(h.app.Config().DataDir, config.FileName), testLogger())
	require.NoError(t, err)
	require.True(t, saved.GlobalGame.GameJava.Auto)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	h := newHarness(t, true)
	err := h.app.UpdateConfig(func(c *config.LauncherConfig) error {
		c.GameDirs = nil
		return nil
	})
	require.Error(t, err)
	require.Len(t, h.app.Config().GameDirs, 1)
}

func TestLaunchRepairsThenStarts(t *testing.T) {
	h := newHarness(t, true)
	inst := h.create(t, "alpha", instance.ModLoader{}, false)
	_, err := h.app.AddOfflineAccount("Steve")
	require.NoError(t, err)

	_, err = h.app.Launch(context.Background(), inst.ID, launch.QuickPlay{})
	require.ErrorIs(t, err, launcherr.ErrFilesIncomplete)
	groups := h.recorder.Groups()
	require.Equal(t, launch.RepairGroup(inst.ID), groups[len(groups)-1].Name)
	require.Len(t, groups[len(groups)-1].Requests, 2)

	layout := instance.NewLayout(h.gameDir, "alpha", true)
	for _, path := range []string{layout.ClientJar(), filepath.Join(layout.Libraries(), filepath.FromSlash(libRel))} {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("jar"), 0o644))
	}

	st, err := h.app.Launch(context.Background(), inst.ID, launch.QuickPlay{})
	require.NoError(t, err)
	require.Equal(t, 31337, st.PID)
	require.Equal(t, launch.StepLaunch, st.Step)
	require.Len(t, h.spawner.specs, 1)
	require.Contains(t, h.spawner.specs[0].Args, "Steve")

	require.NoError(t, h.app.Cancel())
	require.Eventually(t, func() bool {
		s, err := h.app.LaunchState(st.ID)
		return err == nil && s.Exited
	}, 2*time.Second, 10*time.Millisecond)
	final, err := h.app.LaunchState(st.ID)
	require.NoError(t, err)
	require.True(t, final.Cancelled())

	dest := filepath.Join(t.TempDir(), "crash.zip")
	require.NoError(t, h.app.ExportCrashReport(st.ID, dest))
	require.FileExists(t, dest)
}

func TestLaunchRejectsExpiredAccount(t *testing.T) {
	h := newHarness(t, false)
	inst := h.create(t, "alpha", instance.ModLoader{}, false)
	require.NoError(t, h.app.UpdateConfig(func(c *config.LauncherConfig) error {
		c.GlobalGame.Advanced.Workaround.GameFileValidatePolicy = config.ValidateDisable
		return nil
	}))

	_, err := h.app.Launch(context.Background(), inst.ID, launch.QuickPlay{})
	require.ErrorIs(t, err, launcherr.ErrAccountNotFound)

	_, err = h.app.AddOfflineAccount("Alex")
	require.NoError(t, err)
	_, err = h.app.Launch(context.Background(), inst.ID, launch.QuickPlay{})
	require.ErrorIs(t, err, launcherr.ErrAccountExpired)
	require.Empty(t, h.spawner.specs)
}

func TestSelectAccount(t *testing.T) {
	h := newHarness(t, true)
	steve, err := h.app.AddOfflineAccount("Steve")
	require.NoError(t, err)
	alex, err := h.app.AddOfflineAccount("Alex")
	require.NoError(t, err)

	sel, err := h.app.Accounts.Selected("")
	require.NoError(t, err)
	require.Equal(t, steve.ID, sel.ID)

	got, err := h.app.SelectAccount("alex")
	require.NoError(t, err)
	require.Equal(t, alex.ID, got.ID)
	sel, err = h.app.Accounts.Selected("")
	require.NoError(t, err)
	require.Equal(t, alex.ID, sel.ID)

	_, err = h.app.SelectAccount("herobrine")
	require.ErrorIs(t, err, launcherr.ErrAccountNotFound)
}

func TestGameVersionLookup(t *testing.T) {
	h := newHarness(t, true)
	v, err := h.app.GameVersion(context.Background(), "1.20.1")
	require.NoError(t, err)
	require.Equal(t, release, v)

	_, err = h.app.GameVersion(context.Background(), "0.0.1")
	require.Error(t, err)
}
