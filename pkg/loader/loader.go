// Package loader installs mod loaders into instances. Each loader kind has
// one strategy: a download phase that produces a descriptor patch plus the
// downloads it needs, and for some kinds an install phase that runs the
// loader's processors or the OptiFine patcher.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/archive"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
	"github.com/provide-io/launchkit/pkg/reconcile"
	"github.com/provide-io/launchkit/pkg/source"
)

// Patch priorities. OptiFine uses a fixed sentinel above any loader so
// its main class and tweak arguments win.
const (
	LoaderPatchPriority   = 5000
	OptiFinePatchPriority = 10000
)

const (
	VanillaMainClass       = "net.minecraft.client.main.Main"
	LaunchWrapperMainClass = "net.minecraft.launchwrapper.Launch"
)

// JavaSelector picks the runtime executable the install phase runs on.
type JavaSelector func(ctx context.Context, inst instance.Instance, requiredMajor int) (string, error)

// Installer drives loader installation.
type Installer struct {
	Meta      Meta
	Sources   source.Priority
	Scheduler download.Scheduler
	Archives  archive.Reader
	Runner    Runner
	// Reconciler computes the library downloads of a new patch.
	Reconciler *reconcile.Reconciler
	Java       JavaSelector
	// Isolated reports the effective version isolation of an instance;
	// nil means isolated.
	Isolated func(inst instance.Instance) bool
	Logger   hclog.Logger
}

// New returns an Installer with the zip archive reader and exec runner.
func New(meta Meta, sources source.Priority, scheduler download.Scheduler, rec *reconcile.Reconciler, java JavaSelector, logger hclog.Logger) *Installer {
	logger = logging.OrNull(logger).Named("loader")
	return &Installer{
		Meta:       meta,
		Sources:    sources,
		Scheduler:  scheduler,
		Archives:   archive.Zip{},
		Runner:     &ExecRunner{Logger: logger},
		Reconciler: rec,
		Java:       java,
		Logger:     logger,
	}
}

func (in *Installer) logger() hclog.Logger {
	return logging.OrNull(in.Logger)
}

func (in *Installer) isolated(inst instance.Instance) bool {
	if in.Isolated == nil {
		return true
	}
	return in.Isolated(inst)
}

// Target is the instance a download phase works on.
type Target struct {
	ID          string
	GameVersion string
	Loader      instance.ModLoader
	Layout      *instance.Layout
	// FabricAPI also downloads the Fabric API mod into the mods directory.
	FabricAPI bool
}

// Plan is the outcome of a download phase: patches to set on the
// descriptor and the files to fetch before the instance is usable.
type Plan struct {
	Patches   []descriptor.Descriptor
	Downloads []download.Request
}

// Apply sets every patch of p on d.
func (p *Plan) Apply(d *descriptor.Descriptor) {
	for _, patch := range p.Patches {
		d.SetPatch(patch)
	}
}

// Install runs the download phase of t.Loader against d, the instance's
// current descriptor, which is not modified.
func (in *Installer) Install(ctx context.Context, t Target, d *descriptor.Descriptor) (*Plan, error) {
	plan := &Plan{}
	var err error
	switch t.Loader.Kind {
	case instance.LoaderNone:
	case instance.LoaderFabric:
		err = in.installFabric(ctx, t, d, plan)
	case instance.LoaderForge, instance.LoaderLegacyForge, instance.LoaderNeoForge:
		err = in.installForge(ctx, t, d, plan)
	default:
		err = fmt.Errorf("%w: %s", launcherr.ErrUnsupportedLoader, t.Loader.Kind)
	}
	if err != nil {
		return nil, err
	}
	if t.Loader.OptiFine != nil {
		req, err := in.optiFineInstallerDownload(t)
		if err != nil {
			return nil, err
		}
		plan.Downloads = append(plan.Downloads, req)
	}
	in.logger().Info("📋 loader download phase planned",
		"instance", t.ID, "kind", t.Loader.Kind, "version", t.Loader.Version,
		"patches", len(plan.Patches), "downloads", len(plan.Downloads))
	return plan, nil
}

// Finish runs the install phase of instance id. An installed loader is a
// no-op; an instance whose install lock is held is rejected. An Installing
// status left by an interrupted run is restarted. Any failure leaves the
// loader in DownloadFailed.
func (in *Installer) Finish(ctx context.Context, reg *instance.Registry, id string) error {
	inst, err := reg.Get(id)
	if err != nil {
		return err
	}
	if inst.ModLoader.Status == instance.StatusInstalled {
		return nil
	}
	layout := inst.Layout(in.isolated(inst))

	locked, err := instance.TryAcquireInstallLock(layout.LockFile(), in.logger())
	if err != nil {
		return fmt.Errorf("acquire install lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s is locked by another process", launcherr.ErrInstallationDuplicated, id)
	}
	defer instance.ReleaseInstallLock(layout.LockFile(), in.logger())

	// with the lock held, a recorded Installing status is stale
	if _, err := reg.ResetStaleInstall(id); err != nil {
		return err
	}
	inst, proceed, err := reg.BeginInstall(id)
	if err != nil || !proceed {
		return err
	}

	logger := in.logger().With("instance", id, "kind", inst.ModLoader.Kind)
	logger.Info("🔧 finishing loader install")
	if err := in.finish(ctx, inst, layout); err != nil {
		logger.Error("❌ loader install failed", "error", err)
		if _, serr := reg.SetStatus(id, instance.StatusDownloadFailed); serr != nil {
			logger.Warn("⚠️ failed to record install failure", "error", serr)
		}
		return err
	}
	if _, err := reg.SetStatus(id, instance.StatusInstalled); err != nil {
		return err
	}
	logger.Info("✅ loader installed")
	return nil
}

func (in *Installer) finish(ctx context.Context, inst instance.Instance, layout *instance.Layout) error {
	d, err := descriptor.Load(layout.Descriptor())
	if err != nil {
		return err
	}
	eff := descriptor.Resolve(d)

	var java string
	selectJava := func() (string, error) {
		if java != "" {
			return java, nil
		}
		if in.Java == nil {
			return "", launcherr.ErrRuntimeNotFound
		}
		j, err := in.Java(ctx, inst, eff.RequiredJavaMajor())
		java = j
		return j, err
	}

	profile, err := loadStoredProfile(layout.InstallProfile())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if inst.ModLoader.Kind.IsForgeFamily() {
			return fmt.Errorf("%w: no install profile for %s", launcherr.ErrLoaderNotDownloaded, inst.ID)
		}
	case err != nil:
		return err
	default:
		if err := in.runProfile(ctx, inst, layout, profile, selectJava); err != nil {
			return err
		}
	}

	if inst.ModLoader.OptiFine != nil {
		if err := in.finishOptiFine(ctx, inst, layout, d, selectJava); err != nil {
			return err
		}
	}

	if err := os.Remove(layout.InstallProfile()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		in.logger().Warn("⚠️ failed to remove install profile", "error", err)
	}
	return nil
}

// missingDownloads returns the downloads needed for libs, skipping those
// for which skip reports true and those without a download URL, which
// are produced locally.
func (in *Installer) missingDownloads(ctx context.Context, libs []descriptor.Library, libDir string, skip func(path string) bool) ([]download.Request, error) {
	var keep []descriptor.Library
	for _, lib := range libs {
		a, err := lib.MainArtifact()
		if err != nil {
			in.logger().Debug("⚠️ skipping library with bad coordinate", "name", lib.Name, "error", err)
			continue
		}
		if a.URL == "" || (skip != nil && skip(a.Path)) {
			continue
		}
		keep = append(keep, lib)
	}
	if len(keep) == 0 {
		return nil, nil
	}
	return in.Reconciler.MissingLibraryDownloads(ctx, &descriptor.Descriptor{Libraries: keep}, libDir, false)
}

// extendArguments returns base followed by extra. base is not modified.
func extendArguments(base, extra *descriptor.Arguments) *descriptor.Arguments {
	if base == nil && extra == nil {
		return nil
	}
	out := &descriptor.Arguments{}
	if base != nil {
		out.Game = append(out.Game, base.Game...)
		out.JVM = append(out.JVM, base.JVM...)
	}
	if extra != nil {
		out.Game = append(out.Game, extra.Game...)
		out.JVM = append(out.JVM, extra.JVM...)
	}
	return out
}

// RemoveFabricAPIMods deletes Fabric API jars from modsDir. A missing
// directory is not an error.
func RemoveFabricAPIMods(modsDir string) (int, error) {
	entries, err := os.ReadDir(modsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() || !strings.HasPrefix(name, "fabric-api") {
			continue
		}
		if !strings.HasSuffix(name, ".jar") && !strings.HasSuffix(name, ".jar.disabled") {
			continue
		}
		if err := os.Remove(filepath.Join(modsDir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
