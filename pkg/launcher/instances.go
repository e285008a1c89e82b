package launcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/loader"
)

// CreateRequest describes a new instance.
type CreateRequest struct {
	// GameDir names a configured game directory.
	GameDir     string
	Name        string
	Description string
	IconSrc     string
	Game        loader.GameVersion
	Loader      instance.ModLoader
	// FabricAPI also installs the Fabric API mod for Fabric instances.
	FabricAPI bool
}

// GameVersion looks id up in the version manifest.
func (a *App) GameVersion(ctx context.Context, id string) (loader.GameVersion, error) {
	versions, err := a.Installer.Meta.GameVersions(ctx)
	if err != nil {
		return loader.GameVersion{}, err
	}
	for _, v := range versions {
		if v.ID == id {
			return v, nil
		}
	}
	return loader.GameVersion{}, fmt.Errorf("unknown game version %q", id)
}

// CreateInstance fetches the game descriptor, records it as the "game"
// patch, downloads the client, libraries, assets and loader files and
// writes the descriptor and instance record. If it fails before the
// descriptor is written, the version directory is removed.
func (a *App) CreateInstance(ctx context.Context, req CreateRequest) (inst instance.Instance, err error) {
	if err := instance.ValidateName(req.Name); err != nil {
		return instance.Instance{}, err
	}
	cfg := a.Config()
	dir, ok := cfg.GameDir(req.GameDir)
	if !ok {
		return instance.Instance{}, fmt.Errorf("unknown game directory %q", req.GameDir)
	}
	base := instance.NewLayout(dir.Dir, req.Name, true)
	if _, err := a.Instances.Get(instance.MakeID(dir.Name, req.Name)); err == nil {
		return instance.Instance{}, fmt.Errorf("%w: %s", launcherr.ErrConflictName, req.Name)
	}
	// files left without a descriptor do not hold the name
	if _, err := os.Stat(base.Descriptor()); err == nil {
		return instance.Instance{}, fmt.Errorf("%w: %s", launcherr.ErrConflictName, req.Name)
	}

	ml := req.Loader
	if ml.Kind == "" {
		ml.Kind = instance.LoaderNone
	}
	ml.Status = ml.InitialStatus()
	inst = instance.Instance{
		ID:          instance.MakeID(dir.Name, req.Name),
		Name:        req.Name,
		Description: req.Description,
		IconSrc:     req.IconSrc,
		Version:     req.Game.ID,
		VersionPath: base.VersionPath(),
		ModLoader:   ml,
	}
	game := inst.GameConfig(cfg.GlobalGame)
	layout := inst.Layout(game.VersionIsolation)
	logger := a.logger.With("instance", inst.ID, "game", req.Game.ID, "loader", ml.Kind)
	committed := false
	defer func() {
		if err == nil || committed {
			return
		}
		if rerr := os.RemoveAll(base.VersionPath()); rerr != nil {
			logger.Warn("⚠️ failed to clean up after failed create", "path", base.VersionPath(), "error", rerr)
			return
		}
		logger.Debug("🧹 removed partial version directory", "path", base.VersionPath())
	}()

	d, err := a.Installer.Meta.GameDescriptor(ctx, req.Game.URL)
	if err != nil {
		return instance.Instance{}, err
	}
	d.ID, d.Jar = req.Name, req.Name
	vanilla := d.Clone()
	vanilla.ID = "game"
	vanilla.Version = req.Game.ID
	vanilla.InheritsFrom = ""
	vanilla.Priority = descriptor.IntPtr(descriptor.GamePatchPriority)
	vanilla.Patches = nil
	d.Patches = append(d.Patches, *vanilla)

	client, ok := d.Downloads["client"]
	if !ok || client.URL == "" {
		return instance.Instance{}, fmt.Errorf("%w: %s has no client download", launcherr.ErrDescriptorParse, req.Game.ID)
	}
	reqs := []download.Request{{URL: client.URL, Dest: layout.ClientJar(), SHA1: client.SHA1}}

	if !game.Advanced.Workaround.DontPatchNatives {
		descriptor.SubstituteNatives(d, a.Reconciler.Platform, descriptor.DefaultNativeSubstitutions)
	}
	libs, err := a.Reconciler.MissingLibraryDownloads(ctx, d, layout.Libraries(), false)
	if err != nil {
		return instance.Instance{}, err
	}
	reqs = append(reqs, libs...)
	assets, err := a.Reconciler.MissingAssetDownloads(ctx, d, layout.Assets(), false)
	if err != nil {
		return instance.Instance{}, err
	}
	reqs = append(reqs, assets...)

	if ml.Kind != instance.LoaderNone || ml.OptiFine != nil {
		plan, err := a.Installer.Install(ctx, loader.Target{
			ID:          inst.ID,
			GameVersion: req.Game.ID,
			Loader:      ml,
			Layout:      layout,
			FabricAPI:   req.FabricAPI,
		}, d)
		if err != nil {
			return instance.Instance{}, err
		}
		plan.Apply(d)
		reqs = append(reqs, plan.Downloads...)
	}

	if err := a.Scheduler.ScheduleAndWait(ctx, "game-client?"+req.Name, reqs); err != nil {
		return instance.Instance{}, fmt.Errorf("%w: %v", launcherr.ErrDownloadFailed, err)
	}
	if err := descriptor.Save(layout.Descriptor(), d); err != nil {
		return instance.Instance{}, err
	}
	committed = true
	if err := a.Instances.Add(inst); err != nil {
		return instance.Instance{}, err
	}
	logger.Info("✨ instance created", "downloads", len(reqs), "status", ml.Status)
	return a.Instances.Get(inst.ID)
}

// RenameInstance renames the instance's version directory and files.
func (a *App) RenameInstance(id, newName string) (instance.Instance, error) {
	return a.Instances.Rename(id, newName)
}

// DeleteInstance removes the instance and its version directory.
func (a *App) DeleteInstance(id string) error {
	return a.Instances.Delete(id)
}

// UpdateGameConfig switches the instance to its own game configuration,
// seeded from the global one, and applies fn to it.
func (a *App) UpdateGameConfig(id string, fn func(*config.GameConfig) error) (instance.Instance, error) {
	global := a.Config().GlobalGame
	return a.Instances.Update(id, func(inst *instance.Instance) error {
		next := global
		if inst.SpecGameConfig != nil {
			next = *inst.SpecGameConfig
		}
		if err := fn(&next); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		inst.UseSpecGameConfig = true
		inst.SpecGameConfig = &next
		return nil
	})
}

// ResetGameConfig replaces the instance's own configuration with a copy
// of the global one.
func (a *App) ResetGameConfig(id string) (instance.Instance, error) {
	global := a.Config().GlobalGame
	return a.Instances.Update(id, func(inst *instance.Instance) error {
		inst.SpecGameConfig = &global
		return nil
	})
}

// CheckChangeLoader reports whether the instance's descriptor keeps the
// patches a loader change is rebuilt from.
func (a *App) CheckChangeLoader(id string) (bool, error) {
	inst, err := a.Instances.Get(id)
	if err != nil {
		return false, err
	}
	if _, err := a.changeableDescriptor(inst); err != nil {
		return false, err
	}
	return true, nil
}

func (a *App) changeableDescriptor(inst instance.Instance) (*descriptor.Descriptor, error) {
	layout := inst.Layout(inst.GameConfig(a.Config().GlobalGame).VersionIsolation)
	d, err := descriptor.Load(layout.Descriptor())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s has no descriptor", launcherr.ErrChangeLoaderUnsupported, inst.ID)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", launcherr.ErrChangeLoaderUnsupported, err)
	case len(d.Patches) == 0:
		return nil, fmt.Errorf("%w: %s has no patches", launcherr.ErrChangeLoaderUnsupported, inst.ID)
	}
	return d, nil
}

// ChangeLoader rebuilds the descriptor from its vanilla patch and installs
// next in place of the current loader. Fabric API mods are removed when
// leaving Fabric with version isolation on. The loader is Downloading while
// its files are fetched and DownloadFailed if that fails; calling
// ChangeLoader again retries.
func (a *App) ChangeLoader(ctx context.Context, id string, next instance.ModLoader, fabricAPI bool) (instance.Instance, error) {
	inst, err := a.Instances.Get(id)
	if err != nil {
		return instance.Instance{}, err
	}
	cur, err := a.changeableDescriptor(inst)
	if err != nil {
		return instance.Instance{}, err
	}
	game := inst.GameConfig(a.Config().GlobalGame)
	layout := inst.Layout(game.VersionIsolation)
	if next.Kind == "" {
		next.Kind = instance.LoaderNone
	}
	logger := a.logger.With("instance", id, "from", inst.ModLoader.Kind, "to", next.Kind)

	if _, err := a.Instances.BeginDownload(id, next); err != nil {
		return instance.Instance{}, err
	}
	fail := func(err error) (instance.Instance, error) {
		logger.Error("❌ mod loader download failed", "error", err)
		if _, serr := a.Instances.SetStatus(id, instance.StatusDownloadFailed); serr != nil {
			logger.Warn("⚠️ failed to record download failure", "error", serr)
		}
		return instance.Instance{}, err
	}

	if inst.ModLoader.Kind == instance.LoaderFabric && game.VersionIsolation {
		n, err := loader.RemoveFabricAPIMods(layout.Mods())
		if err != nil {
			return fail(fmt.Errorf("remove fabric api: %w", err))
		}
		logger.Debug("🗑️ fabric api mods removed", "count", n)
	}

	vanilla := cur.Patches[0]
	d := vanilla.Clone()
	d.ID = cur.ID
	d.Jar = inst.Name
	d.JavaVersion = cur.JavaVersion
	d.ClientVersion = inst.Version
	d.Priority = nil
	d.Patches = []descriptor.Descriptor{*vanilla.Clone()}

	plan, err := a.Installer.Install(ctx, loader.Target{
		ID:          id,
		GameVersion: inst.Version,
		Loader:      next,
		Layout:      layout,
		FabricAPI:   fabricAPI,
	}, d)
	if err != nil {
		return fail(err)
	}
	plan.Apply(d)

	group := fmt.Sprintf("change-mod-loader?%s %s", next.Kind, next.Version)
	if err := a.Scheduler.ScheduleAndWait(ctx, group, plan.Downloads); err != nil {
		return fail(fmt.Errorf("%w: %v", launcherr.ErrDownloadFailed, err))
	}
	if err := descriptor.Save(layout.Descriptor(), d); err != nil {
		return fail(err)
	}
	updated, err := a.Instances.SetStatus(id, next.InitialStatus())
	if err != nil {
		return instance.Instance{}, err
	}
	logger.Info("🔁 mod loader changed", "version", next.Version, "status", updated.ModLoader.Status)
	return updated, nil
}

// FinishInstall runs the loader install phase of the instance.
func (a *App) FinishInstall(ctx context.Context, id string) error {
	return a.Installer.Finish(ctx, a.Instances, id)
}
