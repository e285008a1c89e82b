package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/provide-io/launchkit/pkg/archive"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/source"
)

// OptiFine tweak classes for the launchwrapper.
const (
	OptiFineTweaker      = "optifine.OptiFineTweaker"
	OptiFineForgeTweaker = "optifine.OptiFineForgeTweaker"

	optiFinePatcherClass = "optifine.Patcher"
	optiFinePatcherEntry = "optifine/Patcher.class"
	modsTomlEntry        = "META-INF/mods.toml"
)

// TweakClass returns the tweak class OptiFine needs on top of kind.
func TweakClass(kind instance.LoaderKind) string {
	if kind == instance.LoaderForge {
		return OptiFineForgeTweaker
	}
	return OptiFineTweaker
}

// optiFineCoordinate is the runtime library; the installer shares it with
// the installer classifier.
func optiFineCoordinate(gameVersion, version string) string {
	return "optifine:OptiFine:" + gameVersion + "_" + version
}

func optiFineInstallerPath(libDir, gameVersion, version string) (string, error) {
	return descriptor.LocalPath(libDir, optiFineCoordinate(gameVersion, version), "installer")
}

// splitOptiFineVersion splits HD_U_I6 into the release type HD_U and the
// patch I6.
func splitOptiFineVersion(version string) (string, string, error) {
	i := strings.LastIndexByte(version, '_')
	if i <= 0 || i == len(version)-1 {
		return "", "", fmt.Errorf("%w: optifine version %q", launcherr.ErrLoaderVersionParse, version)
	}
	return version[:i], version[i+1:], nil
}

func (in *Installer) optiFineInstallerDownload(t Target) (download.Request, error) {
	of := t.Loader.OptiFine
	typ, patch, err := splitOptiFineVersion(of.Version)
	if err != nil {
		return download.Request{}, err
	}
	url, err := in.Sources.Join(source.OptiFine, t.GameVersion+"/"+typ+"/"+patch)
	if err != nil {
		return download.Request{}, err
	}
	dest, err := optiFineInstallerPath(t.Layout.Libraries(), t.GameVersion, of.Version)
	if err != nil {
		return download.Request{}, err
	}
	return download.Request{URL: url, Dest: dest, Filename: of.Filename}, nil
}

// finishOptiFine produces the patched OptiFine library, resolves its
// launchwrapper and records the optifine patch on the descriptor.
func (in *Installer) finishOptiFine(ctx context.Context, inst instance.Instance, layout *instance.Layout, d *descriptor.Descriptor, selectJava func() (string, error)) error {
	of := inst.ModLoader.OptiFine
	libDir := layout.Libraries()
	logger := in.logger().With("instance", inst.ID, "optifine", of.Version)

	installer, err := optiFineInstallerPath(libDir, inst.Version, of.Version)
	if err != nil {
		return err
	}
	if _, err := os.Stat(installer); err != nil {
		return fmt.Errorf("%w: optifine installer %s", launcherr.ErrLoaderNotDownloaded, installer)
	}
	runtimeCoord := optiFineCoordinate(inst.Version, of.Version)
	out, err := descriptor.LocalPath(libDir, runtimeCoord, "")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}

	a, err := in.Archives.Open(installer)
	if err != nil {
		return fmt.Errorf("%w: %v", launcherr.ErrLoaderNotDownloaded, err)
	}
	defer func() { _ = a.Close() }()

	if a.Has(optiFinePatcherEntry) {
		java, err := selectJava()
		if err != nil {
			return err
		}
		logger.Info("🩹 running optifine patcher")
		output, code, err := in.Runner.Run(ctx, java, []string{installer}, optiFinePatcherClass,
			[]string{layout.ClientJar(), installer, out})
		if err != nil {
			return fmt.Errorf("%w: %v", launcherr.ErrPatcherFailed, err)
		}
		if code != 0 {
			return fmt.Errorf("%w: exit code %d: %s", launcherr.ErrPatcherFailed, code, strings.TrimSpace(string(output)))
		}
	} else if err := copyFile(installer, out); err != nil {
		return err
	}
	if err := archive.RemoveEntry(out, modsTomlEntry); err != nil {
		return err
	}

	wrapper, err := in.optiFineLaunchWrapper(ctx, inst.ID, a, libDir)
	if err != nil {
		return err
	}

	base := d.Clone()
	base.RemovePatch("optifine")
	eff := descriptor.Resolve(base)
	tweak := TweakClass(inst.ModLoader.Kind)

	patch := descriptor.Descriptor{
		ID:        "optifine",
		Version:   of.Version,
		Priority:  descriptor.IntPtr(OptiFinePatchPriority),
		Libraries: []descriptor.Library{{Name: runtimeCoord}, {Name: wrapper}},
	}
	if eff.MainClass == "" || eff.MainClass == VanillaMainClass {
		patch.MainClass = LaunchWrapperMainClass
	}
	if eff.Arguments != nil {
		patch.Arguments = withTweakClass(eff.Arguments, tweak)
	}
	if eff.MinecraftArguments != "" {
		patch.MinecraftArguments = eff.MinecraftArguments + " --tweakClass " + tweak
	}
	d.SetPatch(patch)

	if err := descriptor.Save(layout.Descriptor(), d); err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	logger.Info("✅ optifine installed", "tweak_class", tweak)
	return nil
}

// optiFineLaunchWrapper returns the coordinate of the launchwrapper the
// installer expects, extracting a bundled one or downloading the stock
// release.
func (in *Installer) optiFineLaunchWrapper(ctx context.Context, id string, a archive.Archive, libDir string) (string, error) {
	var coord, entry string
	if data, err := a.ReadFile("launchwrapper-of.txt"); err == nil {
		v := strings.TrimSpace(string(data))
		coord, entry = "optifine:launchwrapper-of:"+v, "launchwrapper-of-"+v+".jar"
	} else if a.Has("launchwrapper-2.0.jar") {
		coord, entry = "optifine:launchwrapper:2.0", "launchwrapper-2.0.jar"
	} else {
		coord = "net.minecraft:launchwrapper:1.12"
	}

	dest, err := descriptor.LocalPath(libDir, coord, "")
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err == nil {
		return coord, nil
	}
	if entry != "" {
		if err := a.ExtractFile(entry, dest); err != nil {
			return "", fmt.Errorf("extract %s: %w", entry, err)
		}
		return coord, nil
	}

	rel, err := descriptor.LibraryPath(coord, "")
	if err != nil {
		return "", err
	}
	url, err := in.Sources.Join(source.LaunchWrapper, rel)
	if err != nil {
		return "", err
	}
	group := fmt.Sprintf("optifine-libraries?%s", id)
	if err := in.Scheduler.ScheduleAndWait(ctx, group, []download.Request{{URL: url, Dest: dest}}); err != nil {
		return "", fmt.Errorf("%w: launchwrapper: %v", launcherr.ErrDownloadFailed, err)
	}
	return coord, nil
}

// withTweakClass returns args with --tweakClass inserted before
// --launchTarget, or at the front of the game arguments.
func withTweakClass(args *descriptor.Arguments, tweak string) *descriptor.Arguments {
	out := &descriptor.Arguments{JVM: append([]descriptor.ArgumentItem(nil), args.JVM...)}
	at := 0
	for i, item := range args.Game {
		if len(item.Rules) == 0 && len(item.Value) == 1 && item.Value[0] == "--launchTarget" {
			at = i
			break
		}
	}
	out.Game = append(out.Game, args.Game[:at]...)
	out.Game = append(out.Game, descriptor.Plain("--tweakClass"), descriptor.Plain(tweak))
	out.Game = append(out.Game, args.Game[at:]...)
	return out
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
