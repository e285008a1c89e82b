package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/provide-io/launchkit/pkg/archive"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/source"
)

// InstallProfile is the install_profile.json inside a Forge-style
// installer. Modern installers fill Data, Processors and Libraries and
// point JSON at the embedded version descriptor; legacy installers carry
// Install and VersionInfo instead.
type InstallProfile struct {
	Spec        int                    `json:"spec,omitempty"`
	Profile     string                 `json:"profile,omitempty"`
	Version     string                 `json:"version,omitempty"`
	Minecraft   string                 `json:"minecraft,omitempty"`
	JSON        string                 `json:"json,omitempty"`
	Data        map[string]DataEntry   `json:"data,omitempty"`
	Processors  []Processor            `json:"processors,omitempty"`
	Libraries   []descriptor.Library   `json:"libraries,omitempty"`
	Install     *LegacyInstall         `json:"install,omitempty"`
	VersionInfo *descriptor.Descriptor `json:"versionInfo,omitempty"`
}

// DataEntry is a side-specific processor variable.
type DataEntry struct {
	Client string `json:"client"`
	Server string `json:"server"`
}

// Processor is one installer step.
type Processor struct {
	Sides     []string          `json:"sides,omitempty"`
	Jar       string            `json:"jar"`
	Classpath []string          `json:"classpath"`
	Args      []string          `json:"args"`
	Outputs   map[string]string `json:"outputs,omitempty"`
}

// RunsOnClient reports whether the processor applies to a client install.
func (p Processor) RunsOnClient() bool {
	if len(p.Sides) == 0 {
		return true
	}
	for _, s := range p.Sides {
		if s == "client" {
			return true
		}
	}
	return false
}

// LegacyInstall is the install section of a pre-1.13 Forge installer.
type LegacyInstall struct {
	Path     string `json:"path"`
	FilePath string `json:"filePath"`
	Target   string `json:"target,omitempty"`
}

// IsLegacy reports whether p uses the pre-1.13 layout.
func (p *InstallProfile) IsLegacy() bool {
	return p.Install != nil && p.VersionInfo != nil
}

// ParseInstallProfile decodes an install profile.
func ParseInstallProfile(data []byte) (*InstallProfile, error) {
	var p InstallProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", launcherr.ErrInstallProfileParse, err)
	}
	if !p.IsLegacy() && p.JSON == "" {
		return nil, fmt.Errorf("%w: neither a version json nor a legacy install section", launcherr.ErrInstallProfileParse)
	}
	return &p, nil
}

func loadStoredProfile(path string) (*InstallProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseInstallProfile(data)
}

// InstallerCoordinate returns the maven coordinate and repository of the
// installer for a Forge-family loader.
func InstallerCoordinate(kind instance.LoaderKind, gameVersion, loaderVersion, branch string) (string, source.Resource, error) {
	switch kind {
	case instance.LoaderForge, instance.LoaderLegacyForge:
		full := loaderVersion
		if !strings.HasPrefix(full, gameVersion+"-") {
			full = gameVersion + "-" + full
		}
		if branch != "" {
			full += "-" + branch
		}
		return "net.minecraftforge:forge:" + full + ":installer", source.ForgeMavenNew, nil
	case instance.LoaderNeoForge:
		if gameVersion == "1.20.1" {
			v := strings.TrimPrefix(loaderVersion, "1.20.1-")
			return "net.neoforged:forge:1.20.1-" + v + ":installer", source.NeoForgeMaven, nil
		}
		return "net.neoforged:neoforge:" + loaderVersion + ":installer", source.NeoForgeMaven, nil
	}
	return "", 0, fmt.Errorf("%w: %s has no installer", launcherr.ErrUnsupportedLoader, kind)
}

// installForge downloads the installer, reads its profile and embedded
// version descriptor, and plans the library downloads. The profile is kept
// in the version directory for the install phase.
func (in *Installer) installForge(ctx context.Context, t Target, d *descriptor.Descriptor, plan *Plan) error {
	coord, repo, err := InstallerCoordinate(t.Loader.Kind, t.GameVersion, t.Loader.Version, t.Loader.Branch)
	if err != nil {
		return err
	}
	rel, err := descriptor.LibraryPath(coord, "")
	if err != nil {
		return err
	}
	installerPath, err := descriptor.LocalPath(t.Layout.Libraries(), coord, "")
	if err != nil {
		return err
	}
	if _, err := os.Stat(installerPath); err != nil {
		url, err := in.Sources.Join(repo, rel)
		if err != nil {
			return err
		}
		group := fmt.Sprintf("loader-installer?%s", t.ID)
		if err := in.Scheduler.ScheduleAndWait(ctx, group, []download.Request{{URL: url, Dest: installerPath}}); err != nil {
			return fmt.Errorf("%w: %s installer: %v", launcherr.ErrDownloadFailed, t.Loader.Kind, err)
		}
	}

	a, err := in.Archives.Open(installerPath)
	if err != nil {
		return fmt.Errorf("%w: %v", launcherr.ErrLoaderNotDownloaded, err)
	}
	defer func() { _ = a.Close() }()

	raw, err := a.ReadFile("install_profile.json")
	if err != nil {
		return fmt.Errorf("%w: %v", launcherr.ErrInstallProfileParse, err)
	}
	profile, err := ParseInstallProfile(raw)
	if err != nil {
		return err
	}

	version := profile.VersionInfo
	if !profile.IsLegacy() {
		data, err := a.ReadFile(strings.TrimPrefix(profile.JSON, "/"))
		if err != nil {
			return fmt.Errorf("%w: %v", launcherr.ErrInstallProfileParse, err)
		}
		if version, err = descriptor.Parse(data); err != nil {
			return err
		}
	}

	eff := descriptor.Resolve(d)
	patch := descriptor.Descriptor{
		ID:                 strings.ToLower(string(t.Loader.Kind)),
		Version:            t.Loader.Version,
		Priority:           descriptor.IntPtr(LoaderPatchPriority),
		MainClass:          version.MainClass,
		MinecraftArguments: version.MinecraftArguments,
		Libraries:          version.Libraries,
		JavaVersion:        version.JavaVersion,
	}
	if version.Arguments != nil {
		patch.Arguments = extendArguments(eff.Arguments, version.Arguments)
	}
	plan.Patches = append(plan.Patches, patch)

	embedded := embeddedLibraries(a, profile)
	libs := append(append([]descriptor.Library{}, version.Libraries...), profile.Libraries...)
	reqs, err := in.missingDownloads(ctx, libs, t.Layout.Libraries(), func(path string) bool {
		return embedded[path]
	})
	if err != nil {
		return err
	}
	plan.Downloads = append(plan.Downloads, reqs...)

	if err := descriptor.WriteFileAtomic(t.Layout.InstallProfile(), raw); err != nil {
		return fmt.Errorf("save install profile: %w", err)
	}
	return nil
}

// embeddedLibraries returns the library paths the installer ships itself.
func embeddedLibraries(a archive.Archive, p *InstallProfile) map[string]bool {
	out := make(map[string]bool)
	for _, name := range a.Names() {
		if rest, ok := strings.CutPrefix(name, "maven/"); ok && rest != "" {
			out[rest] = true
		}
	}
	if p.IsLegacy() {
		if rel, err := descriptor.LibraryPath(p.Install.Path, ""); err == nil {
			out[rel] = true
		}
	}
	return out
}
