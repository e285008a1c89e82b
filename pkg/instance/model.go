// Package instance owns the installed-game records: the Instance model,
// the mod loader status machine, the on-disk layout of an instance and the
// process-wide registry that mirrors each record to instance.json.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/launcherr"
)

// ConfigFileName is the instance record stored in the version directory.
const ConfigFileName = "instance.json"

// LoaderKind names a mod loader.
type LoaderKind string

const (
	LoaderNone        LoaderKind = "None"
	LoaderFabric      LoaderKind = "Fabric"
	LoaderForge       LoaderKind = "Forge"
	LoaderLegacyForge LoaderKind = "LegacyForge"
	LoaderNeoForge    LoaderKind = "NeoForge"
	LoaderLiteLoader  LoaderKind = "LiteLoader"
	LoaderQuilt       LoaderKind = "Quilt"
)

// ParseLoaderKind accepts a loader name in any case. "unknown" and the
// empty string mean no loader.
func ParseLoaderKind(s string) (LoaderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "unknown", "vanilla":
		return LoaderNone, nil
	case "fabric":
		return LoaderFabric, nil
	case "forge":
		return LoaderForge, nil
	case "legacyforge", "legacy_forge":
		return LoaderLegacyForge, nil
	case "neoforge":
		return LoaderNeoForge, nil
	case "liteloader":
		return LoaderLiteLoader, nil
	case "quilt":
		return LoaderQuilt, nil
	}
	return "", fmt.Errorf("%w: %q", launcherr.ErrUnsupportedLoader, s)
}

// IsForgeFamily reports whether k installs through a Forge-style profile.
func (k LoaderKind) IsForgeFamily() bool {
	return k == LoaderForge || k == LoaderLegacyForge || k == LoaderNeoForge
}

// NeedsInstallPhase reports whether k requires finish-install after its
// files are downloaded.
func (k LoaderKind) NeedsInstallPhase() bool {
	return k != LoaderNone && k != LoaderFabric
}

// OptiFine is the optional OptiFine add-on of an instance.
type OptiFine struct {
	// Filename of the installer, e.g. OptiFine_1.20.1_HD_U_I6.jar.
	Filename string `json:"filename"`
	Version  string `json:"version"`
}

// ModLoader is the loader sub-record of an instance.
type ModLoader struct {
	Kind     LoaderKind   `json:"loaderType"`
	Version  string       `json:"version"`
	Branch   string       `json:"branch,omitempty"`
	Status   LoaderStatus `json:"status"`
	OptiFine *OptiFine    `json:"optifine,omitempty"`
}

// InitialStatus is the status a freshly selected loader starts in.
func (m ModLoader) InitialStatus() LoaderStatus {
	if m.Kind.NeedsInstallPhase() || m.OptiFine != nil {
		return StatusNotDownloaded
	}
	return StatusInstalled
}

// Instance is one installed game version with its own name and settings.
type Instance struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IconSrc     string    `json:"iconSrc"`
	Starred     bool      `json:"starred"`
	PlayTime    int64     `json:"playTime"` // seconds
	Version     string    `json:"version"`
	VersionPath string    `json:"versionPath"`
	ModLoader   ModLoader `json:"modLoader"`
	// UseSpecGameConfig selects SpecGameConfig over the global config.
	UseSpecGameConfig bool               `json:"useSpecGameConfig"`
	SpecGameConfig    *config.GameConfig `json:"specGameConfig,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	LastPlayedAt      time.Time          `json:"lastPlayedAt,omitzero"`
}

// MakeID joins a game directory name and an instance name.
func MakeID(gameDir, name string) string {
	return gameDir + ":" + name
}

// SplitID is the inverse of MakeID.
func SplitID(id string) (gameDir, name string, ok bool) {
	return strings.Cut(id, ":")
}

// ValidateName rejects names that cannot be a version directory.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", launcherr.ErrInvalidName, name)
	case strings.ContainsAny(name, `/\:*?"<>|`):
		return fmt.Errorf("%w: %q contains a reserved character", launcherr.ErrInvalidName, name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("%w: %q has surrounding spaces", launcherr.ErrInvalidName, name)
	}
	return nil
}

// GameConfig returns the configuration that applies to the instance.
func (i *Instance) GameConfig(global config.GameConfig) config.GameConfig {
	if i.UseSpecGameConfig && i.SpecGameConfig != nil {
		return *i.SpecGameConfig
	}
	return global
}

// Layout returns the on-disk layout of the instance. isolated is the
// effective version-isolation setting.
func (i *Instance) Layout(isolated bool) *Layout {
	return NewLayout(filepath.Dir(filepath.Dir(i.VersionPath)), i.Name, isolated)
}

// Clone returns a deep copy.
func (i *Instance) Clone() Instance {
	c := *i
	if i.ModLoader.OptiFine != nil {
		o := *i.ModLoader.OptiFine
		c.ModLoader.OptiFine = &o
	}
	if i.SpecGameConfig != nil {
		g := *i.SpecGameConfig
		c.SpecGameConfig = &g
	}
	return c
}

// Save writes the record to <version_path>/instance.json.
func (i *Instance) Save() error {
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return fmt.Errorf("encode instance %s: %w", i.ID, err)
	}
	return descriptor.WriteFileAtomic(filepath.Join(i.VersionPath, ConfigFileName), data)
}

// LoadRecord reads an instance.json.
func LoadRecord(path string) (Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Instance{}, err
	}
	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return Instance{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if inst.ModLoader.Kind == "" || inst.ModLoader.Kind == "Unknown" {
		inst.ModLoader.Kind = LoaderNone
	}
	if inst.ModLoader.Status == "" {
		inst.ModLoader.Status = StatusInstalled
	}
	return inst, nil
}

// DetectLoader guesses the loader of a descriptor that has no instance
// record, from the libraries it declares.
func DetectLoader(d *descriptor.Descriptor) ModLoader {
	for _, lib := range d.Libraries {
		c, err := descriptor.ParseCoordinate(lib.Name, "")
		if err != nil {
			continue
		}
		group := strings.ReplaceAll(c.GroupPath, "/", ".")
		switch {
		case group == "net.fabricmc" && c.Artifact == "fabric-loader":
			return ModLoader{Kind: LoaderFabric, Version: c.Version, Status: StatusInstalled}
		case group == "org.quiltmc" && c.Artifact == "quilt-loader":
			return ModLoader{Kind: LoaderQuilt, Version: c.Version, Status: StatusInstalled}
		case group == "net.neoforged" && (c.Artifact == "neoforge" || c.Artifact == "forge"):
			return ModLoader{Kind: LoaderNeoForge, Version: c.Version, Status: StatusInstalled}
		case group == "net.minecraftforge" && (c.Artifact == "forge" || c.Artifact == "fmlloader"):
			v := c.Version
			if _, after, ok := strings.Cut(v, "-"); ok {
				v = after
			}
			return ModLoader{Kind: LoaderForge, Version: v, Status: StatusInstalled}
		case group == "com.mumfrey" && c.Artifact == "liteloader":
			return ModLoader{Kind: LoaderLiteLoader, Version: c.Version, Status: StatusInstalled}
		}
	}
	return ModLoader{Kind: LoaderNone, Status: StatusInstalled}
}
